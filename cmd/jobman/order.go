package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/opsfarm/jobman"
)

func order(args []string) error {
	fset := flag.NewFlagSet("order", flag.ExitOnError)
	dup := fset.Bool("dup", false, "order even when an identical job is already pending")
	fset.Parse(args)
	fargs := fset.Args()
	if len(fargs) == 0 {
		return errors.New("need a job type to order")
	}
	typeName := fargs[0]
	params := jobman.Params{}
	if len(fargs) > 1 {
		data, err := os.ReadFile(fargs[1])
		if err != nil {
			return err
		}
		err = json.Unmarshal(data, &params)
		if err != nil {
			return fmt.Errorf("invalid params file: %w", err)
		}
	}

	jobSvc, _, err := openServices()
	if err != nil {
		return err
	}
	reg := jobman.NewRegistry()
	err = jobman.RegisterExamples(reg)
	if err != nil {
		return err
	}
	if !*dup {
		d, err := jobman.FindDuplicate(jobSvc, typeName, params)
		if err != nil {
			return err
		}
		if d != nil {
			fmt.Printf("identical job already pending: %v\n", d.UUID)
			return nil
		}
	}
	j, err := reg.NewJob(typeName, jobSvc, params)
	if err != nil {
		return err
	}
	fmt.Println(j.UUID)
	return nil
}
