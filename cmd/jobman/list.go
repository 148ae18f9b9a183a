package main

import (
	"flag"
	"fmt"

	"github.com/opsfarm/jobman"
)

func list(args []string) error {
	fset := flag.NewFlagSet("list", flag.ExitOnError)
	status := fset.String("status", "", "only show jobs with this status")
	typeName := fset.String("type", "", "only show jobs of this type")
	owner := fset.String("owner", "", "only show jobs claimed by this owner")
	fset.Parse(args)

	jobSvc, _, err := openServices()
	if err != nil {
		return err
	}
	filter := jobman.JobFilter{
		Status: jobman.Status(*status),
		Type:   *typeName,
		Owner:  *owner,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("invalid status: %v", *status)
	}
	jobs, err := jobSvc.FindJobs(filter)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no job to show")
		return nil
	}
	for _, j := range jobs {
		fmt.Printf("[%v] %v %v %v - %v\n",
			j.UUID,
			cutOrFill(string(j.Status), 7, false),
			cutOrFill(fmt.Sprintf("%d%%", j.Completion), 4, true),
			cutOrFill(j.Type, 10, false),
			j.Name,
		)
	}
	return nil
}
