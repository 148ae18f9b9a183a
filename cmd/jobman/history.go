package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/opsfarm/jobman"
)

func history(args []string) error {
	fset := flag.NewFlagSet("history", flag.ExitOnError)
	offset := fset.Int("offset", 0, "skip this many snapshots")
	limit := fset.Int("limit", 0, "show at most this many snapshots")
	step := fset.Int("step", 1, "only show every step-th snapshot")
	fset.Parse(args)
	fargs := fset.Args()
	if len(fargs) == 0 {
		return errors.New("need a host uuid or hostname")
	}

	_, hostSvc, err := openServices()
	if err != nil {
		return err
	}
	h, err := findHost(hostSvc, fargs[0])
	if err != nil {
		return err
	}
	live := jobman.NewLiveness(hostSvc)
	snaps, err := live.History(h.UUID, *offset, *limit, *step)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no snapshot to show")
		return nil
	}
	for _, st := range snaps {
		fmt.Printf("[%v] %v jobs=%d%v\n",
			st.Index,
			st.Created.Local().Format("2006-01-02 15:04:05"),
			len(st.CurrentJobs),
			cpuSummary(st.SystemStatus),
		)
	}
	return nil
}

// findHost resolves a host by uuid first, then by hostname.
func findHost(svc jobman.HostService, key string) (*jobman.Host, error) {
	hosts, err := svc.FindHosts(jobman.HostFilter{UUID: key})
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		hosts, err = svc.FindHosts(jobman.HostFilter{Hostname: key})
		if err != nil {
			return nil, err
		}
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("host not found: %v", key)
	}
	return hosts[0], nil
}

func cpuSummary(system map[string]interface{}) string {
	cpu, ok := system["cpu"].(map[string]interface{})
	if !ok {
		return ""
	}
	pct, ok := cpu["percent"]
	if !ok {
		return ""
	}
	return fmt.Sprintf(" cpu=%v%%", pct)
}
