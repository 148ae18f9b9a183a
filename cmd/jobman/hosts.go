package main

import (
	"flag"
	"fmt"
	"sort"

	"github.com/opsfarm/jobman"
)

func hosts(args []string) error {
	fset := flag.NewFlagSet("hosts", flag.ExitOnError)
	fset.Parse(args)

	_, hostSvc, err := openServices()
	if err != nil {
		return err
	}
	hosts, err := hostSvc.FindHosts(jobman.HostFilter{})
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		fmt.Println("no host to show")
		return nil
	}
	live := jobman.NewLiveness(hostSvc)
	for _, h := range hosts {
		alive, err := live.Alive(h.UUID)
		if err != nil {
			return err
		}
		seen := "never"
		last, err := live.LastSeen(h.UUID)
		if err != nil {
			return err
		}
		if last != nil {
			seen = last.Local().Format("2006-01-02 15:04:05")
		}
		state := "down"
		if alive {
			state = "alive"
		}
		fmt.Printf("[%v] %v %v last_seen=%v slots=%v\n",
			h.UUID,
			cutOrFill(h.Hostname, 20, false),
			cutOrFill(state, 5, false),
			seen,
			slotSummary(h.JobSlots),
		)
	}
	return nil
}

func slotSummary(slots map[string]int) string {
	types := make([]string, 0, len(slots))
	for t := range slots {
		types = append(types, t)
	}
	sort.Strings(types)
	s := ""
	for i, t := range types {
		if i != 0 {
			s += ","
		}
		s += fmt.Sprintf("%v:%d", t, slots[t])
	}
	if s == "" {
		s = "none"
	}
	return s
}
