package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/opsfarm/jobman"
	"github.com/opsfarm/jobman/redisq"
	"github.com/opsfarm/jobman/sqlite"
)

// openServices opens the store the environment points at.
// JOBMAN_STORE selects the backend, JOBMAN_DB and JOBMAN_REDIS locate it.
func openServices() (jobman.JobService, jobman.HostService, error) {
	store := os.Getenv("JOBMAN_STORE")
	if store == "" {
		store = "sqlite"
	}
	switch store {
	case "sqlite":
		path := os.Getenv("JOBMAN_DB")
		if path == "" {
			path = "jobman.db"
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewJobService(db), sqlite.NewHostService(db), nil
	case "redis":
		addr := os.Getenv("JOBMAN_REDIS")
		if addr == "" {
			addr = "localhost:6379"
		}
		rdb, err := redisq.Open(addr)
		if err != nil {
			return nil, nil, err
		}
		return redisq.NewJobService(rdb), redisq.NewHostService(rdb), nil
	}
	return nil, nil, fmt.Errorf("unknown store: %v", store)
}

func cutOrFill(s string, n int, fillLeft bool) string {
	if n < 0 {
		// invalid input
		return s
	}
	if len(s) > n {
		return s[:n]
	}
	spaces := strings.Repeat(" ", n-len(s))
	if fillLeft {
		return spaces + s
	}
	return s + spaces
}
