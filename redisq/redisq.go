// Package redisq provides a redis backed implementation of the jobman
// store services. Jobs and hosts are hashes, a job's history and a
// host's status snapshots are lists, so every append stays append-only
// on the redis side too.
package redisq

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Open connects to a redis server at addr.
func Open(addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr required")
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func jobKey(uuid string) string        { return "job:" + uuid }
func jobHistoryKey(uuid string) string { return "job:" + uuid + ":history" }
func queueKey(typeName string) string  { return "queue:" + typeName }
func hostKey(uuid string) string       { return "host:" + uuid }
func hostStatusKey(uuid string) string { return "host:" + uuid + ":status" }
func hostStatusIdxKey(uuid string) string {
	return "host:" + uuid + ":status:idx"
}

const (
	// jobsKey is the set of all job uuids.
	jobsKey = "jobs"
	// hostsKey maps hostname to host uuid.
	hostsKey = "hosts"
)
