// Package metrics holds the worker's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsRunTotal counts finished job runs per type and outcome.
	JobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobman_jobs_run_total",
			Help: "Total number of job runs finished by this worker",
		},
		[]string{"type", "status"},
	)

	// JobsClaimedTotal counts successful claims per job type.
	JobsClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobman_jobs_claimed_total",
			Help: "Total number of jobs claimed by this worker",
		},
		[]string{"type"},
	)

	// HeartbeatsTotal counts status snapshots appended by this worker.
	HeartbeatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobman_heartbeats_total",
			Help: "Total number of status snapshots appended",
		},
	)

	// RunningJobs is the number of jobs currently executing.
	RunningJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobman_running_jobs",
			Help: "Current number of jobs being executed",
		},
	)

	// JobDurationSeconds observes job run duration per type.
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobman_job_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"type"},
	)
)
