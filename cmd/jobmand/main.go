package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsfarm/jobman"
	"github.com/opsfarm/jobman/metrics"
	"github.com/opsfarm/jobman/sysstat"
)

func main() {
	defaultConfig := os.Getenv("JOBMAN_CONFIG")
	var configPath string
	flag.StringVar(&configPath, "config", defaultConfig, "path to a jobmand config file")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	jobSvc, hostSvc, err := openServices(cfg)
	if err != nil {
		log.Fatal(err)
	}

	reg := jobman.NewRegistry()
	err = jobman.RegisterExamples(reg)
	if err != nil {
		log.Fatal(err)
	}

	host, err := jobman.LocalHost(hostSvc)
	if err != nil {
		log.Fatal(err)
	}
	err = host.Reconcile(reg.Types(), cfg.Slots)
	if err != nil {
		log.Fatal(err)
	}
	err = host.CheckCapacity()
	if err != nil {
		log.Fatal(err)
	}

	// The owner token marks claimed jobs as ours. It carries the hostname
	// for operators and a fresh id so restarted daemons never collide.
	owner := host.Hostname + "/" + uuid.NewString()
	log.Printf("jobmand started: host=%v owner=%v", host.UUID, owner)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	running := newRunningSet()
	go heartbeat(ctx, host, running, time.Duration(cfg.Heartbeat)*time.Second)
	go serve(cfg.Listen)

	claimLoop(ctx, reg, jobSvc, running, owner, host.JobSlots)
	log.Print("jobmand stopped")
}

// serve exposes the metrics and health endpoints.
func serve(addr string) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	err := http.ListenAndServe(addr, r)
	if err != nil {
		log.Fatal(err)
	}
}

// heartbeat periodically snapshots this node's current jobs and system
// status so other processes can tell whether the node is alive.
func heartbeat(ctx context.Context, host *jobman.Host, running *runningSet, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		err := host.Heartbeat(running.Refs(), sysstat.Collect())
		if err != nil {
			log.Printf("heartbeat failed: %v", err)
			continue
		}
		metrics.HeartbeatsTotal.Inc()
	}
}

// claimLoop pulls pending jobs from the store and runs them, holding a
// slot per running job so no type ever exceeds its configured capacity.
func claimLoop(ctx context.Context, reg *jobman.Registry, jobSvc jobman.JobService, running *runningSet, owner string, slots map[string]int) {
	sem := make(map[string]chan struct{})
	for t, n := range slots {
		if n <= 0 {
			continue
		}
		_, err := reg.Runner(t)
		if err != nil {
			// Capacity persisted by an older daemon for a type we
			// no longer register. Leave those jobs to other nodes.
			log.Printf("skipping slots for unregistered type: %v", t)
			continue
		}
		sem[t] = make(chan struct{}, n)
	}

	var wg sync.WaitGroup
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-tick.C:
		}
		free := make([]string, 0, len(sem))
		for t, ch := range sem {
			if len(ch) < cap(ch) {
				free = append(free, t)
			}
		}
		if len(free) == 0 {
			continue
		}
		sort.Strings(free)
		j, err := jobSvc.ClaimJob(owner, free)
		if err == jobman.ErrNoJob {
			continue
		}
		if err != nil {
			log.Printf("claim failed: %v", err)
			continue
		}
		runner, err := reg.Runner(j.Type)
		if err != nil {
			log.Printf("claimed job of unknown type: %v", err)
			continue
		}
		j.Bind(runner, jobSvc)
		metrics.JobsClaimedTotal.WithLabelValues(j.Type).Inc()
		sem[j.Type] <- struct{}{}
		running.Add(j.Ref())
		wg.Add(1)
		go func(j *jobman.Job) {
			defer wg.Done()
			defer func() {
				running.Remove(j.UUID)
				<-sem[j.Type]
			}()
			metrics.RunningJobs.Inc()
			defer metrics.RunningJobs.Dec()
			begin := time.Now()
			j.RunSafe(ctx)
			metrics.JobDurationSeconds.WithLabelValues(j.Type).Observe(time.Since(begin).Seconds())
			metrics.JobsRunTotal.WithLabelValues(j.Type, string(j.Status)).Inc()
		}(j)
	}
}

// runningSet tracks the jobs this daemon is currently executing.
type runningSet struct {
	sync.Mutex
	jobs map[string]jobman.JobRef
}

func newRunningSet() *runningSet {
	return &runningSet{jobs: make(map[string]jobman.JobRef)}
}

func (s *runningSet) Add(ref jobman.JobRef) {
	s.Lock()
	defer s.Unlock()
	s.jobs[ref.UUID] = ref
}

func (s *runningSet) Remove(uuid string) {
	s.Lock()
	defer s.Unlock()
	delete(s.jobs, uuid)
}

func (s *runningSet) Refs() []jobman.JobRef {
	s.Lock()
	defer s.Unlock()
	refs := make([]jobman.JobRef, 0, len(s.jobs))
	for _, ref := range s.jobs {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].UUID < refs[j].UUID })
	return refs
}
