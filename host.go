package jobman

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/rs/xid"
)

// Host is a worker node sharing the job catalogue. It advertises finite
// per-job-type execution capacity through JobSlots and proves liveness
// through appended status snapshots.
type Host struct {
	// UUID lets a host distinguish from all the others.
	UUID string

	// Hostname is the node's hostname. One record per hostname.
	Hostname string

	// PID is the worker process id, refreshed on every startup.
	PID int

	// Platform is opaque node metadata for operators.
	Platform map[string]string

	// JobSlots maps a job type name to the number of executions of that
	// type the node may run concurrently. A node whose total capacity is
	// zero is not eligible to run anything.
	JobSlots map[string]int

	Created time.Time
	Updated time.Time

	svc HostService
}

// LocalHost finds or creates the host record for this node and binds it
// to the given service. On a known host the pid is refreshed; the
// snapshot index sequence continues from the latest persisted snapshot,
// which the store guarantees on its own.
func LocalHost(svc HostService) (*Host, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}
	hosts, err := svc.FindHosts(HostFilter{Hostname: hostname})
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		h := &Host{
			UUID:     xid.New().String(),
			Hostname: hostname,
			PID:      os.Getpid(),
			Platform: platformInfo(),
			JobSlots: make(map[string]int),
			Created:  time.Now().UTC(),
		}
		err := svc.AddHost(h)
		if err != nil {
			return nil, err
		}
		h.svc = svc
		log.Printf("host %v unknown, initialized in the store", hostname)
		return h, nil
	}
	h := hosts[0]
	h.svc = svc
	h.PID = os.Getpid()
	err = svc.UpdateHost(HostUpdater{UUID: h.UUID, PID: ptrInt(h.PID)})
	if err != nil {
		return nil, err
	}
	log.Printf("host %v found in the store, configuration retrieved", hostname)
	return h, nil
}

func platformInfo() map[string]string {
	return map[string]string{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
		"cpus": fmt.Sprintf("%d", runtime.NumCPU()),
		"go":   runtime.Version(),
	}
}

// Reconcile replaces the host's slot mapping with the union of the
// previously known types and the types runnable in this process. A type
// found in neither the prior state nor the explicit configuration gets
// capacity zero. Explicit configuration overrides the prior value.
// The reconciled mapping is persisted.
func (h *Host) Reconcile(discovered []string, explicit map[string]int) error {
	slots := make(map[string]int, len(h.JobSlots)+len(discovered))
	for t, n := range h.JobSlots {
		slots[t] = n
	}
	for _, t := range discovered {
		if _, ok := slots[t]; !ok {
			slots[t] = 0
			log.Printf("adding capability to run job type: %v", t)
		}
	}
	for t, n := range explicit {
		if n < 0 {
			return fmt.Errorf("negative slot count for %v: %d", t, n)
		}
		slots[t] = n
	}
	h.JobSlots = slots
	return h.svc.UpdateHost(HostUpdater{UUID: h.UUID, JobSlots: slots})
}

// CheckCapacity verifies the node has effective capacity. It returns a
// fatal *ConfigurationError when no job type is runnable at all, or when
// types exist but every slot count is zero. Neither is retryable; the
// node must not join the pool.
func (h *Host) CheckCapacity() error {
	if len(h.JobSlots) == 0 {
		return &ConfigurationError{Reason: "no runnable job type"}
	}
	types := make([]string, 0, len(h.JobSlots))
	for t := range h.JobSlots {
		types = append(types, t)
	}
	sort.Strings(types)
	total := 0
	log.Printf("job capacity of %v:", h.Hostname)
	for _, t := range types {
		log.Printf(" - %v: %d", t, h.JobSlots[t])
		total += h.JobSlots[t]
	}
	if total == 0 {
		return &ConfigurationError{Reason: "no capacity configured"}
	}
	return nil
}

// Heartbeat appends a status snapshot for the host. The store assigns
// the snapshot index. The jobs list is the set of jobs active at capture
// time and the system blob comes from an external metrics collector;
// both are opaque to the liveness logic.
func (h *Host) Heartbeat(current []JobRef, system map[string]interface{}) error {
	return h.svc.AddStatus(&StatusSnapshot{
		HostUUID:     h.UUID,
		Created:      time.Now().UTC(),
		CurrentJobs:  current,
		SystemStatus: system,
	})
}

// JobRef is a job identity reference recorded in a status snapshot.
type JobRef struct {
	UUID string `json:"uuid"`
	Type string `json:"type"`
}

// StatusSnapshot is one heartbeat record of a host: who it is, when it
// was captured, what it was running and how the machine looked.
// Snapshots are append-only; the store may prune the oldest ones once a
// retention ceiling is reached.
type StatusSnapshot struct {
	HostUUID string `json:"host_uuid"`

	// Index is strictly increasing per host, assigned by the store at
	// write time and resumed across restarts, never reset.
	Index int64 `json:"index"`

	Created      time.Time              `json:"created"`
	CurrentJobs  []JobRef               `json:"current_jobs"`
	SystemStatus map[string]interface{} `json:"system_status"`
}

// MarshalJSON implements json.Marshaler.
func (h *Host) MarshalJSON() ([]byte, error) {
	m := struct {
		UUID     string            `json:"uuid"`
		Hostname string            `json:"hostname"`
		PID      int               `json:"pid"`
		Platform map[string]string `json:"platform"`
		JobSlots map[string]int    `json:"job_slots"`
		Created  time.Time         `json:"created"`
		Updated  time.Time         `json:"updated"`
	}{
		UUID:     h.UUID,
		Hostname: h.Hostname,
		PID:      h.PID,
		Platform: h.Platform,
		JobSlots: h.JobSlots,
		Created:  h.Created,
		Updated:  h.Updated,
	}
	return json.Marshal(m)
}
