package jobman

import "time"

// JobService is an interface which lets us use a persistent job store,
// like sqlite.JobService or redis.JobService.
type JobService interface {
	// AddJob adds a new job record.
	AddJob(*Job) error

	// GetJob gets a job record by its uuid.
	GetJob(uuid string) (*Job, error)

	// FindJobs finds job records matched with the given filter.
	FindJobs(JobFilter) ([]*Job, error)

	// UpdateJob partially updates a job record.
	// When the updater carries a history entry, the store must append it
	// atomically with the field updates, so concurrent updaters cannot
	// lose entries.
	UpdateJob(JobUpdater) error

	// ClaimJob atomically claims one pending, unowned job of one of the
	// given types for the owner. It returns ErrNoJob when there is none.
	ClaimJob(owner string, types []string) (*Job, error)
}

// JobFilter is a job filter for searching jobs.
type JobFilter struct {
	Status Status
	Type   string
	Owner  string
}

// JobUpdater has information for updating a job.
// Nil fields keep the stored value unchanged.
type JobUpdater struct {
	UUID       string
	Status     *Status
	StatusText *string
	Details    *string
	Completion *int
	Started    *time.Time

	// Finished, when non-nil, sets the finish time. ClearFinished
	// removes the stored finish time instead; a job re-entering a
	// non-terminal status has no finish time anymore. Finished wins
	// when both are set.
	Finished      *time.Time
	ClearFinished bool

	Owner         *string
	Params        *Params
	AppendHistory *HistoryEntry
}

// HostService is an interface which lets us use a persistent host store.
type HostService interface {
	// AddHost adds a new host record.
	AddHost(*Host) error

	// FindHosts finds host records matched with the given filter.
	FindHosts(HostFilter) ([]*Host, error)

	// UpdateHost partially updates a host record.
	UpdateHost(HostUpdater) error

	// AddStatus appends a status snapshot for a host.
	// The store assigns the snapshot index: strictly increasing per host,
	// continued from the latest persisted snapshot.
	AddStatus(*StatusSnapshot) error

	// FindStatus returns snapshots matched with the given filter,
	// newest first.
	FindStatus(StatusFilter) ([]*StatusSnapshot, error)
}

// HostFilter is a host filter for searching hosts.
type HostFilter struct {
	UUID     string
	Hostname string
}

// HostUpdater has information for updating a host.
// Nil fields keep the stored value unchanged.
// JobSlots replaces the whole slot mapping when it is non-nil.
type HostUpdater struct {
	UUID     string
	PID      *int
	JobSlots map[string]int
}

// StatusFilter is a filter for searching host status snapshots.
// Limit 0 means the store's default page size.
// Step above 1 keeps only snapshots whose index is a multiple of Step,
// a cheap downsampled view over a long append-only log.
type StatusFilter struct {
	HostUUID string
	Offset   int
	Limit    int
	Step     int
}

// NopJobService is a JobService which does nothing.
// We need this for testing.
type NopJobService struct{}

// AddJob returns nil always.
func (s *NopJobService) AddJob(*Job) error { return nil }

// GetJob returns (nil, nil) always.
func (s *NopJobService) GetJob(uuid string) (*Job, error) { return nil, nil }

// FindJobs returns (nil, nil) always.
func (s *NopJobService) FindJobs(JobFilter) ([]*Job, error) { return nil, nil }

// UpdateJob returns nil always.
func (s *NopJobService) UpdateJob(JobUpdater) error { return nil }

// ClaimJob returns ErrNoJob always.
func (s *NopJobService) ClaimJob(owner string, types []string) (*Job, error) {
	return nil, ErrNoJob
}

// NopHostService is a HostService which does nothing.
// We need this for testing.
type NopHostService struct{}

// AddHost returns nil always.
func (s *NopHostService) AddHost(*Host) error { return nil }

// FindHosts returns (nil, nil) always.
func (s *NopHostService) FindHosts(HostFilter) ([]*Host, error) { return nil, nil }

// UpdateHost returns nil always.
func (s *NopHostService) UpdateHost(HostUpdater) error { return nil }

// AddStatus returns nil always.
func (s *NopHostService) AddStatus(*StatusSnapshot) error { return nil }

// FindStatus returns (nil, nil) always.
func (s *NopHostService) FindStatus(StatusFilter) ([]*StatusSnapshot, error) { return nil, nil }
