package jobman

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// Job is a long-running unit of work shared through the job catalogue.
// Any worker with a free slot for its type may claim and run it.
//
// A job record is shared, mutable and persisted externally. Every field
// update is a last-writer-wins patch, except History which is append-only
// and appended atomically by the store.
type Job struct {
	// UUID lets a job distinguish from all the others.
	// It is generated once and never changes.
	UUID string

	// Name is a human readable name of the job.
	// It defaults to the job's type name.
	Name string

	// Type is the job type name in the job type registry.
	Type string

	// Status indicates where the job is in its lifecycle.
	// A job is created pending and mutated only through UpdateStatus.
	Status Status

	// StatusText is the free-form last status message.
	StatusText string

	// Details holds the last failure's diagnostic text.
	Details string

	// Completion is the job's progress in [0, 100].
	Completion int

	// Params holds job type specific parameters.
	Params Params

	// Started and Finished are nil until the job reaches them.
	// Finished is set if and only if the status is terminal.
	Started  *time.Time
	Finished *time.Time

	// Timeout is an advisory run duration bound in seconds, consumed by
	// an external supervisor. Zero means unbounded. The engine itself
	// does not enforce it.
	Timeout int

	// TTL is the retry budget for the job, consumed by an external
	// supervisor as well.
	TTL int

	// Owner is the worker currently holding the job, empty when unclaimed.
	Owner string

	// History is the ordered audit trail of status/progress updates.
	History History

	Created time.Time
	Updated time.Time

	// Collaborators below are bound on the worker that runs the job.
	// They are not part of the persisted record.

	runner Runner
	svc    JobService
	tmp    *TempDirs
	logctx string
}

// NewJob creates a new pending job of the given type with its
// parameters and runner and persists it through the given service.
// The parameters are part of the record from the start; a job is
// claimable the moment it exists, so they cannot be patched in later.
func NewJob(typeName string, r Runner, svc JobService, params Params) (*Job, error) {
	if typeName == "" {
		return nil, fmt.Errorf("job type name required")
	}
	if params == nil {
		params = Params{}
	}
	j := &Job{
		UUID:    xid.New().String(),
		Name:    typeName,
		Type:    typeName,
		Status:  StatusPending,
		Params:  params,
		TTL:     1,
		History: History{},
		Created: time.Now().UTC(),
	}
	j.Bind(r, svc)
	err := svc.AddJob(j)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Bind attaches the runtime collaborators to a job record.
// A store returns plain records; the worker binds them before a run.
func (j *Job) Bind(r Runner, svc JobService) {
	j.runner = r
	if svc == nil {
		svc = &NopJobService{}
	}
	j.svc = svc
	j.tmp = NewTempDirs()
	j.logctx = fmt.Sprintf("job_type=%v job_uuid=%v", j.Type, j.UUID)
}

// TempDirs returns the job's scratch directory manager.
// Everything acquired from it is released when the run exits.
func (j *Job) TempDirs() *TempDirs {
	return j.tmp
}

// Ref returns the job's identity reference used in status snapshots.
func (j *Job) Ref() JobRef {
	return JobRef{UUID: j.UUID, Type: j.Type}
}

// StatusUpdate is a partial update for UpdateStatus.
// Nil fields leave the corresponding job field unchanged.
type StatusUpdate struct {
	Status     *Status
	Completion *int
	Text       *string
}

// UpdateStatus partially updates the job's status, completion and status
// text, appends one history entry capturing the resulting tuple, and
// persists the execution fields as a single store update.
//
// Completion outside [0, 100] is clamped into range. Backward movement
// is allowed; a retried job legitimately rewinds its progress.
func (j *Job) UpdateStatus(u StatusUpdate) error {
	if u.Status != nil {
		if !u.Status.Valid() {
			return fmt.Errorf("invalid status: %v", string(*u.Status))
		}
		j.Status = *u.Status
		if j.Status.Terminal() {
			j.Finished = ptrTime(time.Now().UTC())
		} else {
			// Leaving a terminal status, e.g. a re-run, drops the
			// old finish time. A job has one exactly when it is done.
			j.Finished = nil
		}
	}
	if u.Text != nil {
		j.StatusText = *u.Text
	}
	if u.Completion != nil {
		j.Completion = clampCompletion(*u.Completion)
	}
	entry := HistoryEntry{
		Timestamp:  time.Now().UTC(),
		Message:    j.StatusText,
		Completion: j.Completion,
		Status:     j.Status,
	}
	j.History = append(j.History, entry)
	if u.Status != nil {
		j.logf("status update: %v - %3d%% - %v", j.Status, j.Completion, j.StatusText)
	} else {
		j.logf("progress update: %3d%% - %v", j.Completion, j.StatusText)
	}
	return j.svc.UpdateJob(JobUpdater{
		UUID:          j.UUID,
		Status:        &j.Status,
		StatusText:    &j.StatusText,
		Details:       &j.Details,
		Completion:    &j.Completion,
		Started:       j.Started,
		Finished:      j.Finished,
		ClearFinished: u.Status != nil && j.Finished == nil,
		AppendHistory: &entry,
	})
}

// UpdateProgress updates only the job's completion and status text.
func (j *Job) UpdateProgress(completion int, text string) error {
	u := StatusUpdate{Completion: ptrInt(completion)}
	if text != "" {
		u.Text = ptrString(text)
	}
	return j.UpdateStatus(u)
}

// SaveAsSuccessful moves the job to success with full completion.
func (j *Job) SaveAsSuccessful(text string) error {
	if text == "" {
		text = "Job successful"
	}
	return j.UpdateStatus(StatusUpdate{
		Status:     ptrStatus(StatusSuccess),
		Completion: ptrInt(100),
		Text:       ptrString(text),
	})
}

// SaveAsError moves the job to error.
// The failure diagnostics should already be in Details.
func (j *Job) SaveAsError(text string) error {
	if text == "" {
		text = "Job error"
	}
	return j.UpdateStatus(StatusUpdate{
		Status: ptrStatus(StatusError),
		Text:   ptrString(text),
	})
}

// SetParam sets one job parameter and persists the parameter blob.
// A post-process hook uses it to keep a transformed result.
func (j *Job) SetParam(key string, v interface{}) error {
	if j.Params == nil {
		j.Params = Params{}
	}
	j.Params[key] = v
	return j.svc.UpdateJob(JobUpdater{UUID: j.UUID, Params: &j.Params})
}

// DecodeParams decodes the job's parameters into the given job type value.
// It is commonly called from a pre-process hook.
func (j *Job) DecodeParams(v interface{}) error {
	b, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	err = json.Unmarshal(b, v)
	if err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func clampCompletion(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// MarshalJSON implements json.Marshaler.
// The field names are the wire contract of the persisted job record.
func (j *Job) MarshalJSON() ([]byte, error) {
	m := struct {
		UUID       string     `json:"uuid"`
		Name       string     `json:"name"`
		Type       string     `json:"type"`
		Status     Status     `json:"status"`
		StatusText string     `json:"status_text"`
		Details    string     `json:"details"`
		Completion int        `json:"completion"`
		Params     Params     `json:"params"`
		Started    *time.Time `json:"started"`
		Finished   *time.Time `json:"finished"`
		Timeout    int        `json:"timeout"`
		TTL        int        `json:"ttl"`
		Owner      string     `json:"owner"`
		History    History    `json:"history"`
		Created    time.Time  `json:"created"`
		Updated    time.Time  `json:"updated"`
	}{
		UUID:       j.UUID,
		Name:       j.Name,
		Type:       j.Type,
		Status:     j.Status,
		StatusText: j.StatusText,
		Details:    j.Details,
		Completion: j.Completion,
		Params:     j.Params,
		Started:    j.Started,
		Finished:   j.Finished,
		Timeout:    j.Timeout,
		TTL:        j.TTL,
		Owner:      j.Owner,
		History:    j.History,
		Created:    j.Created,
		Updated:    j.Updated,
	}
	return json.Marshal(m)
}
