package jobman

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is a lifecycle status shared by jobs and tasks.
type Status string

const (
	StatusNew     = Status("new")
	StatusPending = Status("pending")
	StatusRunning = Status("running")
	StatusSuccess = Status("success")
	StatusError   = Status("error")
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusRunning, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
// A job or task in a terminal status will not move again
// unless a caller explicitly re-runs it.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status: %v", string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(v interface{}) error {
	if v == nil {
		return fmt.Errorf("scan status: nil")
	}
	switch t := v.(type) {
	case string:
		*s = Status(t)
	case []byte:
		*s = Status(t)
	default:
		return fmt.Errorf("scan status: unsupported type %T", v)
	}
	if !s.Valid() {
		return fmt.Errorf("scan status: invalid value %q", string(*s))
	}
	return nil
}

// HistoryEntry is one status/progress snapshot of a job.
// The field names are a wire contract shared with every consumer
// of the persisted records. Do not rename them.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	Completion int       `json:"completion"`
	Status     Status    `json:"status"`
}

// History is the ordered, append-only audit trail of a job.
// The core only ever appends to it, one entry per update.
type History []HistoryEntry

// Value implements driver.Valuer.
func (h History) Value() (driver.Value, error) {
	v, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Scan implements sql.Scanner.
func (h *History) Scan(v interface{}) error {
	if v == nil {
		return fmt.Errorf("scan history: nil")
	}
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("scan history: unsupported type %T", v)
	}
	return json.Unmarshal(b, h)
}

// Params holds job type specific parameters of a job.
// The concrete job type decodes it into its own fields before a run.
type Params map[string]interface{}

// Value implements driver.Valuer.
func (p Params) Value() (driver.Value, error) {
	v, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Scan implements sql.Scanner.
func (p *Params) Scan(v interface{}) error {
	if v == nil {
		return fmt.Errorf("scan params: nil")
	}
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("scan params: unsupported type %T", v)
	}
	return json.Unmarshal(b, p)
}
