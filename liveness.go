package jobman

import "time"

// AliveWindow is how recently a host must have appended a status
// snapshot to be considered alive.
const AliveWindow = 30 * time.Second

// defaultHistoryLimit is the default page size of History.
const defaultHistoryLimit = 30

// Liveness answers whether hosts are alive from their append-only
// status snapshots. It holds no state of its own; every question is
// answered from the store.
type Liveness struct {
	svc    HostService
	window time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

// NewLiveness creates a Liveness over the given host service.
func NewLiveness(svc HostService) *Liveness {
	return &Liveness{
		svc:    svc,
		window: AliveWindow,
		now:    time.Now,
	}
}

// Alive reports whether the host has a snapshot within the recency
// window.
func (l *Liveness) Alive(hostUUID string) (bool, error) {
	last, err := l.LastSeen(hostUUID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return false, nil
	}
	return l.now().Sub(*last) <= l.window, nil
}

// LastSeen returns the creation time of the host's most recent
// snapshot, or nil when the host has none.
func (l *Liveness) LastSeen(hostUUID string) (*time.Time, error) {
	statuses, err := l.svc.FindStatus(StatusFilter{HostUUID: hostUUID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	return ptrTime(statuses[0].Created), nil
}

// History returns the host's snapshots newest first. A step above 1
// keeps only snapshots whose index is a multiple of step, giving a
// downsampled view over a long log without materializing it. The store
// applies the step in its query.
func (l *Liveness) History(hostUUID string, offset, limit, step int) ([]*StatusSnapshot, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if step < 0 {
		step = 0
	}
	return l.svc.FindStatus(StatusFilter{
		HostUUID: hostUUID,
		Offset:   offset,
		Limit:    limit,
		Step:     step,
	})
}
