package jobman

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeJobService is an in-memory JobService for tests.
type fakeJobService struct {
	sync.Mutex
	jobs     map[string]*Job
	nupdates int
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{jobs: make(map[string]*Job)}
}

func copyJob(j *Job) *Job {
	c := *j
	c.History = append(History{}, j.History...)
	if j.Params != nil {
		c.Params = Params{}
		for k, v := range j.Params {
			c.Params[k] = v
		}
	}
	c.runner = nil
	c.svc = nil
	c.tmp = nil
	return &c
}

func (s *fakeJobService) AddJob(j *Job) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.jobs[j.UUID]; ok {
		return fmt.Errorf("job already exists: %v", j.UUID)
	}
	s.jobs[j.UUID] = copyJob(j)
	return nil
}

func (s *fakeJobService) GetJob(uuid string) (*Job, error) {
	s.Lock()
	defer s.Unlock()
	j, ok := s.jobs[uuid]
	if !ok {
		return nil, fmt.Errorf("job not found: %v", uuid)
	}
	return copyJob(j), nil
}

func (s *fakeJobService) FindJobs(f JobFilter) ([]*Job, error) {
	s.Lock()
	defer s.Unlock()
	jobs := []*Job{}
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.Owner != "" && j.Owner != f.Owner {
			continue
		}
		jobs = append(jobs, copyJob(j))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Created.Before(jobs[j].Created) })
	return jobs, nil
}

func (s *fakeJobService) UpdateJob(u JobUpdater) error {
	s.Lock()
	defer s.Unlock()
	j, ok := s.jobs[u.UUID]
	if !ok {
		return fmt.Errorf("job not found: %v", u.UUID)
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.StatusText != nil {
		j.StatusText = *u.StatusText
	}
	if u.Details != nil {
		j.Details = *u.Details
	}
	if u.Completion != nil {
		j.Completion = *u.Completion
	}
	if u.Started != nil {
		j.Started = ptrTime(*u.Started)
	}
	if u.Finished != nil {
		j.Finished = ptrTime(*u.Finished)
	} else if u.ClearFinished {
		j.Finished = nil
	}
	if u.Owner != nil {
		j.Owner = *u.Owner
	}
	if u.Params != nil {
		j.Params = Params{}
		for k, v := range *u.Params {
			j.Params[k] = v
		}
	}
	if u.AppendHistory != nil {
		j.History = append(j.History, *u.AppendHistory)
	}
	j.Updated = time.Now().UTC()
	s.nupdates++
	return nil
}

func (s *fakeJobService) ClaimJob(owner string, types []string) (*Job, error) {
	s.Lock()
	defer s.Unlock()
	var oldest *Job
	for _, j := range s.jobs {
		if j.Status != StatusPending || j.Owner != "" {
			continue
		}
		match := false
		for _, t := range types {
			if j.Type == t {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if oldest == nil || j.Created.Before(oldest.Created) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, ErrNoJob
	}
	oldest.Owner = owner
	return copyJob(oldest), nil
}

// fakeHostService is an in-memory HostService for tests.
type fakeHostService struct {
	sync.Mutex
	hosts map[string]*Host
	snaps map[string][]*StatusSnapshot

	// lastFilter records the filter of the most recent FindStatus call.
	lastFilter StatusFilter
}

func newFakeHostService() *fakeHostService {
	return &fakeHostService{
		hosts: make(map[string]*Host),
		snaps: make(map[string][]*StatusSnapshot),
	}
}

func copyHost(h *Host) *Host {
	c := *h
	c.JobSlots = make(map[string]int, len(h.JobSlots))
	for t, n := range h.JobSlots {
		c.JobSlots[t] = n
	}
	c.svc = nil
	return &c
}

func (s *fakeHostService) AddHost(h *Host) error {
	s.Lock()
	defer s.Unlock()
	s.hosts[h.UUID] = copyHost(h)
	return nil
}

func (s *fakeHostService) FindHosts(f HostFilter) ([]*Host, error) {
	s.Lock()
	defer s.Unlock()
	hosts := []*Host{}
	for _, h := range s.hosts {
		if f.UUID != "" && h.UUID != f.UUID {
			continue
		}
		if f.Hostname != "" && h.Hostname != f.Hostname {
			continue
		}
		hosts = append(hosts, copyHost(h))
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Hostname < hosts[j].Hostname })
	return hosts, nil
}

func (s *fakeHostService) UpdateHost(u HostUpdater) error {
	s.Lock()
	defer s.Unlock()
	h, ok := s.hosts[u.UUID]
	if !ok {
		return fmt.Errorf("host not found: %v", u.UUID)
	}
	if u.PID != nil {
		h.PID = *u.PID
	}
	if u.JobSlots != nil {
		h.JobSlots = make(map[string]int, len(u.JobSlots))
		for t, n := range u.JobSlots {
			h.JobSlots[t] = n
		}
	}
	h.Updated = time.Now().UTC()
	return nil
}

func (s *fakeHostService) AddStatus(st *StatusSnapshot) error {
	s.Lock()
	defer s.Unlock()
	snaps := s.snaps[st.HostUUID]
	st.Index = 1
	if len(snaps) != 0 {
		st.Index = snaps[len(snaps)-1].Index + 1
	}
	c := *st
	s.snaps[st.HostUUID] = append(snaps, &c)
	return nil
}

func (s *fakeHostService) FindStatus(f StatusFilter) ([]*StatusSnapshot, error) {
	s.Lock()
	defer s.Unlock()
	s.lastFilter = f
	limit := f.Limit
	if limit <= 0 {
		limit = 30
	}
	snaps := s.snaps[f.HostUUID]
	got := []*StatusSnapshot{}
	skipped := 0
	for i := len(snaps) - 1; i >= 0; i-- {
		st := snaps[i]
		if f.Step > 1 && st.Index%int64(f.Step) != 0 {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		c := *st
		got = append(got, &c)
		if len(got) == limit {
			break
		}
	}
	return got, nil
}
