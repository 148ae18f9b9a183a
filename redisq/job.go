package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsfarm/jobman"
)

// JobService interacts with a redis server for jobs.
type JobService struct {
	rdb *redis.Client
}

// NewJobService creates a new JobService.
func NewJobService(rdb *redis.Client) *JobService {
	return &JobService{rdb: rdb}
}

// AddJob stores a job hash and pushes it to its type's pending queue.
func (s *JobService) AddJob(j *jobman.Job) error {
	ctx := context.Background()
	fields, err := jobFields(j)
	if err != nil {
		return err
	}
	fields["created"] = timeText(j.Created)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey(j.UUID), fields)
		pipe.SAdd(ctx, jobsKey, j.UUID)
		for _, e := range j.History {
			b, err := json.Marshal(e)
			if err != nil {
				return err
			}
			pipe.RPush(ctx, jobHistoryKey(j.UUID), b)
		}
		if j.Status == jobman.StatusPending && j.Owner == "" {
			pipe.RPush(ctx, queueKey(j.Type), j.UUID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add job: %w", err)
	}
	return nil
}

// GetJob gets a job by its uuid.
func (s *JobService) GetJob(uuid string) (*jobman.Job, error) {
	ctx := context.Background()
	return s.getJob(ctx, uuid)
}

func (s *JobService) getJob(ctx context.Context, uuid string) (*jobman.Job, error) {
	m, err := s.rdb.HGetAll(ctx, jobKey(uuid)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("cannot find the job: %v", uuid)
	}
	j, err := scanJob(m)
	if err != nil {
		return nil, err
	}
	entries, err := s.rdb.LRange(ctx, jobHistoryKey(uuid), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	j.History = jobman.History{}
	for _, raw := range entries {
		e := jobman.HistoryEntry{}
		err := json.Unmarshal([]byte(raw), &e)
		if err != nil {
			return nil, fmt.Errorf("decode history of %v: %w", uuid, err)
		}
		j.History = append(j.History, e)
	}
	return j, nil
}

// FindJobs finds jobs those matched with given filter.
// It scans the whole catalogue; the filter is applied on the client.
func (s *JobService) FindJobs(f jobman.JobFilter) ([]*jobman.Job, error) {
	ctx := context.Background()
	uuids, err := s.rdb.SMembers(ctx, jobsKey).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*jobman.Job, 0, len(uuids))
	for _, uuid := range uuids {
		j, err := s.getJob(ctx, uuid)
		if err != nil {
			return nil, err
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.Owner != "" && j.Owner != f.Owner {
			continue
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].Created.Before(jobs[k].Created)
	})
	return jobs, nil
}

// UpdateJob updates only the fields the updater carries, each as its own
// hash field, and appends the history entry in the same MULTI/EXEC
// block. Concurrent updaters patch fields last-writer-wins but can
// never lose a history entry.
func (s *JobService) UpdateJob(u jobman.JobUpdater) error {
	ctx := context.Background()
	fields := map[string]interface{}{}
	if u.Status != nil {
		fields["status"] = string(*u.Status)
	}
	if u.StatusText != nil {
		fields["status_text"] = *u.StatusText
	}
	if u.Details != nil {
		fields["details"] = *u.Details
	}
	if u.Completion != nil {
		fields["completion"] = *u.Completion
	}
	if u.Started != nil {
		fields["started"] = timeText(*u.Started)
	}
	if u.Finished != nil {
		fields["finished"] = timeText(*u.Finished)
	}
	if u.Owner != nil {
		fields["owner"] = *u.Owner
	}
	if u.Params != nil {
		b, err := json.Marshal(u.Params)
		if err != nil {
			return err
		}
		fields["params"] = string(b)
	}
	clearFinished := u.ClearFinished && u.Finished == nil
	if len(fields) == 0 && u.AppendHistory == nil && !clearFinished {
		return fmt.Errorf("need at least one parameter to update")
	}
	// The store stamps updated on every write.
	fields["updated"] = timeText(time.Now().UTC())
	var entry []byte
	if u.AppendHistory != nil {
		b, err := json.Marshal(u.AppendHistory)
		if err != nil {
			return err
		}
		entry = b
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey(u.UUID), fields)
		if clearFinished {
			pipe.HDel(ctx, jobKey(u.UUID), "finished")
		}
		if entry != nil {
			pipe.RPush(ctx, jobHistoryKey(u.UUID), entry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update job %v: %w", u.UUID, err)
	}
	return nil
}

// ClaimJob pops a pending job uuid off one of the type queues. The pop
// is atomic, so the popped job belongs to this owner alone and the
// owner field can be set without a race.
func (s *JobService) ClaimJob(owner string, types []string) (*jobman.Job, error) {
	if owner == "" {
		return nil, fmt.Errorf("claim owner required")
	}
	ctx := context.Background()
	for _, t := range types {
		for {
			uuid, err := s.rdb.LPop(ctx, queueKey(t)).Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("pop queue %v: %w", t, err)
			}
			j, err := s.getJob(ctx, uuid)
			if err != nil {
				return nil, err
			}
			if j.Status != jobman.StatusPending {
				// e.g. the job was cancelled while queued; drop
				// the entry and keep draining this queue.
				continue
			}
			err = s.UpdateJob(jobman.JobUpdater{UUID: uuid, Owner: &owner})
			if err != nil {
				return nil, err
			}
			j.Owner = owner
			return j, nil
		}
	}
	return nil, jobman.ErrNoJob
}

func jobFields(j *jobman.Job) (map[string]interface{}, error) {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"uuid":        j.UUID,
		"name":        j.Name,
		"type":        j.Type,
		"status":      string(j.Status),
		"status_text": j.StatusText,
		"details":     j.Details,
		"completion":  j.Completion,
		"params":      string(params),
		"timeout":     j.Timeout,
		"ttl":         j.TTL,
		"owner":       j.Owner,
		"updated":     timeText(time.Now().UTC()),
	}
	if j.Started != nil {
		fields["started"] = timeText(*j.Started)
	}
	if j.Finished != nil {
		fields["finished"] = timeText(*j.Finished)
	}
	return fields, nil
}

func scanJob(m map[string]string) (*jobman.Job, error) {
	j := &jobman.Job{
		UUID:       m["uuid"],
		Name:       m["name"],
		Type:       m["type"],
		Status:     jobman.Status(m["status"]),
		StatusText: m["status_text"],
		Details:    m["details"],
		Owner:      m["owner"],
	}
	var err error
	j.Completion, err = atoiField(m, "completion")
	if err != nil {
		return nil, err
	}
	j.Timeout, err = atoiField(m, "timeout")
	if err != nil {
		return nil, err
	}
	j.TTL, err = atoiField(m, "ttl")
	if err != nil {
		return nil, err
	}
	if m["params"] != "" {
		err := json.Unmarshal([]byte(m["params"]), &j.Params)
		if err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	j.Started, err = timeField(m, "started")
	if err != nil {
		return nil, err
	}
	j.Finished, err = timeField(m, "finished")
	if err != nil {
		return nil, err
	}
	if t, err := timeField(m, "created"); err != nil {
		return nil, err
	} else if t != nil {
		j.Created = *t
	}
	if t, err := timeField(m, "updated"); err != nil {
		return nil, err
	} else if t != nil {
		j.Updated = *t
	}
	return j, nil
}

func atoiField(m map[string]string, key string) (int, error) {
	if m[key] == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(m[key])
	if err != nil {
		return 0, fmt.Errorf("decode %v: %w", key, err)
	}
	return n, nil
}

func timeField(m map[string]string, key string) (*time.Time, error) {
	if m[key] == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, m[key])
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", key, err)
	}
	return &t, nil
}

func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
