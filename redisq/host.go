package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsfarm/jobman"
)

// statusRetention is how many snapshots are kept per host; the snapshot
// list is trimmed to it on every append.
const statusRetention = 200000

// HostService interacts with a redis server for hosts and their status
// snapshots.
type HostService struct {
	rdb *redis.Client
}

// NewHostService creates a new HostService.
func NewHostService(rdb *redis.Client) *HostService {
	return &HostService{rdb: rdb}
}

// AddHost stores a host hash and indexes it by hostname.
func (s *HostService) AddHost(h *jobman.Host) error {
	ctx := context.Background()
	fields, err := hostFields(h)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hostKey(h.UUID), fields)
		pipe.HSet(ctx, hostsKey, h.Hostname, h.UUID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add host: %w", err)
	}
	return nil
}

// FindHosts finds hosts those matched with given filter.
func (s *HostService) FindHosts(f jobman.HostFilter) ([]*jobman.Host, error) {
	ctx := context.Background()
	uuids := []string{}
	switch {
	case f.UUID != "":
		uuids = append(uuids, f.UUID)
	case f.Hostname != "":
		uuid, err := s.rdb.HGet(ctx, hostsKey, f.Hostname).Result()
		if err == redis.Nil {
			return []*jobman.Host{}, nil
		}
		if err != nil {
			return nil, err
		}
		uuids = append(uuids, uuid)
	default:
		index, err := s.rdb.HGetAll(ctx, hostsKey).Result()
		if err != nil {
			return nil, err
		}
		for _, uuid := range index {
			uuids = append(uuids, uuid)
		}
	}
	hosts := make([]*jobman.Host, 0, len(uuids))
	for _, uuid := range uuids {
		m, err := s.rdb.HGetAll(ctx, hostKey(uuid)).Result()
		if err != nil {
			return nil, err
		}
		if len(m) == 0 {
			continue
		}
		h, err := scanHost(m)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// UpdateHost updates only the fields the updater carries.
func (s *HostService) UpdateHost(u jobman.HostUpdater) error {
	ctx := context.Background()
	fields := map[string]interface{}{}
	if u.PID != nil {
		fields["pid"] = *u.PID
	}
	if u.JobSlots != nil {
		b, err := json.Marshal(u.JobSlots)
		if err != nil {
			return err
		}
		fields["job_slots"] = string(b)
	}
	if len(fields) == 0 {
		return fmt.Errorf("need at least one parameter to update")
	}
	fields["updated"] = timeText(time.Now().UTC())
	err := s.rdb.HSet(ctx, hostKey(u.UUID), fields).Err()
	if err != nil {
		return fmt.Errorf("update host %v: %w", u.UUID, err)
	}
	return nil
}

// AddStatus appends a status snapshot. The index comes from an INCR
// counter, so it is strictly increasing per host and continues across
// restarts without any recovery step. The snapshot list is trimmed to
// the retention ceiling on every append.
func (s *HostService) AddStatus(st *jobman.StatusSnapshot) error {
	ctx := context.Background()
	idx, err := s.rdb.Incr(ctx, hostStatusIdxKey(st.HostUUID)).Result()
	if err != nil {
		return fmt.Errorf("next status index: %w", err)
	}
	st.Index = idx
	if st.Created.IsZero() {
		st.Created = time.Now().UTC()
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, hostStatusKey(st.HostUUID), b)
		pipe.LTrim(ctx, hostStatusKey(st.HostUUID), 0, statusRetention-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add status: %w", err)
	}
	return nil
}

// FindStatus returns snapshots newest first. The list is read in pages
// and filtered by index for stepped requests, so at most
// (offset+limit)*step entries are ever fetched.
func (s *HostService) FindStatus(f jobman.StatusFilter) ([]*jobman.StatusSnapshot, error) {
	if f.HostUUID == "" {
		return nil, fmt.Errorf("host uuid required")
	}
	ctx := context.Background()
	limit := f.Limit
	if limit <= 0 {
		limit = 30
	}
	step := f.Step
	if step < 1 {
		step = 1
	}
	span := int64((f.Offset + limit) * step)
	raw, err := s.rdb.LRange(ctx, hostStatusKey(f.HostUUID), 0, span-1).Result()
	if err != nil {
		return nil, err
	}
	matched := make([]*jobman.StatusSnapshot, 0, limit)
	skipped := 0
	for _, r := range raw {
		st := &jobman.StatusSnapshot{}
		err := json.Unmarshal([]byte(r), st)
		if err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
		if step > 1 && st.Index%int64(step) != 0 {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		matched = append(matched, st)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func hostFields(h *jobman.Host) (map[string]interface{}, error) {
	platform, err := json.Marshal(h.Platform)
	if err != nil {
		return nil, err
	}
	slots, err := json.Marshal(h.JobSlots)
	if err != nil {
		return nil, err
	}
	created := h.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return map[string]interface{}{
		"uuid":      h.UUID,
		"hostname":  h.Hostname,
		"pid":       h.PID,
		"platform":  string(platform),
		"job_slots": string(slots),
		"created":   timeText(created),
		"updated":   timeText(time.Now().UTC()),
	}, nil
}

func scanHost(m map[string]string) (*jobman.Host, error) {
	h := &jobman.Host{
		UUID:     m["uuid"],
		Hostname: m["hostname"],
		Platform: map[string]string{},
		JobSlots: map[string]int{},
	}
	var err error
	h.PID, err = atoiField(m, "pid")
	if err != nil {
		return nil, err
	}
	if m["platform"] != "" {
		err := json.Unmarshal([]byte(m["platform"]), &h.Platform)
		if err != nil {
			return nil, fmt.Errorf("decode platform: %w", err)
		}
	}
	if m["job_slots"] != "" {
		err := json.Unmarshal([]byte(m["job_slots"]), &h.JobSlots)
		if err != nil {
			return nil, fmt.Errorf("decode job_slots: %w", err)
		}
	}
	if t, err := timeField(m, "created"); err != nil {
		return nil, err
	} else if t != nil {
		h.Created = *t
	}
	if t, err := timeField(m, "updated"); err != nil {
		return nil, err
	} else if t != nil {
		h.Updated = *t
	}
	return h, nil
}
