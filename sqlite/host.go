package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/opsfarm/jobman"
)

// statusRetention is how many snapshots are kept per host before the
// oldest ones get pruned, a ring buffer over the append-only log.
const statusRetention = 200000

// CreateHostsTable creates hosts table to a database if not exists.
// It is ok to call it multiple times.
func CreateHostsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS hosts (
			uuid TEXT PRIMARY KEY,
			hostname TEXT NOT NULL UNIQUE,
			pid INTEGER NOT NULL,
			platform TEXT NOT NULL DEFAULT '{}',
			job_slots TEXT NOT NULL DEFAULT '{}',
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL
		);
	`)
	return err
}

// CreateHostStatusTable creates host_status table to a database if not
// exists. It is ok to call it multiple times.
func CreateHostStatusTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS host_status (
			host_uuid TEXT NOT NULL,
			idx INTEGER NOT NULL,
			created TIMESTAMP NOT NULL,
			current_jobs TEXT NOT NULL DEFAULT '[]',
			system_status TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (host_uuid, idx)
		);
	`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS host_status_created ON host_status (host_uuid, created);`)
	return err
}

// HostService interacts with a database for hosts and their status
// snapshots.
type HostService struct {
	db *sql.DB
}

// NewHostService creates a new HostService.
func NewHostService(db *sql.DB) *HostService {
	return &HostService{db: db}
}

// AddHost adds a host into a database.
func (s *HostService) AddHost(h *jobman.Host) error {
	platform, err := jsonText(h.Platform)
	if err != nil {
		return err
	}
	slots, err := jsonText(h.JobSlots)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created := h.Created
	if created.IsZero() {
		created = now
	}
	_, err = s.db.Exec(`
		INSERT INTO hosts (
			uuid,
			hostname,
			pid,
			platform,
			job_slots,
			created,
			updated
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		h.UUID,
		h.Hostname,
		h.PID,
		platform,
		slots,
		created,
		now,
	)
	return err
}

// FindHosts finds hosts those matched with given filter.
func (s *HostService) FindHosts(f jobman.HostFilter) ([]*jobman.Host, error) {
	keys := []string{}
	vals := []interface{}{}
	if f.UUID != "" {
		keys = append(keys, "uuid = ?")
		vals = append(vals, f.UUID)
	}
	if f.Hostname != "" {
		keys = append(keys, "hostname = ?")
		vals = append(vals, f.Hostname)
	}
	where := ""
	if len(keys) != 0 {
		where = "WHERE " + strings.Join(keys, " AND ")
	}
	rows, err := s.db.Query(`
		SELECT
			uuid,
			hostname,
			pid,
			platform,
			job_slots,
			created,
			updated
		FROM hosts
		`+where+`
		ORDER BY hostname ASC
	`,
		vals...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hosts := make([]*jobman.Host, 0)
	for rows.Next() {
		h := &jobman.Host{}
		var platform, slots string
		err := rows.Scan(
			&h.UUID,
			&h.Hostname,
			&h.PID,
			&platform,
			&slots,
			&h.Created,
			&h.Updated,
		)
		if err != nil {
			return nil, err
		}
		h.Platform = make(map[string]string)
		err = scanJSON(platform, &h.Platform)
		if err != nil {
			return nil, err
		}
		h.JobSlots = make(map[string]int)
		err = scanJSON(slots, &h.JobSlots)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// UpdateHost updates a host record.
func (s *HostService) UpdateHost(u jobman.HostUpdater) error {
	keys := []string{}
	vals := []interface{}{}
	if u.PID != nil {
		keys = append(keys, "pid = ?")
		vals = append(vals, u.PID)
	}
	if u.JobSlots != nil {
		slots, err := jsonText(u.JobSlots)
		if err != nil {
			return err
		}
		keys = append(keys, "job_slots = ?")
		vals = append(vals, slots)
	}
	if len(keys) == 0 {
		return fmt.Errorf("need at least one parameter to update")
	}
	keys = append(keys, "updated = ?")
	vals = append(vals, time.Now().UTC())
	vals = append(vals, u.UUID)
	_, err := s.db.Exec(`
		UPDATE hosts
		SET `+strings.Join(keys, ", ")+`
		WHERE
			uuid = ?
	`,
		vals...,
	)
	return err
}

// AddStatus appends a status snapshot for a host. The index is assigned
// inside the transaction from the latest persisted one, so it stays
// strictly increasing per host and survives restarts. Snapshots past
// the retention ceiling are pruned in the same transaction.
func (s *HostService) AddStatus(st *jobman.StatusSnapshot) error {
	jobs, err := jsonText(st.CurrentJobs)
	if err != nil {
		return err
	}
	system, err := jsonText(st.SystemStatus)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var idx int64
	row := tx.QueryRow(`
		SELECT COALESCE(MAX(idx), 0) + 1 FROM host_status WHERE host_uuid = ?
	`, st.HostUUID)
	err = row.Scan(&idx)
	if err != nil {
		return err
	}
	created := st.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO host_status (
			host_uuid,
			idx,
			created,
			current_jobs,
			system_status
		)
		VALUES (?, ?, ?, ?, ?)
	`,
		st.HostUUID,
		idx,
		created,
		jobs,
		system,
	)
	if err != nil {
		return err
	}
	if idx > statusRetention {
		_, err = tx.Exec(`
			DELETE FROM host_status WHERE host_uuid = ? AND idx <= ?
		`,
			st.HostUUID, idx-statusRetention,
		)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	if err != nil {
		return err
	}
	st.Index = idx
	st.Created = created
	return nil
}

// FindStatus finds status snapshots matched with given filter, newest
// first. A step above 1 keeps only every step-th index, computed in the
// query so the full log never gets materialized.
func (s *HostService) FindStatus(f jobman.StatusFilter) ([]*jobman.StatusSnapshot, error) {
	if f.HostUUID == "" {
		return nil, fmt.Errorf("host uuid required")
	}
	keys := []string{"host_uuid = ?"}
	vals := []interface{}{f.HostUUID}
	if f.Step > 1 {
		keys = append(keys, "idx % ? = 0")
		vals = append(vals, f.Step)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 30
	}
	vals = append(vals, limit, f.Offset)
	rows, err := s.db.Query(`
		SELECT
			host_uuid,
			idx,
			created,
			current_jobs,
			system_status
		FROM host_status
		WHERE `+strings.Join(keys, " AND ")+`
		ORDER BY idx DESC
		LIMIT ? OFFSET ?
	`,
		vals...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	statuses := make([]*jobman.StatusSnapshot, 0)
	for rows.Next() {
		st := &jobman.StatusSnapshot{}
		var jobs, system string
		err := rows.Scan(
			&st.HostUUID,
			&st.Index,
			&st.Created,
			&jobs,
			&system,
		)
		if err != nil {
			return nil, err
		}
		st.CurrentJobs = []jobman.JobRef{}
		err = scanJSON(jobs, &st.CurrentJobs)
		if err != nil {
			return nil, err
		}
		st.SystemStatus = make(map[string]interface{})
		err = scanJSON(system, &st.SystemStatus)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}
