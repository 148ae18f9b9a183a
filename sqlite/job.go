package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/opsfarm/jobman"
)

// CreateJobsTable creates jobs table to a database if not exists.
// It is ok to call it multiple times.
func CreateJobsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			status_text TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			completion INTEGER NOT NULL DEFAULT 0,
			params TEXT NOT NULL DEFAULT '{}',
			started TIMESTAMP,
			finished TIMESTAMP,
			timeout INTEGER NOT NULL DEFAULT 0,
			ttl INTEGER NOT NULL DEFAULT 1,
			owner TEXT NOT NULL DEFAULT '',
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS jobs_status ON jobs (status);`)
	return err
}

// CreateJobHistoryTable creates job_history table to a database if not
// exists. History entries are rows of their own so an append is a plain
// insert, atomic with the field update that produced it.
func CreateJobHistoryTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS job_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_uuid TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			message TEXT NOT NULL,
			completion INTEGER NOT NULL,
			status TEXT NOT NULL
		);
	`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS job_history_job ON job_history (job_uuid);`)
	return err
}

// JobService interacts with a database for jobs.
type JobService struct {
	db *sql.DB
}

// NewJobService creates a new JobService.
func NewJobService(db *sql.DB) *JobService {
	return &JobService{db: db}
}

// AddJob adds a job and its history into a database.
func (s *JobService) AddJob(j *jobman.Job) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = addJob(tx, j)
	if err != nil {
		return err
	}
	for _, e := range j.History {
		err := appendHistory(tx, j.UUID, e)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func addJob(tx *sql.Tx, j *jobman.Job) error {
	params, err := jsonText(j.Params)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created := j.Created
	if created.IsZero() {
		created = now
	}
	_, err = tx.Exec(`
		INSERT INTO jobs (
			uuid,
			name,
			type,
			status,
			status_text,
			details,
			completion,
			params,
			started,
			finished,
			timeout,
			ttl,
			owner,
			created,
			updated
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		j.UUID,
		j.Name,
		j.Type,
		j.Status,
		j.StatusText,
		j.Details,
		j.Completion,
		params,
		nullTime(j.Started),
		nullTime(j.Finished),
		j.Timeout,
		j.TTL,
		j.Owner,
		created,
		now,
	)
	return err
}

func appendHistory(tx *sql.Tx, uuid string, e jobman.HistoryEntry) error {
	_, err := tx.Exec(`
		INSERT INTO job_history (
			job_uuid,
			timestamp,
			message,
			completion,
			status
		)
		VALUES (?, ?, ?, ?, ?)
	`,
		uuid,
		e.Timestamp,
		e.Message,
		e.Completion,
		e.Status,
	)
	return err
}

// GetJob gets a job by its uuid.
func (s *JobService) GetJob(uuid string) (*jobman.Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	j, err := getJob(tx, uuid)
	if err != nil {
		return nil, err
	}
	err = attachHistory(tx, j)
	if err != nil {
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return j, nil
}

func getJob(tx *sql.Tx, uuid string) (*jobman.Job, error) {
	row := tx.QueryRow(jobSelect+`WHERE uuid = ?`, uuid)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cannot find the job: %v", uuid)
	}
	return j, err
}

const jobSelect = `
	SELECT
		uuid,
		name,
		type,
		status,
		status_text,
		details,
		completion,
		params,
		started,
		finished,
		timeout,
		ttl,
		owner,
		created,
		updated
	FROM jobs
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*jobman.Job, error) {
	j := &jobman.Job{}
	var params string
	var started, finished sql.NullTime
	err := row.Scan(
		&j.UUID,
		&j.Name,
		&j.Type,
		&j.Status,
		&j.StatusText,
		&j.Details,
		&j.Completion,
		&params,
		&started,
		&finished,
		&j.Timeout,
		&j.TTL,
		&j.Owner,
		&j.Created,
		&j.Updated,
	)
	if err != nil {
		return nil, err
	}
	err = scanJSON(params, &j.Params)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		j.Started = &started.Time
	}
	if finished.Valid {
		j.Finished = &finished.Time
	}
	return j, nil
}

// FindJobs finds jobs those matched with given filter.
func (s *JobService) FindJobs(f jobman.JobFilter) ([]*jobman.Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	jobs, err := findJobs(tx, f)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		err := attachHistory(tx, j)
		if err != nil {
			return nil, err
		}
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func findJobs(tx *sql.Tx, f jobman.JobFilter) ([]*jobman.Job, error) {
	keys := []string{}
	vals := []interface{}{}
	if f.Status != "" {
		keys = append(keys, "status = ?")
		vals = append(vals, f.Status)
	}
	if f.Type != "" {
		keys = append(keys, "type = ?")
		vals = append(vals, f.Type)
	}
	if f.Owner != "" {
		keys = append(keys, "owner = ?")
		vals = append(vals, f.Owner)
	}
	where := ""
	if len(keys) != 0 {
		where = "WHERE " + strings.Join(keys, " AND ")
	}
	rows, err := tx.Query(jobSelect+where+` ORDER BY created ASC`, vals...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := make([]*jobman.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// attachHistory attaches a job's history entries, in append order.
func attachHistory(tx *sql.Tx, j *jobman.Job) error {
	rows, err := tx.Query(`
		SELECT
			timestamp,
			message,
			completion,
			status
		FROM job_history
		WHERE
			job_uuid = ?
		ORDER BY id ASC
	`,
		j.UUID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	history := jobman.History{}
	for rows.Next() {
		e := jobman.HistoryEntry{}
		err := rows.Scan(
			&e.Timestamp,
			&e.Message,
			&e.Completion,
			&e.Status,
		)
		if err != nil {
			return err
		}
		history = append(history, e)
	}
	j.History = history
	return rows.Err()
}

// UpdateJob updates a job record. The history entry, when present, is
// appended in the same transaction as the field update, so concurrent
// updaters cannot lose entries.
func (s *JobService) UpdateJob(u jobman.JobUpdater) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = updateJob(tx, u)
	if err != nil {
		return err
	}
	if u.AppendHistory != nil {
		err = appendHistory(tx, u.UUID, *u.AppendHistory)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func updateJob(tx *sql.Tx, u jobman.JobUpdater) error {
	keys := []string{}
	vals := []interface{}{}
	if u.Status != nil {
		keys = append(keys, "status = ?")
		vals = append(vals, u.Status)
	}
	if u.StatusText != nil {
		keys = append(keys, "status_text = ?")
		vals = append(vals, u.StatusText)
	}
	if u.Details != nil {
		keys = append(keys, "details = ?")
		vals = append(vals, u.Details)
	}
	if u.Completion != nil {
		keys = append(keys, "completion = ?")
		vals = append(vals, u.Completion)
	}
	if u.Started != nil {
		keys = append(keys, "started = ?")
		vals = append(vals, u.Started)
	}
	if u.Finished != nil {
		keys = append(keys, "finished = ?")
		vals = append(vals, u.Finished)
	} else if u.ClearFinished {
		keys = append(keys, "finished = NULL")
	}
	if u.Owner != nil {
		keys = append(keys, "owner = ?")
		vals = append(vals, u.Owner)
	}
	if u.Params != nil {
		params, err := jsonText(u.Params)
		if err != nil {
			return err
		}
		keys = append(keys, "params = ?")
		vals = append(vals, params)
	}
	if len(keys) == 0 && u.AppendHistory == nil {
		return fmt.Errorf("need at least one parameter to update")
	}
	// The store stamps updated on every write.
	keys = append(keys, "updated = ?")
	vals = append(vals, time.Now().UTC())
	vals = append(vals, u.UUID)
	_, err := tx.Exec(`
		UPDATE jobs
		SET `+strings.Join(keys, ", ")+`
		WHERE
			uuid = ?
	`,
		vals...,
	)
	return err
}

// ClaimJob claims the oldest pending, unowned job of one of the given
// types for the owner. The select and the owner update run in one
// transaction, so two workers cannot claim the same job.
func (s *JobService) ClaimJob(owner string, types []string) (*jobman.Job, error) {
	if owner == "" {
		return nil, fmt.Errorf("claim owner required")
	}
	if len(types) == 0 {
		return nil, jobman.ErrNoJob
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(types)), ", ")
	vals := []interface{}{}
	for _, t := range types {
		vals = append(vals, t)
	}
	row := tx.QueryRow(`
		SELECT uuid FROM jobs
		WHERE
			status = 'pending' AND
			owner = '' AND
			type IN (`+marks+`)
		ORDER BY created ASC
		LIMIT 1
	`,
		vals...,
	)
	var uuid string
	err = row.Scan(&uuid)
	if err == sql.ErrNoRows {
		return nil, jobman.ErrNoJob
	}
	if err != nil {
		return nil, err
	}
	res, err := tx.Exec(`
		UPDATE jobs
		SET owner = ?, updated = ?
		WHERE uuid = ? AND owner = ''
	`,
		owner, time.Now().UTC(), uuid,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, jobman.ErrNoJob
	}
	j, err := getJob(tx, uuid)
	if err != nil {
		return nil, err
	}
	err = attachHistory(tx, j)
	if err != nil {
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return j, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
