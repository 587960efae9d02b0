package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

// JobSet is a named batch of coating jobs
type JobSet struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Jobs      []coat.Job `json:"jobs"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// JobSetSummary is a listing row without the job payload
type JobSetSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	JobCount  int       `json:"job_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveJobSet creates or replaces the named job set. The jobs are validated
// for basic shape before anything is written; replacing keeps the set's ID
// stable so runs referencing it stay attached.
func (s *Store) SaveJobSet(ctx context.Context, name string, jobs []coat.Job) (*JobSet, error) {
	if name == "" {
		return nil, errors.Mark(errors.New("job set name must not be empty"), errors.ErrInvalidRequest)
	}
	if len(jobs) == 0 {
		return nil, errors.Mark(errors.Newf("job set %q has no jobs", name), errors.ErrInvalidRequest)
	}
	list, err := coat.NewJobList(jobs...)
	if err != nil {
		return nil, errors.Wrapf(err, "job set %q", name)
	}
	if err := list.Validate(nil); err != nil {
		return nil, errors.Wrapf(err, "job set %q", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin save job set")
	}
	defer tx.Rollback()

	now := time.Now()
	set := &JobSet{Name: name, Jobs: list.Jobs(), CreatedAt: now, UpdatedAt: now}

	var existingID, createdAt string
	err = tx.QueryRowContext(ctx, "SELECT id, created_at FROM job_sets WHERE name = ?", name).
		Scan(&existingID, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		set.ID = uuid.New().String()
		_, err = tx.ExecContext(ctx,
			"INSERT INTO job_sets (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
			set.ID, name, timestamp(now), timestamp(now))
		if err != nil {
			return nil, errors.Wrapf(err, "insert job set %q", name)
		}
	case err != nil:
		return nil, errors.Wrapf(err, "look up job set %q", name)
	default:
		set.ID = existingID
		if set.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, errors.Wrapf(err, "parse created_at for job set %q", name)
		}
		if _, err = tx.ExecContext(ctx,
			"UPDATE job_sets SET updated_at = ? WHERE id = ?", timestamp(now), set.ID); err != nil {
			return nil, errors.Wrapf(err, "touch job set %q", name)
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM jobs WHERE set_id = ?", set.ID); err != nil {
			return nil, errors.Wrapf(err, "clear jobs for set %q", name)
		}
	}

	for i, job := range set.Jobs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO jobs (set_id, position, job_id, chemical, slide, priority, minutes) VALUES (?, ?, ?, ?, ?, ?, ?)",
			set.ID, i, job.ID, job.Chemical, job.Slide, job.Priority, job.Minutes)
		if err != nil {
			return nil, errors.Wrapf(err, "insert job %q into set %q", job.ID, name)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrapf(err, "commit job set %q", name)
	}
	return set, nil
}

// GetJobSet retrieves a job set by name, jobs in stored order
func (s *Store) GetJobSet(ctx context.Context, name string) (*JobSet, error) {
	var set JobSet
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM job_sets WHERE name = ?", name).
		Scan(&set.ID, &set.Name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Mark(errors.Newf("job set %q not found", name), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get job set %q", name)
	}
	if set.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at for job set %q", name)
	}
	if set.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "parse updated_at for job set %q", name)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT job_id, chemical, slide, priority, minutes FROM jobs WHERE set_id = ? ORDER BY position",
		set.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list jobs for set %q", name)
	}
	defer rows.Close()

	for rows.Next() {
		var job coat.Job
		if err := rows.Scan(&job.ID, &job.Chemical, &job.Slide, &job.Priority, &job.Minutes); err != nil {
			return nil, errors.Wrapf(err, "scan job for set %q", name)
		}
		set.Jobs = append(set.Jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate jobs for set %q", name)
	}
	return &set, nil
}

// ListJobSets returns summaries of all stored sets, newest first
func (s *Store) ListJobSets(ctx context.Context) ([]JobSetSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, COUNT(j.job_id), s.created_at, s.updated_at
		FROM job_sets s
		LEFT JOIN jobs j ON j.set_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list job sets")
	}
	defer rows.Close()

	var sets []JobSetSummary
	for rows.Next() {
		var sum JobSetSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.JobCount, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan job set summary")
		}
		if sum.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, errors.Wrapf(err, "parse created_at for job set %q", sum.Name)
		}
		if sum.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
			return nil, errors.Wrapf(err, "parse updated_at for job set %q", sum.Name)
		}
		sets = append(sets, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate job sets")
	}
	return sets, nil
}

// DeleteJobSet removes the named set and its jobs
func (s *Store) DeleteJobSet(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM job_sets WHERE name = ?", name)
	if err != nil {
		return errors.Wrapf(err, "delete job set %q", name)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete job set %q", name)
	}
	if affected == 0 {
		return errors.Mark(errors.Newf("job set %q not found", name), errors.ErrNotFound)
	}
	return nil
}
