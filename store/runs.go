package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/sequence"
)

// Run lifecycle states. A run is created queued, moves to running when a
// worker picks it up, and ends completed or failed. A queued run that is
// withdrawn before any worker touches it ends canceled.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// Run is one solve submission and its outcome
type Run struct {
	ID              string            `json:"id"`
	JobSetID        string            `json:"job_set_id,omitempty"`
	Status          string            `json:"status"`
	Strategy        sequence.Strategy `json:"strategy"`
	AnchorJob       string            `json:"anchor_job,omitempty"`
	RouteIDs        []string          `json:"route_ids,omitempty"`
	TotalCost       int               `json:"total_cost"`
	Iterations      int               `json:"iterations"`
	BudgetExhausted bool              `json:"budget_exhausted"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the run has finished, successfully or not
func (r *Run) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed ||
		r.Status == RunStatusCanceled
}

// CreateRun records a queued solve. jobSetID may be empty for ad-hoc runs
// whose jobs were submitted inline rather than loaded from a stored set.
func (s *Store) CreateRun(ctx context.Context, jobSetID string, strategy sequence.Strategy, anchorJob string) (*Run, error) {
	if _, err := sequence.ParseStrategy(string(strategy)); err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidRequest)
	}

	now := time.Now()
	run := &Run{
		ID:        uuid.New().String(),
		JobSetID:  jobSetID,
		Status:    RunStatusQueued,
		Strategy:  strategy,
		AnchorJob: anchorJob,
		CreatedAt: now,
	}

	var setID any
	if jobSetID != "" {
		setID = jobSetID
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO solve_runs (id, job_set_id, status, strategy, anchor_job, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		run.ID, setID, run.Status, string(strategy), anchorJob, timestamp(now))
	if err != nil {
		return nil, errors.Wrap(err, "create solve run")
	}
	return run, nil
}

// MarkRunStarted moves a queued run to running and stamps started_at
func (s *Store) MarkRunStarted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE solve_runs SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		RunStatusRunning, timestamp(time.Now()), id, RunStatusQueued)
	if err != nil {
		return errors.Wrapf(err, "start run %s", id)
	}
	return s.checkTransition(ctx, res, id, RunStatusRunning)
}

// CompleteRun stores the solve outcome and moves the run to completed
func (s *Store) CompleteRun(ctx context.Context, id string, result sequence.Result) error {
	route, err := json.Marshal(result.JobIDs)
	if err != nil {
		return errors.Wrapf(err, "encode route for run %s", id)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE solve_runs
		SET status = ?, route_json = ?, total_cost = ?, iterations = ?,
		    budget_exhausted = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		RunStatusCompleted, string(route), result.TotalCost, result.Iterations,
		boolToInt(result.BudgetExhausted), timestamp(time.Now()), id, RunStatusRunning)
	if err != nil {
		return errors.Wrapf(err, "complete run %s", id)
	}
	return s.checkTransition(ctx, res, id, RunStatusCompleted)
}

// FailRun records the failure and moves the run to failed. A run can fail
// from queued as well as running, since validation happens before a worker
// starts the solve.
func (s *Store) FailRun(ctx context.Context, id string, runErr error) error {
	message := "unknown error"
	if runErr != nil {
		message = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE solve_runs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)",
		RunStatusFailed, message, timestamp(time.Now()), id, RunStatusQueued, RunStatusRunning)
	if err != nil {
		return errors.Wrapf(err, "fail run %s", id)
	}
	return s.checkTransition(ctx, res, id, RunStatusFailed)
}

// CancelRun withdraws a run that no worker has picked up yet. Only queued
// runs can be canceled; a running solve finishes with its best route instead.
func (s *Store) CancelRun(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "canceled"
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE solve_runs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?",
		RunStatusCanceled, reason, timestamp(time.Now()), id, RunStatusQueued)
	if err != nil {
		return errors.Wrapf(err, "cancel run %s", id)
	}
	return s.checkTransition(ctx, res, id, RunStatusCanceled)
}

// checkTransition verifies a status UPDATE landed. Zero rows affected means
// the run is missing or already past the state the transition requires.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id, target string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "run %s", id)
	}
	if affected > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM solve_runs WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return errors.Mark(errors.Newf("run %s not found", id), errors.ErrNotFound)
	}
	if err != nil {
		return errors.Wrapf(err, "run %s", id)
	}
	return errors.Newf("run %s is %s, cannot move to %s", id, status, target)
}

const runColumns = `id, job_set_id, status, strategy, anchor_job, route_json,
	total_cost, iterations, budget_exhausted, error,
	created_at, started_at, completed_at`

// GetRun retrieves a run by ID
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM solve_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.Mark(errors.Newf("run %s not found", id), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get run %s", id)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
// limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, status string, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM solve_runs"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}
	return runs, nil
}

// CountRunsByStatus returns run counts keyed by status, for queue reporting
func (s *Store) CountRunsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM solve_runs GROUP BY status")
	if err != nil {
		return nil, errors.Wrap(err, "count runs")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan run count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate run counts")
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var strategy, createdAt string
	var jobSetID, routeJSON, runError, startedAt, completedAt sql.NullString
	var totalCost, iterations sql.NullInt64
	var budgetExhausted int

	err := row.Scan(
		&run.ID,
		&jobSetID,
		&run.Status,
		&strategy,
		&run.AnchorJob,
		&routeJSON,
		&totalCost,
		&iterations,
		&budgetExhausted,
		&runError,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Strategy = sequence.Strategy(strategy)
	run.BudgetExhausted = budgetExhausted != 0
	if jobSetID.Valid {
		run.JobSetID = jobSetID.String
	}
	if runError.Valid {
		run.Error = runError.String
	}
	if totalCost.Valid {
		run.TotalCost = int(totalCost.Int64)
	}
	if iterations.Valid {
		run.Iterations = int(iterations.Int64)
	}
	if routeJSON.Valid && routeJSON.String != "" {
		if err := json.Unmarshal([]byte(routeJSON.String), &run.RouteIDs); err != nil {
			return nil, errors.Wrapf(err, "decode route for run %s", run.ID)
		}
	}

	if run.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at for run %s", run.ID)
	}
	if startedAt.Valid {
		t, err := parseTimestamp(startedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse started_at for run %s", run.ID)
		}
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := parseTimestamp(completedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse completed_at for run %s", run.ID)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
