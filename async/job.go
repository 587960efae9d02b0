// Package async executes solve runs in the background. Submissions enter an
// in-memory queue, a bounded worker pool drives the solves, and every
// lifecycle transition is written through to the run store before subscribers
// hear about it.
package async

import (
	"time"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/sequence"
)

// Status represents the current state of a solve job
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Phase names the stage a running solve is in.
type Phase string

const (
	PhaseValidate  Phase = "validate"
	PhaseMatrix    Phase = "matrix"
	PhaseConstruct Phase = "construct"
	PhaseImprove   Phase = "improve"
	PhaseAssemble  Phase = "assemble"
)

// phases lists solve stages in execution order.
var phases = []Phase{PhaseValidate, PhaseMatrix, PhaseConstruct, PhaseImprove, PhaseAssemble}

// Progress reports how far through its phases a solve has come
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Request bundles everything a worker needs to execute one solve.
type Request struct {
	JobSetID   string // stored set the jobs came from, empty for inline submissions
	JobSetName string
	Jobs       []coat.Job
	Table      *coat.ChangeoverTable
	AnchorJob  string // job pinned at the route start, empty means the first job
	Config     sequence.SolverConfig
	Matrix     *sequence.MatrixOptions // nil uses DefaultMatrixOptions
}

// Job is one solve run moving through the queue. The solve_runs row is the
// durable record; the Job carries the in-memory inputs plus live progress for
// subscribers. Inputs never leave the process, so a job cannot outlive it.
type Job struct {
	RunID      string             `json:"run_id"`
	JobSetID   string             `json:"job_set_id,omitempty"`
	JobSetName string             `json:"job_set_name,omitempty"`
	JobCount   int                `json:"job_count"`
	Strategy   sequence.Strategy  `json:"strategy"`
	Status     Status             `json:"status"`
	Phase      Phase              `json:"phase,omitempty"`
	Progress   Progress           `json:"progress"`
	Error      string             `json:"error,omitempty"`
	Result     *sequence.Result   `json:"result,omitempty"`
	Timeline   *sequence.Timeline `json:"timeline,omitempty"`
	MemoryMB   float64            `json:"memory_mb,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	request Request
}

// NewJob wraps a validated request into a queued job. The run ID comes from
// the store row created for this submission.
func NewJob(runID string, req Request) *Job {
	req.Jobs = append([]coat.Job(nil), req.Jobs...)
	now := time.Now()
	return &Job{
		RunID:      runID,
		JobSetID:   req.JobSetID,
		JobSetName: req.JobSetName,
		JobCount:   len(req.Jobs),
		Strategy:   req.Config.Strategy,
		Status:     StatusQueued,
		Progress:   Progress{Current: 0, Total: len(phases)},
		CreatedAt:  now,
		UpdatedAt:  now,
		request:    req,
	}
}

// Terminal reports whether the job has finished, successfully or not
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCanceled
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// SetPhase records the stage the solve has entered
func (j *Job) SetPhase(p Phase) {
	j.Phase = p
	for i, known := range phases {
		if known == p {
			j.Progress.Current = i + 1
			break
		}
	}
	j.UpdatedAt = time.Now()
}

// Complete marks the job as completed with its solve outcome
func (j *Job) Complete(res *sequence.Result, tl *sequence.Timeline, memoryMB float64) {
	now := time.Now()
	j.Status = StatusCompleted
	j.Result = res
	j.Timeline = tl
	j.MemoryMB = memoryMB
	j.Progress.Current = j.Progress.Total
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = StatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as canceled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = StatusCanceled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}
