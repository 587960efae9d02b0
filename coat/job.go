// Package coat holds the domain model for coating jobs: job records, the
// caller-owned job list, and the chemical changeover table. Everything here is
// plain data with validation; cost computation and sequencing live in the
// sequence package.
package coat

import (
	"github.com/teranos/smartcoat/errors"
)

// Priority bounds. 1 is the most urgent.
const (
	PriorityUrgent = 1
	PriorityNormal = 2
	PriorityLow    = 3
)

// Sentinel errors for input validation. Check with errors.Is.
var (
	// ErrInvalidJob marks a job record rejected at validation
	// (bad ID, priority, duration, or unknown chemical type).
	ErrInvalidJob = errors.New("invalid job record")

	// ErrMissingChangeover marks an undefined changeover pair lookup.
	ErrMissingChangeover = errors.New("missing changeover entry")
)

// Job is one coating job to be sequenced on the shared line.
// Jobs are immutable during a solve; the solver and timeline assembler
// only ever read them.
type Job struct {
	ID       string `json:"id"`       // unique within a job set
	Chemical string `json:"chemical"` // member of the configured chemical label set
	Slide    string `json:"slide"`    // free-form category tag, not used in cost computation
	Priority int    `json:"priority"` // 1..3, 1 most urgent
	Minutes  int    `json:"minutes"`  // estimated processing time, positive
}

// PriorityWeight returns the cost divisor for a priority: 4 - p.
// Urgent jobs divide by 3, making them artificially cheaper to reach
// and biasing the search toward visiting them earlier.
func PriorityWeight(priority int) int {
	return 4 - priority
}

// Validate checks a single job record. chemicals is the configured label set;
// pass nil to skip the membership check (used before a table is configured).
func (j Job) Validate(chemicals []string) error {
	if j.ID == "" {
		return errors.Mark(errors.New("job ID must not be empty"), ErrInvalidJob)
	}
	if j.Priority < PriorityUrgent || j.Priority > PriorityLow {
		return errors.Mark(
			errors.Newf("job %q: priority %d out of range [%d, %d]", j.ID, j.Priority, PriorityUrgent, PriorityLow),
			ErrInvalidJob)
	}
	if j.Minutes <= 0 {
		return errors.Mark(
			errors.Newf("job %q: estimated minutes must be positive, got %d", j.ID, j.Minutes),
			ErrInvalidJob)
	}
	if j.Chemical == "" {
		return errors.Mark(errors.Newf("job %q: chemical type must not be empty", j.ID), ErrInvalidJob)
	}
	if chemicals != nil && !containsLabel(chemicals, j.Chemical) {
		err := errors.Mark(
			errors.Newf("job %q: unknown chemical type %q", j.ID, j.Chemical),
			ErrInvalidJob)
		return errors.WithDetailf(err, "configured chemical types: %v", chemicals)
	}
	return nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
