package coat

import (
	"github.com/teranos/smartcoat/errors"
)

// JobList is a caller-owned collection of jobs. Append and Clear return new
// values rather than mutating in place, so a solve always sees exactly the
// list it was handed and no process-wide state accumulates between calls.
type JobList struct {
	jobs []Job
}

// NewJobList builds a list from the given jobs. Duplicate IDs are rejected.
func NewJobList(jobs ...Job) (JobList, error) {
	l := JobList{}
	for _, j := range jobs {
		next, err := l.Append(j)
		if err != nil {
			return JobList{}, err
		}
		l = next
	}
	return l, nil
}

// Append returns a new list with the job added. The receiver is unchanged.
// A job whose ID is already present is rejected.
func (l JobList) Append(j Job) (JobList, error) {
	if j.ID == "" {
		return JobList{}, errors.Mark(errors.New("job ID must not be empty"), ErrInvalidJob)
	}
	for _, existing := range l.jobs {
		if existing.ID == j.ID {
			return JobList{}, errors.Mark(
				errors.Newf("duplicate job ID %q", j.ID),
				ErrInvalidJob)
		}
	}
	next := make([]Job, len(l.jobs)+1)
	copy(next, l.jobs)
	next[len(l.jobs)] = j
	return JobList{jobs: next}, nil
}

// Clear returns an empty list. The receiver is unchanged.
func (l JobList) Clear() JobList {
	return JobList{}
}

// Jobs returns a copy of the jobs in input order.
func (l JobList) Jobs() []Job {
	out := make([]Job, len(l.jobs))
	copy(out, l.jobs)
	return out
}

// Len returns the number of jobs in the list.
func (l JobList) Len() int {
	return len(l.jobs)
}

// ByID returns the job with the given ID, if present.
func (l JobList) ByID(id string) (Job, bool) {
	for _, j := range l.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// Validate checks every record against the configured chemical label set and
// re-checks ID uniqueness. Fails fast on the first offending record so the
// caller sees the exact field that was rejected.
func (l JobList) Validate(chemicals []string) error {
	seen := make(map[string]bool, len(l.jobs))
	for i, j := range l.jobs {
		if err := j.Validate(chemicals); err != nil {
			return errors.Wrapf(err, "record %d", i+1)
		}
		if seen[j.ID] {
			return errors.Mark(errors.Newf("record %d: duplicate job ID %q", i+1, j.ID), ErrInvalidJob)
		}
		seen[j.ID] = true
	}
	return nil
}
