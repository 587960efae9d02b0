package sequence

import (
	"math"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

// Forbidden is the matrix sentinel for a transition that may never appear in
// a route. It is a marker, not a cost; arithmetic never mixes it with real
// entries.
const Forbidden = math.MaxInt32

// MatrixOptions controls how changeover lookups are resolved while building
// a cost matrix.
type MatrixOptions struct {
	// FallbackMinutes substitutes for changeover pairs absent from the
	// table. Negative disables the fallback, making an undefined pair a
	// hard error. Forbidden pairs are never resolved through the
	// fallback.
	FallbackMinutes int
}

// DefaultMatrixOptions returns options with the fallback disabled.
func DefaultMatrixOptions() MatrixOptions {
	return MatrixOptions{FallbackMinutes: -1}
}

// Matrix holds the directed transition cost between every ordered pair of
// jobs. Entries are non-negative integers with a zero diagonal; blocked
// transitions carry the Forbidden sentinel. The matrix is asymmetric because
// the divisor depends on the destination job's priority.
type Matrix struct {
	n    int
	cost []int // row-major, n*n
	gap  []int // raw changeover minutes per arc, same layout
	jobs []coat.Job
}

// BuildMatrix computes the cost matrix for a job set against a changeover
// table:
//
//	cost(i, j) = (minutes(j) + changeover(chem(i), chem(j))) / (4 - priority(j))
//
// using integer (truncating) division. Every job is validated against the
// table's chemical set first. An undefined changeover pair aborts the build
// with coat.ErrMissingChangeover unless opts.FallbackMinutes is enabled.
func BuildMatrix(jobs []coat.Job, table *coat.ChangeoverTable, opts MatrixOptions) (*Matrix, error) {
	if len(jobs) == 0 {
		return nil, errors.New("cost matrix requires at least one job")
	}
	if table == nil {
		return nil, errors.New("cost matrix requires a changeover table")
	}
	chemicals := table.Chemicals()
	for i, j := range jobs {
		if err := j.Validate(chemicals); err != nil {
			return nil, errors.Wrapf(err, "job record %d", i)
		}
	}

	n := len(jobs)
	m := &Matrix{
		n:    n,
		cost: make([]int, n*n),
		gap:  make([]int, n*n),
		jobs: append([]coat.Job(nil), jobs...),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			from, to := jobs[i].Chemical, jobs[j].Chemical
			if table.IsForbidden(from, to) {
				m.cost[i*n+j] = Forbidden
				m.gap[i*n+j] = Forbidden
				continue
			}
			minutes, err := table.Minutes(from, to)
			if err != nil {
				if opts.FallbackMinutes >= 0 && errors.Is(err, coat.ErrMissingChangeover) {
					minutes = opts.FallbackMinutes
				} else {
					return nil, errors.Wrapf(err, "cost %s->%s", jobs[i].ID, jobs[j].ID)
				}
			}
			weight := coat.PriorityWeight(jobs[j].Priority)
			m.cost[i*n+j] = (jobs[j].Minutes + minutes) / weight
			m.gap[i*n+j] = minutes
		}
	}
	return m, nil
}

// Len returns the number of jobs the matrix covers.
func (m *Matrix) Len() int {
	return m.n
}

// Cost returns the directed transition cost from job i to job j.
func (m *Matrix) Cost(i, j int) int {
	return m.cost[i*m.n+j]
}

// GapMinutes returns the raw changeover minutes resolved for the arc i->j,
// before priority weighting. Forbidden arcs carry the sentinel.
func (m *Matrix) GapMinutes(i, j int) int {
	return m.gap[i*m.n+j]
}

// IsForbidden reports whether the arc i->j is blocked.
func (m *Matrix) IsForbidden(i, j int) bool {
	return m.cost[i*m.n+j] == Forbidden
}

// Job returns the job at index i.
func (m *Matrix) Job(i int) coat.Job {
	return m.jobs[i]
}

// Jobs returns a copy of the job slice the matrix was built from, in index
// order.
func (m *Matrix) Jobs() []coat.Job {
	return append([]coat.Job(nil), m.jobs...)
}

// RouteCost returns the open-path total over the route's consecutive arcs,
// or Forbidden when any arc on it is blocked. There is no closing arc back
// to the start.
func (m *Matrix) RouteCost(order []int) int {
	total := 0
	for k := 0; k+1 < len(order); k++ {
		c := m.Cost(order[k], order[k+1])
		if c == Forbidden {
			return Forbidden
		}
		total += c
	}
	return total
}
