package sequence

import (
	"sort"

	"github.com/teranos/smartcoat/errors"
)

// ErrNoFeasibleSequence reports that the construction pass could not complete
// a route without crossing a forbidden transition.
var ErrNoFeasibleSequence = errors.New("no feasible sequence")

type arc struct {
	cost int
	from int
	to   int
}

// cheapestArcRoute builds an open path over all jobs by greedy arc insertion.
// All finite arcs are processed in ascending (cost, from, to) order; an arc is
// accepted iff its tail has no successor, its head has no predecessor, the
// head is not the anchor, and it does not close a cycle. The ordering makes
// the pass fully deterministic. Returns the route and the number of arcs
// examined.
func cheapestArcRoute(m *Matrix, anchor int) ([]int, int, error) {
	n := m.Len()
	if n == 1 {
		return []int{anchor}, 0, nil
	}

	arcs := make([]arc, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || j == anchor {
				continue
			}
			c := m.Cost(i, j)
			if c == Forbidden {
				continue
			}
			arcs = append(arcs, arc{cost: c, from: i, to: j})
		}
	}
	sort.Slice(arcs, func(a, b int) bool {
		if arcs[a].cost != arcs[b].cost {
			return arcs[a].cost < arcs[b].cost
		}
		if arcs[a].from != arcs[b].from {
			return arcs[a].from < arcs[b].from
		}
		return arcs[a].to < arcs[b].to
	})

	next := make([]int, n)
	prev := make([]int, n)
	// startOf[e] is the first node of the chain ending at e; endOf[s] the
	// last node of the chain starting at s. Singletons point at themselves.
	startOf := make([]int, n)
	endOf := make([]int, n)
	for i := 0; i < n; i++ {
		next[i], prev[i] = -1, -1
		startOf[i], endOf[i] = i, i
	}

	accepted := 0
	examined := 0
	for _, a := range arcs {
		examined++
		if next[a.from] != -1 || prev[a.to] != -1 {
			continue
		}
		// a.from is the end of its chain, a.to the start of its own.
		// Linking them closes a cycle iff they already share a chain.
		if startOf[a.from] == a.to {
			continue
		}
		next[a.from] = a.to
		prev[a.to] = a.from
		s, e := startOf[a.from], endOf[a.to]
		startOf[e] = s
		endOf[s] = e
		accepted++
		if accepted == n-1 {
			break
		}
	}
	if accepted != n-1 {
		return nil, examined, errors.Mark(
			errors.Newf("could not chain %d jobs into a route, %d of %d arcs placed", n, accepted, n-1),
			ErrNoFeasibleSequence)
	}

	// The anchor never receives a predecessor, so the single remaining
	// chain starts there.
	order := make([]int, 0, n)
	for at := anchor; at != -1; at = next[at] {
		order = append(order, at)
	}
	if len(order) != n {
		return nil, examined, errors.AssertionFailedf(
			"constructed route covers %d of %d jobs", len(order), n)
	}
	return order, examined, nil
}
