package sequence

import (
	"context"
	"sync"
)

type moveKind int

const (
	moveReverse  moveKind = iota // 2-opt: reverse order[i..j]
	moveRelocate                 // Or-opt: remove order[i], reinsert at j
)

// A move is a candidate modification of the current route. Position 0 is the
// anchor and never moves.
type move struct {
	kind moveKind
	i, j int
	cost int // full route cost after applying, Forbidden if infeasible
}

// better orders moves by (cost, kind, i, j). The total order makes the chosen
// move independent of evaluation order, so parallel and serial runs pick the
// same one.
func (mv move) better(other move) bool {
	if mv.cost != other.cost {
		return mv.cost < other.cost
	}
	if mv.kind != other.kind {
		return mv.kind < other.kind
	}
	if mv.i != other.i {
		return mv.i < other.i
	}
	return mv.j < other.j
}

// localSearch runs best-improvement rounds over 2-opt reversals and Or-opt
// single-node relocations. Each round evaluates every candidate, then applies
// the single best strictly improving move; evaluation may fan out across a
// bounded worker pool but application is always serialized. The matrix is
// asymmetric, so a reversal reprices every arc inside the segment; candidates
// are therefore costed over the full route rather than by arc deltas.
type localSearch struct {
	m         *Matrix
	workers   int
	maxRounds int
}

type searchOutcome struct {
	order     []int
	cost      int
	rounds    int
	evals     int
	moves     int
	exhausted bool
	stopped   string
}

func (ls localSearch) run(ctx context.Context, order []int, cost int) searchOutcome {
	out := searchOutcome{order: order, cost: cost, stopped: "converged"}
	n := len(order)
	if n < 3 {
		return out
	}
	candidates := enumerateMoves(n)

	for {
		if ctx.Err() != nil {
			out.exhausted = true
			out.stopped = "context"
			return out
		}
		best, ok := ls.bestMove(candidates, out.order)
		out.rounds++
		out.evals += len(candidates)
		if !ok || best.cost >= out.cost {
			return out
		}
		out.order = applyMove(make([]int, n), out.order, best)
		out.cost = best.cost
		out.moves++
		if out.rounds >= ls.maxRounds {
			out.exhausted = true
			out.stopped = "iterations"
			return out
		}
	}
}

// enumerateMoves lists every candidate for a route of length n, in a fixed
// order. Reversals cover 1 <= i < j < n; relocations cover all i != j in
// [1, n).
func enumerateMoves(n int) []move {
	moves := make([]move, 0, n*n)
	for i := 1; i < n; i++ {
		for j := i + 1; j < n; j++ {
			moves = append(moves, move{kind: moveReverse, i: i, j: j})
		}
	}
	for i := 1; i < n; i++ {
		for j := 1; j < n; j++ {
			if i == j {
				continue
			}
			moves = append(moves, move{kind: moveRelocate, i: i, j: j})
		}
	}
	return moves
}

// bestMove costs every candidate against the current route and returns the
// cheapest feasible one.
func (ls localSearch) bestMove(candidates []move, order []int) (move, bool) {
	workers := ls.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers <= 1 {
		return evaluateRange(ls.m, candidates, order, make([]int, len(order)))
	}

	type slot struct {
		mv move
		ok bool
	}
	found := make([]slot, workers)
	var wg sync.WaitGroup
	per := (len(candidates) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * per
		hi := lo + per
		if hi > len(candidates) {
			hi = len(candidates)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			mv, ok := evaluateRange(ls.m, candidates[lo:hi], order, make([]int, len(order)))
			found[w] = slot{mv: mv, ok: ok}
		}(w, lo, hi)
	}
	wg.Wait()

	var best move
	ok := false
	for _, s := range found {
		if !s.ok {
			continue
		}
		if !ok || s.mv.better(best) {
			best = s.mv
			ok = true
		}
	}
	return best, ok
}

func evaluateRange(m *Matrix, candidates []move, order, scratch []int) (move, bool) {
	var best move
	ok := false
	for _, mv := range candidates {
		applyMove(scratch, order, mv)
		mv.cost = m.RouteCost(scratch)
		if mv.cost == Forbidden {
			continue
		}
		if !ok || mv.better(best) {
			best = mv
			ok = true
		}
	}
	return best, ok
}

// applyMove writes src with the move applied into dst and returns dst.
func applyMove(dst, src []int, mv move) []int {
	copy(dst, src)
	switch mv.kind {
	case moveReverse:
		for l, r := mv.i, mv.j; l < r; l, r = l+1, r-1 {
			dst[l], dst[r] = dst[r], dst[l]
		}
	case moveRelocate:
		v := src[mv.i]
		if mv.i < mv.j {
			copy(dst[mv.i:mv.j], src[mv.i+1:mv.j+1])
		} else {
			copy(dst[mv.j+1:mv.i+1], src[mv.j:mv.i])
		}
		dst[mv.j] = v
	}
	return dst
}
