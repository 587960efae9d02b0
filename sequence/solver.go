// Package sequence orders coating jobs so that changeover downtime between
// chemical types is minimized. A solve builds an asymmetric cost matrix over
// the job set, chains the jobs into an open path from a fixed anchor with a
// cheapest-arc pass, and optionally polishes the path with 2-opt/Or-opt local
// search. Results are deterministic for identical inputs.
package sequence

import (
	"context"
	"time"

	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/logger"
)

// Strategy selects how much work a solve performs.
type Strategy string

const (
	// StrategyConstruction runs the cheapest-arc pass only.
	StrategyConstruction Strategy = "construction"
	// StrategyLocalSearch polishes the constructed route with
	// best-improvement 2-opt/Or-opt rounds.
	StrategyLocalSearch Strategy = "local-search"
)

// ParseStrategy maps a config string onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyConstruction:
		return StrategyConstruction, nil
	case StrategyLocalSearch:
		return StrategyLocalSearch, nil
	}
	return "", errors.Newf("unknown solver strategy %q (want %q or %q)",
		s, StrategyConstruction, StrategyLocalSearch)
}

// roundsPerJob sizes the default local-search budget. Best-improvement rarely
// needs more than a handful of rounds per job.
const roundsPerJob = 25

// SolverConfig carries the tunable parts of a solve.
type SolverConfig struct {
	// Strategy picks construction-only or construction plus local search.
	Strategy Strategy
	// MaxIterations caps local-search rounds. Zero or negative selects a
	// budget proportional to the job count.
	MaxIterations int
	// Workers bounds parallel candidate evaluation inside a round. Values
	// below 2 keep evaluation on the calling goroutine.
	Workers int
	// Trace, when set, is called as the solve enters each stage. Stages are
	// "construct" and "improve". The callback runs on the solving goroutine
	// and must return quickly.
	Trace func(stage string)
}

// DefaultSolverConfig returns the construction+local-search setup with serial
// evaluation.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Strategy:      StrategyLocalSearch,
		MaxIterations: 0,
		Workers:       1,
	}
}

func (c SolverConfig) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.Newf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// Solver runs sequencing over prepared cost matrices. It holds no state
// across calls; every Solve is independent and referentially transparent.
type Solver struct {
	Cfg SolverConfig
}

// NewSolver returns a solver with a validated configuration.
func NewSolver(cfg SolverConfig) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Solver{Cfg: cfg}, nil
}

// Result is a completed solve: the visiting order over matrix indices, the
// same order as job IDs, and the open-path total cost. BudgetExhausted marks
// a solve that stopped on its iteration cap or context rather than by
// converging; the route is still valid and complete.
type Result struct {
	Order           []int          `json:"order"`
	JobIDs          []string       `json:"job_ids"`
	TotalCost       int            `json:"total_cost"`
	Iterations      int            `json:"iterations"`
	Evaluations     int            `json:"evaluations"`
	Strategy        Strategy       `json:"strategy"`
	Duration        time.Duration  `json:"duration_ns"`
	BudgetExhausted bool           `json:"budget_exhausted"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// Solve sequences the matrix's jobs starting from the anchor index. The route
// always covers every job exactly once; forbidden transitions fail the solve
// with ErrNoFeasibleSequence rather than appearing in the route. When ctx is
// cancelled or the iteration budget runs out, the best route found so far is
// returned with BudgetExhausted set.
func (s *Solver) Solve(ctx context.Context, m *Matrix, anchor int) (Result, error) {
	start := time.Now()
	if err := s.Cfg.Validate(); err != nil {
		return Result{}, err
	}
	if m == nil || m.Len() == 0 {
		return Result{}, errors.New("empty cost matrix")
	}
	n := m.Len()
	if anchor < 0 || anchor >= n {
		return Result{}, errors.Newf("anchor index %d out of range [0, %d)", anchor, n)
	}

	if n == 1 {
		return s.finish(m, start, searchOutcome{
			order:   []int{anchor},
			cost:    0,
			stopped: "trivial",
		}, anchor, 0), nil
	}

	s.trace("construct")
	order, examined, err := cheapestArcRoute(m, anchor)
	if err != nil {
		return Result{}, errors.Wrap(err, "cheapest-arc construction")
	}
	out := searchOutcome{
		order:   order,
		cost:    m.RouteCost(order),
		evals:   1,
		stopped: "construction",
	}
	logger.SeqDebugw("route constructed",
		logger.FieldJobs, n,
		logger.FieldTotalCost, out.cost,
		logger.FieldAnchor, m.Job(anchor).ID)

	if s.Cfg.Strategy == StrategyLocalSearch {
		s.trace("improve")
		constructed := out.cost
		ls := localSearch{m: m, workers: s.Cfg.Workers, maxRounds: s.maxRounds(n)}
		polished := ls.run(ctx, out.order, out.cost)
		polished.evals += out.evals
		out = polished
		logger.SeqDebugw("local search finished",
			logger.FieldIterations, out.rounds,
			logger.FieldTotalCost, out.cost,
			"improvement", constructed-out.cost,
			"stopped", out.stopped)
	}
	return s.finish(m, start, out, anchor, examined), nil
}

func (s *Solver) maxRounds(n int) int {
	if s.Cfg.MaxIterations > 0 {
		return s.Cfg.MaxIterations
	}
	return roundsPerJob * n
}

func (s *Solver) trace(stage string) {
	if s.Cfg.Trace != nil {
		s.Cfg.Trace(stage)
	}
}

func (s *Solver) finish(m *Matrix, start time.Time, out searchOutcome, anchor, examined int) Result {
	ids := make([]string, len(out.order))
	for i, idx := range out.order {
		ids[i] = m.Job(idx).ID
	}
	return Result{
		Order:           out.order,
		JobIDs:          ids,
		TotalCost:       out.cost,
		Iterations:      out.rounds,
		Evaluations:     out.evals,
		Strategy:        s.Cfg.Strategy,
		Duration:        time.Since(start),
		BudgetExhausted: out.exhausted,
		Meta: map[string]any{
			"anchor":        m.Job(anchor).ID,
			"arcs_examined": examined,
			"moves_applied": out.moves,
			"workers":       s.Cfg.Workers,
			"stopped":       out.stopped,
		},
	}
}
