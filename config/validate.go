package config

import (
	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/sequence"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Chemical label set: bounds match what a changeover table accepts
	if n := len(c.Coating.Chemicals); n < coat.MinChemicals || n > coat.MaxChemicals {
		return errors.Newf("coating.chemicals must list %d..%d labels, got %d",
			coat.MinChemicals, coat.MaxChemicals, n)
	}
	seen := make(map[string]bool, len(c.Coating.Chemicals))
	for _, label := range c.Coating.Chemicals {
		if label == "" {
			return errors.New("coating.chemicals must not contain empty labels")
		}
		if seen[label] {
			return errors.Newf("coating.chemicals lists %q twice", label)
		}
		seen[label] = true
	}
	if c.Coating.DefaultChangeoverMinutes < 0 {
		return errors.Newf("coating.default_changeover_minutes must be >= 0, got %d",
			c.Coating.DefaultChangeoverMinutes)
	}

	// Solver: strategy names live with the solver
	if _, err := sequence.ParseStrategy(c.Solver.Strategy); err != nil {
		return errors.Wrap(err, "solver.strategy")
	}
	if c.Solver.MaxIterations < 0 {
		return errors.Newf("solver.max_iterations must be >= 0, got %d", c.Solver.MaxIterations)
	}
	if c.Solver.Workers < 0 {
		return errors.Newf("solver.workers must be >= 0, got %d", c.Solver.Workers)
	}
	if c.Solver.DeadlineMS < 0 {
		return errors.Newf("solver.deadline_ms must be >= 0, got %d", c.Solver.DeadlineMS)
	}
	// -1 disables the fallback; any other negative value is a typo
	if c.Solver.FallbackChangeover < -1 {
		return errors.Newf("solver.fallback_changeover must be -1 (strict) or >= 0, got %d",
			c.Solver.FallbackChangeover)
	}

	// Async workers: 0 = no background workers, negative = invalid
	if c.Async.Workers < 0 {
		return errors.Newf("async.workers must be >= 0, got %d", c.Async.Workers)
	}
	if c.Async.QueueSize < 0 {
		return errors.Newf("async.queue_size must be >= 0, got %d", c.Async.QueueSize)
	}

	// Server port: 0 falls back to the default, negative is invalid
	if c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return errors.Newf("server.rate_limit_per_minute must be >= 0, got %d",
			c.Server.RateLimitPerMinute)
	}
	if c.Server.RateBurst < 0 {
		return errors.Newf("server.rate_burst must be >= 0, got %d", c.Server.RateBurst)
	}

	return nil
}

// SequenceSolverConfig converts the solver section into the engine's typed
// configuration
func (c *Config) SequenceSolverConfig() sequence.SolverConfig {
	return sequence.SolverConfig{
		Strategy:      sequence.Strategy(c.Solver.Strategy),
		MaxIterations: c.Solver.MaxIterations,
		Workers:       c.Solver.Workers,
	}
}

// MatrixOptions converts the solver section into cost-matrix options
func (c *Config) MatrixOptions() sequence.MatrixOptions {
	return sequence.MatrixOptions{FallbackMinutes: c.Solver.FallbackChangeover}
}
