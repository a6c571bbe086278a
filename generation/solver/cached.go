package solver

import (
	"context"
	"math/rand"
	"sync/atomic"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/logging"
)

// CacheStats describes the counters of a CachedSolver.
type CacheStats struct {
	// Queries counts every query submitted.
	Queries uint64
	// Hits counts queries answered from the cache.
	Hits uint64
	// SAT and UNSAT count decided queries by outcome, including cache hits.
	SAT, UNSAT uint64
	// NoResult counts queries left undecided.
	NoResult uint64
}

// CachedSolver memoizes the decided queries of an underlying Solver. Undecided queries are not memoized, so they can
// be retried with a different budget.
type CachedSolver struct {
	solver Solver
	// cache is nil when memoization is disabled.
	cache Cache

	queries  atomic.Uint64
	hits     atomic.Uint64
	sat      atomic.Uint64
	unsat    atomic.Uint64
	noResult atomic.Uint64

	logger *logging.Logger
}

// NewCachedSolver wraps solver with cache. A nil cache disables memoization.
func NewCachedSolver(solver Solver, cache Cache) *CachedSolver {
	return &CachedSolver{
		solver: solver,
		cache:  cache,
		logger: logging.GlobalLogger.NewSubLogger("module", logging.SOLVER_SERVICE),
	}
}

// NewFromConfig builds the configured solver stack: a SearchSolver behind a memory or persistent cache.
func NewFromConfig(ctx context.Context, cfg config.SolverConfig, random *rand.Rand) (*CachedSolver, error) {
	var cache Cache
	if cfg.CacheEnabled {
		if cfg.CacheDirectory != "" {
			persistent, err := OpenPersistentCache(ctx, cfg.CacheDirectory, cfg.CacheFlushThreshold)
			if err != nil {
				return nil, err
			}
			cache = persistent
		} else {
			cache = NewMemoryCache()
		}
	}
	return NewCachedSolver(NewSearchSolver(cfg, random), cache), nil
}

func (s *CachedSolver) Solve(ctx context.Context, constraints []symbolic.Constraint) (*Result, error) {
	s.queries.Add(1)
	if err := checkQuery(constraints); err != nil {
		s.noResult.Add(1)
		return nil, err
	}

	key := symbolic.Key(constraints)
	if s.cache != nil {
		result, ok, err := s.cache.Get(key)
		if err != nil {
			s.logger.Warn("Solver cache lookup failed", err)
		} else if ok {
			s.hits.Add(1)
			s.count(result)
			return result, nil
		}
	}

	result, err := s.solver.Solve(ctx, constraints)
	if err != nil {
		s.noResult.Add(1)
		return nil, err
	}
	s.count(result)
	if s.cache != nil {
		if err = s.cache.Put(key, result); err != nil {
			s.logger.Warn("Failed to store solver result", err)
		}
	}
	return result, nil
}

func (s *CachedSolver) count(result *Result) {
	if result.IsSAT() {
		s.sat.Add(1)
	} else {
		s.unsat.Add(1)
	}
}

// Stats returns a snapshot of the solver counters.
func (s *CachedSolver) Stats() CacheStats {
	return CacheStats{
		Queries:  s.queries.Load(),
		Hits:     s.hits.Load(),
		SAT:      s.sat.Load(),
		UNSAT:    s.unsat.Load(),
		NoResult: s.noResult.Load(),
	}
}

// Close closes the cache, if any.
func (s *CachedSolver) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}
