package solver

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func intVar(name string, concrete int64) *symbolic.Variable {
	return symbolic.NewIntVariable(name, concrete, math.MinInt32, math.MaxInt32)
}

func newTestSolver(maxIterations int) *SearchSolver {
	cfg := config.GetDefaultProjectConfig().Generation.Solver
	cfg.TimeoutMillis = 5000
	cfg.MaxIterations = maxIterations
	return NewSearchSolver(cfg, rand.New(rand.NewSource(1)))
}

// TestRangeSolverDecidesBounds verifies that queries made of variable bounds are decided without search, picking the
// admissible value closest to the concrete one.
func TestRangeSolverDecidesBounds(t *testing.T) {
	x := intVar("var0", 5)

	result, ok := RangeSolver{}.Decide([]symbolic.Constraint{symbolic.NewIntConstraint(x, symbolic.LE, symbolic.IntConst(0))})
	require.True(t, ok)
	model, err := result.Model()
	require.NoError(t, err)
	assert.Equal(t, symbolic.Assignment{"var0": int64(0)}, model)

	result, ok = RangeSolver{}.Decide([]symbolic.Constraint{
		symbolic.NewIntConstraint(x, symbolic.GE, symbolic.IntConst(0)),
		symbolic.NewIntConstraint(symbolic.IntConst(2), symbolic.GE, x),
		symbolic.NewIntConstraint(x, symbolic.NE, symbolic.IntConst(2)),
		symbolic.NewIntConstraint(x, symbolic.NE, symbolic.IntConst(1)),
	})
	require.True(t, ok)
	model, err = result.Model()
	require.NoError(t, err)
	assert.Equal(t, int64(0), model["var0"])

	// Conflicting bounds prove the query unsatisfiable even next to constraints which are not bounds
	y := intVar("var1", 0)
	result, ok = RangeSolver{}.Decide([]symbolic.Constraint{
		symbolic.NewIntConstraint(x, symbolic.GT, symbolic.IntConst(3)),
		symbolic.NewIntConstraint(symbolic.NewIntBinary(symbolic.Mul, y, y), symbolic.EQ, symbolic.IntConst(4)),
		symbolic.NewIntConstraint(x, symbolic.LT, symbolic.IntConst(2)),
	})
	require.True(t, ok)
	assert.True(t, result.IsUNSAT())
	_, err = result.Model()
	assert.ErrorIs(t, err, ErrNotSatisfiable)

	// Bounds outside the domain of the variable cannot be met
	result, ok = RangeSolver{}.Decide([]symbolic.Constraint{symbolic.NewIntConstraint(x, symbolic.GT, symbolic.IntConst(math.MaxInt32))})
	require.True(t, ok)
	assert.True(t, result.IsUNSAT())

	_, ok = RangeSolver{}.Decide([]symbolic.Constraint{
		symbolic.NewIntConstraint(symbolic.NewIntBinary(symbolic.Mul, y, y), symbolic.EQ, symbolic.IntConst(4)),
	})
	assert.False(t, ok)
}

// TestSearchSolverSatisfiesNonlinearConstraints verifies the search finds a model where interval reasoning cannot.
func TestSearchSolverSatisfiesNonlinearConstraints(t *testing.T) {
	x := intVar("var0", 0)
	constraints := []symbolic.Constraint{
		symbolic.NewIntConstraint(symbolic.NewIntBinary(symbolic.Mul, x, x), symbolic.EQ, symbolic.IntConst(49)),
	}

	result, err := newTestSolver(10000).Solve(context.Background(), constraints)
	require.NoError(t, err)
	model, err := result.Model()
	require.NoError(t, err)
	assert.Contains(t, []int64{7, -7}, model["var0"])
	assert.Zero(t, constraints[0].Distance(model))
}

// TestSearchSolverSatisfiesStringConstraints verifies strings are grown towards the constants they are compared to.
func TestSearchSolverSatisfiesStringConstraints(t *testing.T) {
	s := symbolic.NewStringVariable("var0", "")
	constraints := []symbolic.Constraint{
		symbolic.NewStringConstraint(s, symbolic.StringEquals, symbolic.EQ, symbolic.StringConst("hi")),
	}

	result, err := newTestSolver(10000).Solve(context.Background(), constraints)
	require.NoError(t, err)
	model, err := result.Model()
	require.NoError(t, err)
	assert.Equal(t, "hi", model["var0"])
}

// TestSearchSolverGivesUp verifies a query without integer solutions is left undecided once the budget runs out.
func TestSearchSolverGivesUp(t *testing.T) {
	x := intVar("var0", 0)
	constraints := []symbolic.Constraint{
		symbolic.NewIntConstraint(symbolic.NewIntBinary(symbolic.Mul, x, x), symbolic.EQ, symbolic.IntConst(2)),
	}

	_, err := newTestSolver(500).Solve(context.Background(), constraints)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsNoResult(err))

	_, err = newTestSolver(500).Solve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.True(t, IsNoResult(err))
}

// countingSolver answers every query with a fixed outcome and counts the queries it received.
type countingSolver struct {
	calls  int
	result *Result
	err    error
}

func (s *countingSolver) Solve(context.Context, []symbolic.Constraint) (*Result, error) {
	s.calls++
	return s.result, s.err
}

// TestCachedSolverMemoizesDecidedQueries verifies decided queries are answered from the cache while undecided ones
// are retried.
func TestCachedSolverMemoizesDecidedQueries(t *testing.T) {
	x := intVar("var0", 5)
	query := []symbolic.Constraint{symbolic.NewIntConstraint(x, symbolic.LE, symbolic.IntConst(0))}

	inner := &countingSolver{result: NewUNSAT()}
	cached := NewCachedSolver(inner, NewMemoryCache())
	for i := 0; i < 3; i++ {
		result, err := cached.Solve(context.Background(), query)
		require.NoError(t, err)
		assert.True(t, result.IsUNSAT())
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, CacheStats{Queries: 3, Hits: 2, UNSAT: 3}, cached.Stats())

	failing := &countingSolver{err: ErrTimeout}
	cached = NewCachedSolver(failing, NewMemoryCache())
	for i := 0; i < 2; i++ {
		_, err := cached.Solve(context.Background(), query)
		assert.ErrorIs(t, err, ErrTimeout)
	}
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, uint64(2), cached.Stats().NoResult)
	require.NoError(t, cached.Close())
}

// TestPersistentCacheSurvivesReopening verifies buffered results are flushed on close and read back with their
// original value types.
func TestPersistentCacheSurvivesReopening(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	directory := t.TempDir()

	cache, err := OpenPersistentCache(ctx, directory, 10)
	require.NoError(t, err)
	model := symbolic.Assignment{"var0": int64(-3), "var1": 2.5, "var2": "hi"}
	require.NoError(t, cache.Put("sat", NewSAT(model)))
	require.NoError(t, cache.Put("unsat", NewUNSAT()))
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())

	cache, err = OpenPersistentCache(ctx, directory, 10)
	require.NoError(t, err)
	defer cache.Close()

	result, ok, err := cache.Get("sat")
	require.NoError(t, err)
	require.True(t, ok)
	restored, err := result.Model()
	require.NoError(t, err)
	assert.Equal(t, model, restored)

	result, ok, err = cache.Get("unsat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, result.IsUNSAT())

	_, ok, err = cache.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPersistentCacheDiscardsIncompatibleResults verifies results written by an incompatible version are dropped.
func TestPersistentCacheDiscardsIncompatibleResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	directory := t.TempDir()

	cache, err := OpenPersistentCache(ctx, directory, 1)
	require.NoError(t, err)
	require.NoError(t, cache.Put("unsat", NewUNSAT()))
	require.NoError(t, cache.Close())

	db, err := bbolt.Open(filepath.Join(directory, cacheFileName), 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put(versionKey, []byte("99.0.0"))
	}))
	require.NoError(t, db.Close())

	cache, err = OpenPersistentCache(ctx, directory, 1)
	require.NoError(t, err)
	defer cache.Close()
	_, ok, err := cache.Get("unsat")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCacheKeysIgnoreConstraintOrder verifies reordered queries share cache entries.
func TestCacheKeysIgnoreConstraintOrder(t *testing.T) {
	x := intVar("var0", 5)
	a := symbolic.NewIntConstraint(x, symbolic.GE, symbolic.IntConst(0))
	b := symbolic.NewIntConstraint(x, symbolic.LE, symbolic.IntConst(3))

	inner := &countingSolver{result: NewSAT(symbolic.Assignment{"var0": int64(3)})}
	cached := NewCachedSolver(inner, NewMemoryCache())
	_, err := cached.Solve(context.Background(), []symbolic.Constraint{a, b})
	require.NoError(t, err)
	_, err = cached.Solve(context.Background(), []symbolic.Constraint{b, a})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}
