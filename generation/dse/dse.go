// Package dse improves test suites by negating branch conditions observed during concolic execution and
// materializing solutions of the negated path conditions as new tests.
package dse

import (
	"context"
	"math/rand"
	"sync"

	"github.com/crytic/evosynth/events"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/solver"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/logging/colors"
	"github.com/pkg/errors"
)

// SymbolicPathExtractor returns the branch conditions a test reaches, in execution order.
type SymbolicPathExtractor interface {
	SymbolicPath(ctx context.Context, tc *testcase.TestCase) ([]*symbolic.BranchCondition, error)
}

// SuiteFitness evaluates a test suite. Lower values are better.
type SuiteFitness interface {
	Fitness(ctx context.Context, suite *testcase.TestSuite) (float64, error)
}

// TestGeneratedEvent is published when a negated branch condition yields a test which is added to the suite.
type TestGeneratedEvent struct {
	// Test is the generated test.
	Test *testcase.TestCase
	// Branch is the branch whose condition was negated.
	Branch symbolic.BranchID
	// Fitness is the fitness of the suite after the test was added.
	Fitness float64
}

// Stats describes the counters of a TestSuiteDSE across its invocations.
type Stats struct {
	// Invocations counts calls to ApplyDSE.
	Invocations uint64
	// Attempts counts candidates taken from the worklist.
	Attempts uint64
	// Unsolvable counts negated conditions rejected without calling the solver.
	Unsolvable uint64
	// SAT, UNSAT and NoResult count solver outcomes.
	SAT, UNSAT, NoResult uint64
	// Kept and Discarded count the tests obtained from satisfiable models.
	Kept, Discarded uint64
}

// outcome describes the result of negating one candidate.
type outcome int

const (
	outcomeNoResult outcome = iota
	outcomeUNSAT
	outcomeSAT
)

// TestSuiteDSE applies the concolic negation loop to test suites. Branch conditions proven unsatisfiable are
// remembered for the lifetime of the TestSuiteDSE, while solution attempt counters only last one invocation.
type TestSuiteDSE struct {
	config  config.DSEConfig
	solver  solver.Solver
	paths   SymbolicPathExtractor
	fitness SuiteFitness
	random  *rand.Rand

	// unsolvable holds the keys of conditions whose negation was proven unsatisfiable.
	unsolvable map[string]bool

	// Events exposes the events published while the loop runs.
	Events struct {
		TestGenerated events.EventEmitter[TestGeneratedEvent]
	}

	statsLock sync.Mutex
	stats     Stats

	logger *logging.Logger
}

// NewTestSuiteDSE returns a TestSuiteDSE using the given collaborators.
func NewTestSuiteDSE(cfg config.DSEConfig, s solver.Solver, paths SymbolicPathExtractor, fitness SuiteFitness, random *rand.Rand) *TestSuiteDSE {
	return &TestSuiteDSE{
		config:     cfg,
		solver:     s,
		paths:      paths,
		fitness:    fitness,
		random:     random,
		unsolvable: make(map[string]bool),
		logger:     logging.GlobalLogger.NewSubLogger("module", logging.DSE_SERVICE),
	}
}

// Stats returns a snapshot of the counters.
func (d *TestSuiteDSE) Stats() Stats {
	d.statsLock.Lock()
	defer d.statsLock.Unlock()
	return d.stats
}

func (d *TestSuiteDSE) count(update func(*Stats)) {
	d.statsLock.Lock()
	defer d.statsLock.Unlock()
	update(&d.stats)
}

// invocation holds the state of one ApplyDSE call.
type invocation struct {
	tests []*testcase.TestCase
	paths map[*testcase.TestCase][]*symbolic.BranchCondition

	// attempts counts the candidates taken per branch.
	attempts map[symbolic.BranchID]int
	// tried holds the candidates already taken.
	tried map[string]bool

	budget *budget
}

// ApplyDSE negates branch conditions reached by the tests of suite, adding to suite every resulting test which
// improves its fitness, or every resulting test if KeepAllTests is set. Reports whether a test was added. Solver
// failures only abandon the candidate at hand; errors are returned when paths or fitness cannot be computed.
func (d *TestSuiteDSE) ApplyDSE(ctx context.Context, suite *testcase.TestSuite) (bool, error) {
	d.count(func(s *Stats) { s.Invocations++ })
	inv := &invocation{
		tests:    append([]*testcase.TestCase(nil), suite.Tests...),
		paths:    make(map[*testcase.TestCase][]*symbolic.BranchCondition, suite.Size()),
		attempts: make(map[symbolic.BranchID]int),
		tried:    make(map[string]bool),
		budget:   newBudget(d.config),
	}
	for _, tc := range inv.tests {
		if err := d.updatePath(ctx, inv, tc); err != nil {
			return false, err
		}
	}
	currentFitness, err := d.fitness.Fitness(ctx, suite)
	if err != nil {
		return false, errors.Wrap(err, "could not evaluate suite fitness")
	}

	work := d.worklist(inv)
	d.logger.Debug("Starting with ", work.size(), " branch condition(s) to negate")
	improved := false
	for !work.empty() && !inv.budget.exhausted() && ctx.Err() == nil {
		next, ok := d.next(inv, work)
		if !ok {
			break
		}

		tc, result := d.negate(ctx, inv, next)
		if result == outcomeUNSAT {
			d.unsolvable[next.key] = true
		}
		if tc == nil {
			continue
		}

		candidateSuite := testcase.NewTestSuite(append(append([]*testcase.TestCase(nil), suite.Tests...), tc)...)
		candidateFitness, err := d.fitness.Fitness(ctx, candidateSuite)
		if err != nil {
			return improved, errors.Wrap(err, "could not evaluate suite fitness")
		}
		if !d.config.KeepAllTests && candidateFitness >= currentFitness {
			d.count(func(s *Stats) { s.Discarded++ })
			d.logger.Debug("Discarding test which does not improve fitness ", currentFitness)
			work = d.worklist(inv)
			continue
		}

		suite.Add(tc)
		currentFitness = candidateFitness
		improved = true
		inv.budget.testsAdded++
		d.count(func(s *Stats) { s.Kept++ })
		d.logger.Info("Negating ", colors.Bold, next.condition.Branch.String(), colors.Reset, " produced a test, suite fitness is now ", currentFitness)
		if err = d.Events.TestGenerated.Publish(TestGeneratedEvent{Test: tc, Branch: next.condition.Branch, Fitness: currentFitness}); err != nil {
			return improved, err
		}

		inv.tests = append(inv.tests, tc)
		if err = d.updatePath(ctx, inv, tc); err != nil {
			return improved, err
		}
		work = d.worklist(inv)
	}
	return improved, nil
}

func (d *TestSuiteDSE) updatePath(ctx context.Context, inv *invocation, tc *testcase.TestCase) error {
	path, err := d.paths.SymbolicPath(ctx, tc)
	if err != nil {
		return errors.Wrap(err, "could not extract symbolic path")
	}
	inv.paths[tc] = path
	return nil
}

func (d *TestSuiteDSE) worklist(inv *invocation) *worklist {
	exclude := func(c *candidate) bool {
		return d.unsolvable[c.key]
	}
	skip := func(c *candidate) bool {
		return inv.tried[c.pairKey()]
	}
	return buildWorklist(inv.tests, inv.paths, d.config.NegateAllConditions, d.config.RankBranchConditions, d.random, exclude, skip)
}

// next pops the next candidate whose branch has attempts left and whose condition is not known to be unsatisfiable.
// Reports false once the worklist runs out.
func (d *TestSuiteDSE) next(inv *invocation, work *worklist) (*candidate, bool) {
	for !work.empty() {
		c := work.pop()
		if d.unsolvable[c.key] {
			inv.tried[c.pairKey()] = true
			continue
		}
		branch := c.condition.Branch
		if d.config.MaxSolutionAttempts > 0 && inv.attempts[branch] >= d.config.MaxSolutionAttempts {
			d.logger.Debug("Reached maximum number of attempts for branch ", branch.String())
			inv.tried[c.pairKey()] = true
			continue
		}
		inv.attempts[branch]++
		inv.tried[c.pairKey()] = true
		d.count(func(s *Stats) { s.Attempts++ })
		return c, true
	}
	return nil, false
}

// negate solves the negation of the candidate's condition restricted to its cone of influence. Returns the test
// obtained from a satisfying model, if any.
func (d *TestSuiteDSE) negate(ctx context.Context, inv *invocation, c *candidate) (*testcase.TestCase, outcome) {
	target := c.condition.Local.Negate()
	if !target.IsSolvable() {
		d.count(func(s *Stats) { s.Unsolvable++ })
		d.logger.Debug("Negated condition ", target.String(), " cannot be solved")
		return nil, outcomeNoResult
	}
	query := symbolic.ConeOfInfluence(target, c.condition.Reaching)
	d.logger.Trace("Reduced ", len(c.condition.Reaching)+1, " constraint(s) to ", len(query))

	inv.budget.solverCalls++
	result, err := d.solver.Solve(ctx, query)
	if err != nil {
		d.count(func(s *Stats) { s.NoResult++ })
		if solver.IsNoResult(err) {
			d.logger.Debug("Solver found no result for ", c.condition.Branch.String(), err)
		} else {
			d.logger.Warn("Solver failed on ", c.condition.Branch.String(), err)
		}
		return nil, outcomeNoResult
	}
	if result.IsUNSAT() {
		d.count(func(s *Stats) { s.UNSAT++ })
		return nil, outcomeUNSAT
	}
	d.count(func(s *Stats) { s.SAT++ })

	model, err := result.Model()
	if err != nil {
		return nil, outcomeNoResult
	}
	tc, changed := UpdateTest(c.test, model)
	if changed == 0 {
		d.logger.Debug("Model ", result.String(), " does not change ", c.test.ID.String())
		return nil, outcomeSAT
	}
	return tc, outcomeSAT
}
