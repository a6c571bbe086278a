// Package fitness evaluates test suites by the branch outcomes they cover.
package fitness

import (
	"context"
	"sort"
	"sync"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/execution"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/shopspring/decimal"
)

// Coverage describes the goals covered by a test suite.
type Coverage struct {
	// Covered holds the covered goals, sorted.
	Covered []execution.Goal
	// Total is the number of goals of the program under test.
	Total int
}

// Percentage returns the covered share of the goals, rounded to two decimal places. A program without goals is
// fully covered.
func (c Coverage) Percentage() decimal.Decimal {
	if c.Total == 0 {
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(int64(len(c.Covered))).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(c.Total))).
		Round(2)
}

// BranchCoverage measures suites by the branch outcomes they leave uncovered. Each decision point declared by a
// member of the cluster contributes one goal per outcome. Coverage of a test is memoized by its hash.
type BranchCoverage struct {
	executor *execution.Executor
	goals    map[execution.Goal]bool

	lock  sync.Mutex
	cache map[string][]execution.Goal
}

// NewBranchCoverage returns a BranchCoverage over the goals of the cluster, executing tests with executor.
func NewBranchCoverage(c *cluster.TestCluster, executor *execution.Executor) *BranchCoverage {
	goals := make(map[execution.Goal]bool)
	for _, m := range c.Members() {
		for i := 0; i < m.Branches; i++ {
			for _, outcome := range []bool{true, false} {
				goals[execution.Goal{Branch: symbolic.BranchID{Method: m.ID(), Index: i}, Outcome: outcome}] = true
			}
		}
	}
	return &BranchCoverage{
		executor: executor,
		goals:    goals,
		cache:    make(map[string][]execution.Goal),
	}
}

// TotalGoals returns the number of goals.
func (b *BranchCoverage) TotalGoals() int {
	return len(b.goals)
}

// Fitness returns the number of goals the suite leaves uncovered.
func (b *BranchCoverage) Fitness(ctx context.Context, suite *testcase.TestSuite) (float64, error) {
	coverage, err := b.Coverage(ctx, suite)
	if err != nil {
		return 0, err
	}
	return float64(coverage.Total - len(coverage.Covered)), nil
}

// Coverage executes the tests of the suite and returns the goals they cover.
func (b *BranchCoverage) Coverage(ctx context.Context, suite *testcase.TestSuite) (Coverage, error) {
	covered := make(map[execution.Goal]bool)
	for _, tc := range suite.Tests {
		goals, err := b.TestGoals(ctx, tc)
		if err != nil {
			return Coverage{}, err
		}
		for _, goal := range goals {
			covered[goal] = true
		}
	}

	result := Coverage{Covered: make([]execution.Goal, 0, len(covered)), Total: len(b.goals)}
	for goal := range covered {
		result.Covered = append(result.Covered, goal)
	}
	sortGoals(result.Covered)
	return result, nil
}

// TestGoals returns the known goals covered by a single test.
func (b *BranchCoverage) TestGoals(ctx context.Context, tc *testcase.TestCase) ([]execution.Goal, error) {
	hash := tc.Hash()
	b.lock.Lock()
	goals, ok := b.cache[hash]
	b.lock.Unlock()
	if ok {
		return goals, nil
	}

	result, err := b.executor.Execute(ctx, tc, 0)
	if err != nil {
		return nil, err
	}
	goals = make([]execution.Goal, 0)
	for _, goal := range result.Goals() {
		if b.goals[goal] {
			goals = append(goals, goal)
		}
	}
	// Interrupted executions are not representative of the test
	if ctx.Err() == nil {
		b.lock.Lock()
		b.cache[hash] = goals
		b.lock.Unlock()
	}
	return goals, nil
}

// NewGoals reports how many goals of tc are not covered by the suite.
func (b *BranchCoverage) NewGoals(ctx context.Context, suite *testcase.TestSuite, tc *testcase.TestCase) (int, error) {
	coverage, err := b.Coverage(ctx, suite)
	if err != nil {
		return 0, err
	}
	known := make(map[execution.Goal]bool, len(coverage.Covered))
	for _, goal := range coverage.Covered {
		known[goal] = true
	}
	goals, err := b.TestGoals(ctx, tc)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, goal := range goals {
		if !known[goal] {
			count++
		}
	}
	return count, nil
}

func sortGoals(goals []execution.Goal) {
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].Branch != goals[j].Branch {
			if goals[i].Branch.Method != goals[j].Branch.Method {
				return goals[i].Branch.Method < goals[j].Branch.Method
			}
			return goals[i].Branch.Index < goals[j].Branch.Index
		}
		return goals[i].Outcome && !goals[j].Outcome
	})
}
