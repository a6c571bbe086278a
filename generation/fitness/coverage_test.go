package fitness

import (
	"context"
	"testing"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/execution"
	"github.com/crytic/evosynth/generation/targets"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classifierFixture struct {
	coverage                *BranchCoverage
	newClassifier, classify *cluster.Member
}

func newClassifierFixture(t *testing.T) *classifierFixture {
	target, ok := targets.Lookup("classifier")
	require.True(t, ok)
	c, err := target.Cluster(nil)
	require.NoError(t, err)

	cfg := config.GetDefaultProjectConfig().Generation.Execution
	cfg.ResetStaticState = false
	executor, err := execution.NewExecutor(c, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, executor.Close()) })

	f := &classifierFixture{coverage: NewBranchCoverage(c, executor)}
	for _, m := range c.Members() {
		switch m.Name {
		case "NewClassifier":
			f.newClassifier = m
		case "Classify":
			f.classify = m
		}
	}
	return f
}

func (f *classifierFixture) classifyTest(value int64) *testcase.TestCase {
	tc := testcase.New()
	x := tc.AppendStatement(testcase.NewPrimitiveStatement(types.Int, value))
	callee := tc.AppendStatement(testcase.NewConstructorStatement(f.newClassifier, nil))
	tc.AppendStatement(testcase.NewMethodStatement(f.classify, callee, []*testcase.VariableReference{x}))
	return tc
}

// TestPercentage ensures coverage percentages are rounded and programs without goals count as covered.
func TestPercentage(t *testing.T) {
	c := Coverage{Covered: make([]execution.Goal, 1), Total: 3}
	assert.Equal(t, "33.33", c.Percentage().String())
	assert.Equal(t, "100", Coverage{}.Percentage().String())
}

// TestBranchCoverageFitness ensures fitness counts the outcomes the suite leaves uncovered.
func TestBranchCoverageFitness(t *testing.T) {
	f := newClassifierFixture(t)
	ctx := context.Background()
	// Classify declares one decision and Compare three
	require.Equal(t, 8, f.coverage.TotalGoals())

	empty, err := f.coverage.Fitness(ctx, testcase.NewTestSuite())
	require.NoError(t, err)
	assert.Equal(t, float64(8), empty)

	positive := f.classifyTest(5)
	suite := testcase.NewTestSuite(positive)
	fit, err := f.coverage.Fitness(ctx, suite)
	require.NoError(t, err)
	assert.Equal(t, float64(7), fit)

	// A second positive literal adds nothing, a negative one covers the other outcome
	gained, err := f.coverage.NewGoals(ctx, suite, f.classifyTest(9))
	require.NoError(t, err)
	assert.Zero(t, gained)
	gained, err = f.coverage.NewGoals(ctx, suite, f.classifyTest(-9))
	require.NoError(t, err)
	assert.Equal(t, 1, gained)

	suite.Add(f.classifyTest(-9))
	coverage, err := f.coverage.Coverage(ctx, suite)
	require.NoError(t, err)
	require.Len(t, coverage.Covered, 2)
	assert.True(t, coverage.Covered[0].Outcome)
	assert.False(t, coverage.Covered[1].Outcome)
	assert.Equal(t, "25", coverage.Percentage().String())
}

// TestGoalsAreMemoized ensures structurally equal tests are executed once.
func TestGoalsAreMemoized(t *testing.T) {
	f := newClassifierFixture(t)
	ctx := context.Background()

	first, err := f.coverage.TestGoals(ctx, f.classifyTest(3))
	require.NoError(t, err)
	second, err := f.coverage.TestGoals(ctx, f.classifyTest(3))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.coverage.cache, 1)
}
