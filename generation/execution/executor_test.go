package execution

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gadget is the program under test of these tests.
type gadget struct {
	label string
}

// gadgetProgram holds the members of the program under test along with the state it shares across executions.
type gadgetProgram struct {
	cluster *cluster.TestCluster

	newGadget, classify, spin, hang, slowInit, touchFile, explode, describe *cluster.Member

	// release lets hanging members return.
	release chan struct{}
	// counter is static state of the Gadget type.
	counter atomic.Int64
}

func newGadgetProgram(t *testing.T) *gadgetProgram {
	p := &gadgetProgram{release: make(chan struct{})}
	b := cluster.NewBuilder()
	g := b.AddType(types.NewObject("Gadget"))

	p.newGadget = b.AddConstructor(g, "NewGadget", nil, func(env cluster.Env, _ any, _ []any) (any, error) {
		env.StaticInit("Gadget", func() { p.counter.Store(100) })
		p.counter.Add(1)
		return &gadget{}, nil
	})
	p.classify = b.AddMethod(g, "Classify", []*types.Type{types.Int}, types.Int, func(env cluster.Env, _ any, args []any) (any, error) {
		if env.Branch(0, symbolic.NewIntConstraint(env.Arg(0), symbolic.GT, symbolic.IntConst(0))) {
			return int64(1), nil
		}
		return int64(-1), nil
	})
	p.classify.Branches = 1
	p.spin = b.AddMethod(g, "Spin", nil, nil, func(env cluster.Env, _ any, _ []any) (any, error) {
		for {
			env.Covered(0, true)
		}
	})
	p.hang = b.AddMethod(g, "Hang", nil, nil, func(env cluster.Env, _ any, _ []any) (any, error) {
		<-p.release
		return nil, nil
	})
	p.slowInit = b.AddMethod(g, "SlowInit", nil, nil, func(env cluster.Env, _ any, _ []any) (any, error) {
		env.StaticInit("Slow", func() { time.Sleep(150 * time.Millisecond) })
		env.Covered(0, true)
		return nil, nil
	})
	p.touchFile = b.AddMethod(g, "TouchFile", nil, nil, func(env cluster.Env, _ any, _ []any) (any, error) {
		if err := env.Require(config.CapabilityFilesystem); err != nil {
			return nil, err
		}
		return nil, nil
	})
	p.explode = b.AddMethod(g, "Explode", nil, types.Int, func(cluster.Env, any, []any) (any, error) {
		panic("boom")
	})
	p.describe = b.AddMethod(g, "Describe", []*types.Type{types.String}, types.String, func(env cluster.Env, receiver any, args []any) (any, error) {
		if args[0] == nil {
			return nil, errors.New("no label")
		}
		receiver.(*gadget).label = args[0].(string)
		return args[0], nil
	})
	b.AddStaticReset("Gadget", func() { p.counter.Store(0) })
	b.MarkTarget("Gadget")

	c, err := b.Build()
	require.NoError(t, err)
	p.cluster = c
	return p
}

func testExecutionConfig() config.ExecutionConfig {
	cfg := config.GetDefaultProjectConfig().Generation.Execution
	cfg.TimeoutMillis = 1000
	cfg.ShutdownGracePeriodMillis = 100
	cfg.StaticInitGracePeriodMillis = 1000
	cfg.ResetStaticState = false
	cfg.ProcessIsolation = false
	cfg.Capabilities = nil
	return cfg
}

func newTestExecutor(t *testing.T, p *gadgetProgram, cfg config.ExecutionConfig) *Executor {
	e, err := NewExecutor(p.cluster, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	return e
}

// classifyTest builds: x := value; g := NewGadget(); g.Classify(x)
func (p *gadgetProgram) classifyTest(value int64) *testcase.TestCase {
	tc := testcase.New()
	x := tc.AppendStatement(testcase.NewPrimitiveStatement(types.Int, value))
	g := tc.AppendStatement(testcase.NewConstructorStatement(p.newGadget, nil))
	tc.AppendStatement(testcase.NewMethodStatement(p.classify, g, []*testcase.VariableReference{x}))
	return tc
}

func (p *gadgetProgram) callTest(m *cluster.Member) *testcase.TestCase {
	tc := testcase.New()
	g := tc.AppendStatement(testcase.NewConstructorStatement(p.newGadget, nil))
	tc.AppendStatement(testcase.NewMethodStatement(m, g, nil))
	return tc
}

// TestExecuteCoversBranches ensures both outcomes of a decision are observed depending on the literal.
func TestExecuteCoversBranches(t *testing.T) {
	p := newGadgetProgram(t)
	e := newTestExecutor(t, p, testExecutionConfig())
	branch := symbolic.BranchID{Method: p.classify.ID(), Index: 0}

	result, err := e.Execute(context.Background(), p.classifyTest(5), 0)
	require.NoError(t, err)
	assert.False(t, result.HasException())
	assert.Equal(t, 3, result.Executed)
	assert.Equal(t, []Goal{{Branch: branch, Outcome: true}}, result.Goals())
	assert.Empty(t, result.Path)

	result, err = e.Execute(context.Background(), p.classifyTest(-3), 0)
	require.NoError(t, err)
	assert.Equal(t, []Goal{{Branch: branch, Outcome: false}}, result.Goals())
	assert.Equal(t, uint64(2), e.Stats().Executions)
}

// TestExecuteConcolicRecordsPath ensures a concolic execution yields the branch condition over the literal's symbolic
// input.
func TestExecuteConcolicRecordsPath(t *testing.T) {
	p := newGadgetProgram(t)
	e := newTestExecutor(t, p, testExecutionConfig())

	result, err := e.ExecuteConcolic(context.Background(), p.classifyTest(5), 0)
	require.NoError(t, err)
	require.Len(t, result.Path, 1)
	condition := result.Path[0]
	assert.Equal(t, p.classify.ID(), condition.Branch.Method)
	assert.Equal(t, symbolic.GT, condition.Outcome())
	assert.Empty(t, condition.Reaching)
	require.Len(t, condition.Local.Variables(), 1)
	assert.Equal(t, "var0", condition.Local.Variables()[0].Name)

	result, err = e.ExecuteConcolic(context.Background(), p.classifyTest(0), 0)
	require.NoError(t, err)
	require.Len(t, result.Path, 1)
	assert.Equal(t, symbolic.LE, result.Path[0].Outcome())
}

// TestTimeoutBoundary ensures a non-terminating test is reported as timed out within its budget plus the grace
// period, and that the executor keeps working afterwards.
func TestTimeoutBoundary(t *testing.T) {
	p := newGadgetProgram(t)
	cfg := testExecutionConfig()
	e := newTestExecutor(t, p, cfg)
	timeout := 50 * time.Millisecond

	tc := p.callTest(p.spin)
	start := time.Now()
	result, err := e.Execute(context.Background(), tc, timeout)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.True(t, result.TimedOut)
	assert.Less(t, elapsed, timeout+millis(cfg.ShutdownGracePeriodMillis)+500*time.Millisecond)
	exception, ok := result.ExceptionAt(tc.Size())
	require.True(t, ok)
	assert.Equal(t, ExceptionTimeout, exception.Kind)
	assert.Equal(t, uint64(0), e.Stats().StalledWorkers)

	result, err = e.Execute(context.Background(), p.classifyTest(1), 0)
	require.NoError(t, err)
	assert.False(t, result.TimedOut)
	assert.False(t, result.HasException())
	assert.Equal(t, uint64(1), e.Stats().Timeouts)
}

// TestUnresponsiveWorkerIsReplaced ensures a worker which never reaches a safe point is abandoned and a new one
// serves the following executions.
func TestUnresponsiveWorkerIsReplaced(t *testing.T) {
	p := newGadgetProgram(t)
	cfg := testExecutionConfig()
	cfg.ShutdownGracePeriodMillis = 20
	e := newTestExecutor(t, p, cfg)
	defer close(p.release)

	result, err := e.Execute(context.Background(), p.callTest(p.hang), 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, 2, result.Executed)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.StalledWorkers)
	assert.Equal(t, uint64(1), stats.ForcedTerminations)

	result, err = e.Execute(context.Background(), p.classifyTest(2), 0)
	require.NoError(t, err)
	assert.False(t, result.TimedOut)
	assert.Len(t, result.Goals(), 1)
}

// TestStaticInitializationIsWaitedFor ensures a worker stalled in a static initializer gets the extended grace
// period instead of being abandoned.
func TestStaticInitializationIsWaitedFor(t *testing.T) {
	p := newGadgetProgram(t)
	cfg := testExecutionConfig()
	cfg.ShutdownGracePeriodMillis = 20
	e := newTestExecutor(t, p, cfg)

	result, err := e.Execute(context.Background(), p.callTest(p.slowInit), 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, uint64(0), e.Stats().StalledWorkers)
}

// TestFailuresAreRecordedPerStatement ensures errors, panics and capability denials are attached to the failing
// statement and execution continues past failures nothing depends on.
func TestFailuresAreRecordedPerStatement(t *testing.T) {
	p := newGadgetProgram(t)
	e := newTestExecutor(t, p, testExecutionConfig())

	tc := testcase.New()
	g := tc.AppendStatement(testcase.NewConstructorStatement(p.newGadget, nil))
	tc.AppendStatement(testcase.NewMethodStatement(p.touchFile, g, nil))
	tc.AppendStatement(testcase.NewMethodStatement(p.explode, g, nil))
	label := tc.AppendStatement(testcase.NewNullStatement(types.String))
	tc.AppendStatement(testcase.NewMethodStatement(p.describe, g, []*testcase.VariableReference{label}))

	result, err := e.Execute(context.Background(), tc, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Executed)

	violation, ok := result.ExceptionAt(1)
	require.True(t, ok)
	assert.Equal(t, ExceptionSecurityViolation, violation.Kind)
	panicked, ok := result.ExceptionAt(2)
	require.True(t, ok)
	assert.Equal(t, ExceptionPanic, panicked.Kind)
	assert.Equal(t, "boom", panicked.Message)
	failed, ok := result.ExceptionAt(4)
	require.True(t, ok)
	assert.Equal(t, ExceptionCodeUnderTest, failed.Kind)

	assert.Equal(t, 1, result.Violations)
	assert.Equal(t, uint64(1), e.Stats().SecurityViolations)
}

// TestExecutionStopsWhenFailedValueIsUsed ensures statements after a failure whose value is used later do not run.
func TestExecutionStopsWhenFailedValueIsUsed(t *testing.T) {
	p := newGadgetProgram(t)
	e := newTestExecutor(t, p, testExecutionConfig())

	tc := testcase.New()
	g := tc.AppendStatement(testcase.NewConstructorStatement(p.newGadget, nil))
	label := tc.AppendStatement(testcase.NewNullStatement(types.String))
	described := tc.AppendStatement(testcase.NewMethodStatement(p.describe, g, []*testcase.VariableReference{label}))
	tc.AppendStatement(testcase.NewMethodStatement(p.describe, g, []*testcase.VariableReference{described}))

	result, err := e.Execute(context.Background(), tc, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Executed)
	_, ok := result.ExceptionAt(3)
	assert.False(t, ok)
}

// TestGrantedCapabilities ensures granted capabilities are not reported.
func TestGrantedCapabilities(t *testing.T) {
	p := newGadgetProgram(t)
	cfg := testExecutionConfig()
	cfg.Capabilities = []string{config.CapabilityFilesystem}
	e := newTestExecutor(t, p, cfg)

	result, err := e.Execute(context.Background(), p.callTest(p.touchFile), 0)
	require.NoError(t, err)
	assert.False(t, result.HasException())
	assert.Zero(t, result.Violations)

	_, err = NewExecutor(p.cluster, config.ExecutionConfig{Capabilities: []string{"teleport"}})
	assert.Error(t, err)
}

// TestStaticStateIsReset ensures static state of touched types is restored after each execution when configured.
func TestStaticStateIsReset(t *testing.T) {
	p := newGadgetProgram(t)
	cfg := testExecutionConfig()
	cfg.ResetStaticState = true
	e := newTestExecutor(t, p, cfg)

	for i := 0; i < 2; i++ {
		result, err := e.Execute(context.Background(), p.classifyTest(1), 0)
		require.NoError(t, err)
		assert.Contains(t, result.Touched, "Gadget")
		assert.Equal(t, int64(0), p.counter.Load())
	}
	assert.Equal(t, uint64(2), e.Stats().StaticResets)
}

// TestStaticInitializersRunOnce ensures static initializers run once until the state is reset.
func TestStaticInitializersRunOnce(t *testing.T) {
	p := newGadgetProgram(t)
	e := newTestExecutor(t, p, testExecutionConfig())

	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), p.classifyTest(1), 0)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(103), p.counter.Load())

	assert.Equal(t, 1, e.StaticResetter().ResetAll())
	_, err := e.Execute(context.Background(), p.classifyTest(1), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(101), p.counter.Load())
}

// TestClosedExecutorRejectsExecutions ensures a closed executor reports an error.
func TestClosedExecutorRejectsExecutions(t *testing.T) {
	p := newGadgetProgram(t)
	e, err := NewExecutor(p.cluster, testExecutionConfig())
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Execute(context.Background(), p.classifyTest(1), 0)
	assert.ErrorIs(t, err, ErrExecutorClosed)
}

// TestResultEncoding ensures results survive the worker process wire format.
func TestResultEncoding(t *testing.T) {
	p := newGadgetProgram(t)
	e := newTestExecutor(t, p, testExecutionConfig())

	tc := p.callTest(p.explode)
	result, err := e.Execute(context.Background(), tc, 0)
	require.NoError(t, err)

	data, err := EncodeResult(result)
	require.NoError(t, err)
	decoded, err := DecodeResult(data)
	require.NoError(t, err)
	assert.Equal(t, result.Exceptions, decoded.Exceptions)
	assert.Equal(t, result.Executed, decoded.Executed)
	assert.Equal(t, result.Touched, decoded.Touched)

	_, err = DecodeResult([]byte{0xa1})
	assert.Error(t, err)
}
