package execution

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/logging"
	"github.com/pkg/errors"
)

// ErrExecutorClosed is returned when executing on a closed Executor.
var ErrExecutorClosed = errors.New("executor is closed")

// Stats describes the counters of an Executor.
type Stats struct {
	// Executions counts executed test cases.
	Executions uint64
	// Timeouts counts executions which exceeded their time budget.
	Timeouts uint64
	// StalledWorkers counts in-process workers abandoned because they could not be killed.
	StalledWorkers uint64
	// ForcedTerminations counts abandoned workers and killed worker processes.
	ForcedTerminations uint64
	// SecurityViolations counts capability requests denied to the code under test.
	SecurityViolations uint64
	// StaticResets counts the types whose static state was reset.
	StaticResets uint64
}

// Executor runs test cases against the program under test. Test cases run one at a time on a dedicated worker
// goroutine, or in a worker process when a ProcessRunner is set. An execution exceeding its budget is killed at the
// next safe point of the code under test; a worker which does not reach one in time is abandoned and replaced.
type Executor struct {
	cluster      *cluster.TestCluster
	config       config.ExecutionConfig
	capabilities *Capabilities
	resetter     *StaticResetter

	// runner executes test cases in a worker process. Nil executes them in-process.
	runner *ProcessRunner

	// worker is the current in-process worker.
	worker *worker
	// workerCount numbers the workers created so far.
	workerCount int
	closed      bool

	// lock serializes executions.
	lock sync.Mutex

	executions         atomic.Uint64
	timeouts           atomic.Uint64
	stalledWorkers     atomic.Uint64
	forcedTerminations atomic.Uint64
	securityViolations atomic.Uint64
	staticResets       atomic.Uint64

	logger *logging.Logger
}

// NewExecutor creates an Executor for the program registered in the cluster.
func NewExecutor(c *cluster.TestCluster, cfg config.ExecutionConfig) (*Executor, error) {
	capabilities, err := NewCapabilities(cfg.Capabilities)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		cluster:      c,
		config:       cfg,
		capabilities: capabilities,
		resetter:     NewStaticResetter(c),
		logger:       logging.GlobalLogger.NewSubLogger("module", logging.EXECUTION_SERVICE),
	}
	e.worker = e.startWorker()
	return e, nil
}

// SetProcessRunner routes plain executions through worker processes. Concolic executions stay in-process.
func (e *Executor) SetProcessRunner(runner *ProcessRunner) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.runner = runner
}

// StaticResetter returns the tracker of static state used by the executor.
func (e *Executor) StaticResetter() *StaticResetter {
	return e.resetter
}

// Execute runs tc with the given wall-clock budget, or the configured one if timeout is not positive. Failures of
// the code under test are reported on the Result. Returns an error only if tc is malformed, the executor is closed,
// or the worker process cannot be run.
func (e *Executor) Execute(ctx context.Context, tc *testcase.TestCase, timeout time.Duration) (*Result, error) {
	return e.execute(ctx, tc, timeout, false)
}

// ExecuteConcolic runs tc like Execute, additionally recording the symbolic path condition of the execution.
func (e *Executor) ExecuteConcolic(ctx context.Context, tc *testcase.TestCase, timeout time.Duration) (*Result, error) {
	return e.execute(ctx, tc, timeout, true)
}

func (e *Executor) execute(ctx context.Context, tc *testcase.TestCase, timeout time.Duration, concolic bool) (*Result, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return nil, ErrExecutorClosed
	}
	if err := tc.Validate(e.cluster.Universe(), math.MaxInt); err != nil {
		return nil, errors.Wrap(err, "refusing to execute a malformed test case")
	}
	if timeout <= 0 {
		timeout = millis(e.config.TimeoutMillis)
	}

	var result *Result
	if e.runner != nil && !concolic {
		var killed bool
		var err error
		result, killed, err = e.runner.Run(ctx, tc, timeout)
		if err != nil {
			return nil, err
		}
		if killed {
			e.forcedTerminations.Add(1)
		}
	} else {
		result = e.runInProcess(ctx, tc, timeout, concolic)
	}

	e.executions.Add(1)
	if result.TimedOut {
		e.timeouts.Add(1)
	}
	if result.Violations > 0 {
		e.securityViolations.Add(uint64(result.Violations))
		e.logger.Warn("Code under test was denied ", result.Violations, " capability request(s)", logging.StructuredLogInfo{
			"violations": result.Violations,
			"granted":    e.capabilities.Tokens(),
		})
	}
	if e.config.ResetStaticState {
		if n := e.resetter.Reset(result.Touched); n > 0 {
			e.staticResets.Add(uint64(n))
		}
	}
	return result, nil
}

// runInProcess hands tc to the current worker and waits for it, escalating if the budget is exceeded.
func (e *Executor) runInProcess(ctx context.Context, tc *testcase.TestCase, timeout time.Duration, concolic bool) *Result {
	j := newJob(ctx, tc)
	j.capabilities = e.capabilities
	j.resetter = e.resetter
	j.spawnGracePeriod = millis(e.config.ShutdownGracePeriodMillis)
	if concolic {
		j.recorder = symbolic.NewPathRecorder()
	}
	defer j.cancel()

	e.worker.jobs <- j

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-j.done:
		return result
	case <-timer.C:
	case <-ctx.Done():
	}
	return e.escalate(j)
}

// escalate stops a job which exceeded its budget. Recording stops and the kill switch is flipped first; the worker
// then gets a grace period to reach a safe point, extended while it runs a static initializer. A worker which still
// has not finished is abandoned and replaced.
func (e *Executor) escalate(j *job) *Result {
	if j.recorder != nil {
		j.recorder.Disable()
	}
	j.kill()

	if result, ok := awaitResult(j, millis(e.config.ShutdownGracePeriodMillis)); ok {
		return markTimedOut(result, j.tc)
	}
	if j.staticInit.Load() > 0 {
		e.logger.Warn("Worker ", e.worker.id, " is stalled in static initialization, extending its grace period")
		if result, ok := awaitResult(j, millis(e.config.StaticInitGracePeriodMillis)); ok {
			return markTimedOut(result, j.tc)
		}
	}

	stalled := e.worker
	e.abandonWorker()
	e.logger.Warn("Abandoned worker ", stalled.id, " which did not stop after being killed", logging.StructuredLogInfo{
		"worker":         stalled.id,
		"executed":       j.executed.Load(),
		"stalledWorkers": e.stalledWorkers.Load(),
	})

	result := newResult()
	j.snapshot(result)
	return markTimedOut(result, j.tc)
}

// abandonWorker replaces the current worker. The abandoned goroutine exits once its job eventually returns.
func (e *Executor) abandonWorker() {
	close(e.worker.jobs)
	stalled := e.stalledWorkers.Add(1)
	e.forcedTerminations.Add(1)
	if e.config.MaxStalledWorkers > 0 && stalled > uint64(e.config.MaxStalledWorkers) {
		e.logger.Error("Stalled worker count ", stalled, " exceeds the configured maximum of ", e.config.MaxStalledWorkers)
	}
	e.worker = e.startWorker()
}

func (e *Executor) startWorker() *worker {
	e.workerCount++
	return startWorker(e.workerCount)
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Executions:         e.executions.Load(),
		Timeouts:           e.timeouts.Load(),
		StalledWorkers:     e.stalledWorkers.Load(),
		ForcedTerminations: e.forcedTerminations.Load(),
		SecurityViolations: e.securityViolations.Load(),
		StaticResets:       e.staticResets.Load(),
	}
}

// Close stops the current worker and waits for it to exit. Abandoned workers are not waited for.
func (e *Executor) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.worker.jobs)
	<-e.worker.exited
	return nil
}

// awaitResult waits up to timeout for the job to finish.
func awaitResult(j *job, timeout time.Duration) (*Result, bool) {
	if timeout <= 0 {
		select {
		case result := <-j.done:
			return result, true
		default:
			return nil, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-j.done:
		return result, true
	case <-timer.C:
		return nil, false
	}
}

// markTimedOut flags result as timed out, attaching the timeout one past the last statement of tc.
func markTimedOut(result *Result, tc *testcase.TestCase) *Result {
	result.TimedOut = true
	result.addException(ExceptionTimeout, tc.Size(), "execution exceeded its time budget")
	return result
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
