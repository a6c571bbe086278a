package execution

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/logging"
	"github.com/fxamacker/cbor"
	"github.com/pkg/errors"
)

// processStartupAllowance is added to the budget of a worker process to cover process startup.
const processStartupAllowance = time.Second

// ProcessRunner executes test cases in worker processes, one process per test case. The worker enforces the
// execution budget itself; the runner kills the whole process group only if the worker fails to report in time.
type ProcessRunner struct {
	// command is the worker program followed by its arguments.
	command []string

	// gracePeriod is the time the worker may take beyond the budget to stop the test case.
	gracePeriod time.Duration

	logger *logging.Logger
}

// NewProcessRunner returns a runner starting workers with the given command line.
func NewProcessRunner(command []string, cfg config.ExecutionConfig) (*ProcessRunner, error) {
	if len(command) == 0 {
		return nil, errors.New("a worker command is required for process isolation")
	}
	return &ProcessRunner{
		command:     command,
		gracePeriod: millis(cfg.ShutdownGracePeriodMillis + cfg.StaticInitGracePeriodMillis),
		logger:      logging.GlobalLogger.NewSubLogger("module", logging.EXECUTION_SERVICE),
	}, nil
}

// Run executes tc in a new worker process. Reports whether the process had to be killed. Returns an error if the
// worker cannot be started or its result cannot be read.
func (r *ProcessRunner) Run(ctx context.Context, tc *testcase.TestCase, timeout time.Duration) (*Result, bool, error) {
	test, err := testcase.Encode(tc)
	if err != nil {
		return nil, false, err
	}
	request, err := cbor.Marshal(workerRequest{TimeoutMillis: timeout.Milliseconds(), Test: test}, cbor.EncOptions{})
	if err != nil {
		return nil, false, errors.WithStack(err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(r.command[0], r.command[1:]...)
	cmd.Stdin = bytes.NewReader(request)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	prepareCommand(cmd)
	if err = cmd.Start(); err != nil {
		return nil, false, errors.Wrap(err, "could not start worker process")
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout + r.gracePeriod + processStartupAllowance)
	defer timer.Stop()
	select {
	case err = <-exited:
	case <-timer.C:
		return r.kill(cmd, exited, tc), true, nil
	case <-ctx.Done():
		return r.kill(cmd, exited, tc), true, nil
	}

	if err != nil {
		result := newResult()
		if killedBySignal(err) {
			// The CPU limit of the worker was exceeded
			return markTimedOut(result, tc), false, nil
		}
		result.addException(ExceptionPanic, tc.Size(), "worker process exited: "+lastLine(stderr.String()))
		return result, false, nil
	}
	result, err := DecodeResult(stdout.Bytes())
	if err != nil {
		return nil, false, errors.Wrapf(err, "worker process produced no result: %s", lastLine(stderr.String()))
	}
	return result, false, nil
}

// kill terminates the process group of the worker and waits for the worker to exit.
func (r *ProcessRunner) kill(cmd *exec.Cmd, exited <-chan error, tc *testcase.TestCase) *Result {
	if err := killProcessGroup(cmd); err != nil {
		r.logger.Error("Failed to kill worker process ", cmd.Process.Pid, err)
	}
	<-exited
	r.logger.Warn("Killed worker process ", cmd.Process.Pid, " which did not report in time")
	return markTimedOut(newResult(), tc)
}

// ServeWorker is the entry point of a worker process: it reads one test case from in, executes it in-process and
// writes the result to out.
func ServeWorker(ctx context.Context, c *cluster.TestCluster, cfg config.ExecutionConfig, in io.Reader, out io.Writer) error {
	if err := LimitCPU(cfg.CPULimitSeconds); err != nil {
		return err
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return errors.WithStack(err)
	}
	var request workerRequest
	if err = cbor.Unmarshal(data, &request); err != nil {
		return errors.Wrap(err, "could not decode worker request")
	}
	tc, err := testcase.Decode(request.Test, c)
	if err != nil {
		return err
	}

	cfg.ProcessIsolation = false
	executor, err := NewExecutor(c, cfg)
	if err != nil {
		return err
	}
	defer executor.Close()

	result, err := executor.Execute(ctx, tc, time.Duration(request.TimeoutMillis)*time.Millisecond)
	if err != nil {
		return err
	}
	encoded, err := EncodeResult(result)
	if err != nil {
		return err
	}
	_, err = out.Write(encoded)
	return errors.WithStack(err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
