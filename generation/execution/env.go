package execution

import (
	"context"
	"fmt"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/symbolic"
)

// killedSignal is raised as a panic at a safe point of a killed execution, unwinding the code under test.
type killedSignal struct{}

// env is the cluster.Env handed to one member invocation.
type env struct {
	job    *job
	member *cluster.Member

	args     []symbolic.Expression
	receiver symbolic.Expression
	result   symbolic.Expression

	// violation holds the first capability the member was denied.
	violation *SecurityViolation
}

func (e *env) Context() context.Context {
	return e.job.ctx
}

func (e *env) Arg(i int) symbolic.Expression {
	if i < 0 || i >= len(e.args) {
		return nil
	}
	return e.args[i]
}

func (e *env) Receiver() symbolic.Expression {
	return e.receiver
}

// checkpoint unwinds the code under test if the execution was killed.
func (e *env) checkpoint() {
	if e.job.killed.Load() {
		panic(killedSignal{})
	}
}

func (e *env) Branch(index int, condition symbolic.Constraint) bool {
	e.checkpoint()
	holds := condition.Distance(nil) == 0
	local := condition
	if !holds {
		local = condition.Negate()
	}

	branch := symbolic.BranchID{Method: e.member.ID(), Index: index}
	if e.job.recorder != nil {
		e.job.recorder.Record(branch, local)
	}
	e.job.cover(Goal{Branch: branch, Outcome: holds})
	return holds
}

func (e *env) Covered(index int, outcome bool) {
	e.checkpoint()
	e.job.cover(Goal{Branch: symbolic.BranchID{Method: e.member.ID(), Index: index}, Outcome: outcome})
}

func (e *env) Require(capability string) error {
	e.checkpoint()
	if e.job.capabilities.Granted(capability) {
		return nil
	}
	violation := &SecurityViolation{Capability: capability, Member: e.member.ID()}
	if e.violation == nil {
		e.violation = violation
	}
	e.job.violations.Add(1)
	return violation
}

func (e *env) Go(fn func()) error {
	if err := e.Require(config.CapabilitySpawnGoroutine); err != nil {
		return err
	}
	e.job.spawned.Add(1)
	go func() {
		defer e.job.spawned.Done()
		defer func() {
			// A spawned goroutine cannot report to a statement, and must not take the worker down
			_ = recover()
		}()
		fn()
	}()
	return nil
}

func (e *env) StaticInit(typeName string, fn func()) {
	e.checkpoint()
	e.job.touch(typeName)
	e.job.resetter.Initialize(typeName, func() {
		e.job.staticInit.Add(1)
		defer e.job.staticInit.Add(-1)
		fn()
	})
}

func (e *env) SetResult(expression symbolic.Expression) {
	e.result = expression
}

// recovered converts a value recovered from a panicking member into an exception message. It reports false for the
// kill signal, which must keep unwinding.
func recovered(value any) (string, bool) {
	if _, killed := value.(killedSignal); killed {
		return "", false
	}
	if err, ok := value.(error); ok {
		return err.Error(), true
	}
	return fmt.Sprint(value), true
}
