package execution

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/utils"
	"github.com/pkg/errors"
)

// job is one test case execution handed to a worker. The controlling goroutine and the worker share it.
type job struct {
	ctx    context.Context
	cancel context.CancelFunc

	tc           *testcase.TestCase
	recorder     *symbolic.PathRecorder
	capabilities *Capabilities
	resetter     *StaticResetter

	// spawnGracePeriod bounds the wait for goroutines spawned by the code under test.
	spawnGracePeriod time.Duration

	// killed is the kill switch observed at every safe point.
	killed atomic.Bool
	// staticInit counts static initializers currently running.
	staticInit atomic.Int32
	// executed counts the statements started so far.
	executed atomic.Int64
	// violations counts denied capability requests.
	violations atomic.Int64
	// spawned tracks goroutines spawned by the code under test.
	spawned sync.WaitGroup

	lock     sync.Mutex
	coverage map[Goal]bool
	touched  map[string]bool

	// done receives the result once the worker finishes the job. It is buffered so an abandoned worker never blocks.
	done chan *Result
}

func newJob(ctx context.Context, tc *testcase.TestCase) *job {
	jobCtx, cancel := context.WithCancel(ctx)
	return &job{
		ctx:      jobCtx,
		cancel:   cancel,
		tc:       tc,
		coverage: make(map[Goal]bool),
		touched:  make(map[string]bool),
		done:     make(chan *Result, 1),
	}
}

// kill flips the kill switch and cancels the context handed to the code under test.
func (j *job) kill() {
	j.killed.Store(true)
	j.cancel()
}

func (j *job) cover(goal Goal) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.coverage[goal] = true
}

func (j *job) touch(typeName string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.touched[typeName] = true
}

// snapshot fills the parts of result accumulated on the job so far.
func (j *job) snapshot(result *Result) {
	j.lock.Lock()
	for goal := range j.coverage {
		result.Coverage[goal] = true
	}
	touched := make([]string, 0, len(j.touched))
	for typeName := range j.touched {
		touched = append(touched, typeName)
	}
	j.lock.Unlock()

	sort.Strings(touched)
	result.Touched = touched
	result.Executed = int(j.executed.Load())
	result.Violations = int(j.violations.Load())
	if j.recorder != nil {
		result.Path = j.recorder.Conditions()
	}
}

// worker owns the goroutine executing jobs. A worker is abandoned, not stopped, when a job cannot be killed.
type worker struct {
	id   int
	jobs chan *job

	// exited is closed when the goroutine returns.
	exited chan struct{}
}

func startWorker(id int) *worker {
	w := &worker{
		id:     id,
		jobs:   make(chan *job),
		exited: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.exited)
	for j := range w.jobs {
		j.done <- runJob(j)
	}
}

// runJob executes the statements of the job in order. Execution stops at the first statement which fails if its
// value is used later, and at the first safe point after the job is killed.
func runJob(j *job) *Result {
	result := newResult()
	scope := NewScope(j.tc.Size())

	for _, st := range j.tc.Statements() {
		if j.killed.Load() {
			break
		}
		j.executed.Add(1)

		exception, aborted := runStatement(j, scope, st)
		if aborted {
			break
		}
		if exception != nil {
			result.Exceptions[exception.Position] = exception
			if j.tc.HasReferences(st.ReturnValue()) {
				break
			}
		}
	}

	spawned := make(chan struct{})
	go func() {
		j.spawned.Wait()
		close(spawned)
	}()
	utils.WaitOrDone(context.Background(), spawned, j.spawnGracePeriod)

	j.snapshot(result)
	return result
}

// runStatement executes one statement and stores its value in scope. A kill signal raised by the code under test
// reports aborted.
func runStatement(j *job, scope *Scope, st testcase.Statement) (exception *Exception, aborted bool) {
	position := st.Position()
	defer func() {
		if value := recover(); value != nil {
			message, ok := recovered(value)
			if !ok {
				aborted = true
				return
			}
			exception = &Exception{Kind: ExceptionPanic, Position: position, Message: message}
		}
	}()

	value, expression, err := evaluate(j, scope, st)
	if err != nil {
		kind := ExceptionCodeUnderTest
		if IsSecurityViolation(err) {
			kind = ExceptionSecurityViolation
		}
		return &Exception{Kind: kind, Position: position, Message: err.Error()}, false
	}
	scope.Set(position, value, expression)
	return nil, false
}

// evaluate computes the value produced by st.
func evaluate(j *job, scope *Scope, st testcase.Statement) (any, symbolic.Expression, error) {
	switch s := st.(type) {
	case *testcase.PrimitiveStatement:
		return s.Value, literalVariable(s), nil
	case *testcase.NullStatement:
		return nil, nil, nil
	case *testcase.ArrayStatement:
		return make([]any, s.Length), nil, nil
	case *testcase.ArrayIndexAssignmentStatement:
		array, err := scope.Value(s.Array())
		if err != nil {
			return nil, nil, err
		}
		slots, ok := array.([]any)
		if !ok {
			return nil, nil, errors.Errorf("%s is null", s.Array().Name())
		}
		if s.Index() >= len(slots) {
			return nil, nil, errors.Errorf("index %d out of range for length %d", s.Index(), len(slots))
		}
		value, err := scope.Value(s.Value)
		if err != nil {
			return nil, nil, err
		}
		slots[s.Index()] = value
		return value, scope.Expression(s.Value), nil
	case *testcase.FunctionalMockStatement:
		answers, _, err := values(scope, s.Answers)
		if err != nil {
			return nil, nil, err
		}
		return s.Mock.Build(answers), nil, nil
	case *testcase.ConstructorStatement:
		return invoke(j, scope, s.Constructor, nil, s.Params)
	case *testcase.MethodStatement:
		return invoke(j, scope, s.Method, s.Callee, s.Params)
	case *testcase.PrivateMethodStatement:
		return invoke(j, scope, s.Method, s.Callee, s.Params)
	case *testcase.FieldStatement:
		return read(j, scope, s.Field, s.Source)
	case *testcase.FieldAssignmentStatement:
		return nil, nil, write(j, scope, s.Field, s.Source, s.Value)
	case *testcase.PrivateFieldStatement:
		return nil, nil, write(j, scope, s.Field, s.Callee, s.Value)
	default:
		return nil, nil, errors.Errorf("unsupported statement %T", st)
	}
}

func values(scope *Scope, vs []*testcase.VariableReference) ([]any, []symbolic.Expression, error) {
	args := make([]any, len(vs))
	expressions := make([]symbolic.Expression, len(vs))
	for i, v := range vs {
		value, err := scope.Value(v)
		if err != nil {
			return nil, nil, err
		}
		args[i] = value
		expressions[i] = scope.Expression(v)
	}
	return args, expressions, nil
}

// receiverOf returns the value of callee. Instance members reject a null receiver.
func receiverOf(scope *Scope, m *cluster.Member, callee *testcase.VariableReference) (any, symbolic.Expression, error) {
	if callee == nil {
		if !m.Static && !m.IsConstructor() {
			return nil, nil, errors.Errorf("%s requires a receiver", m.ID())
		}
		return nil, nil, nil
	}
	receiver, err := scope.Value(callee)
	if err != nil {
		return nil, nil, err
	}
	if receiver == nil && !m.Static {
		return nil, nil, errors.Errorf("null receiver %s for %s", callee.Name(), m.ID())
	}
	return receiver, scope.Expression(callee), nil
}

func invoke(j *job, scope *Scope, m *cluster.Member, callee *testcase.VariableReference, params []*testcase.VariableReference) (any, symbolic.Expression, error) {
	if m.Invoke == nil {
		return nil, nil, errors.Errorf("%s cannot be invoked", m.ID())
	}
	receiver, receiverExpression, err := receiverOf(scope, m, callee)
	if err != nil {
		return nil, nil, err
	}
	args, expressions, err := values(scope, params)
	if err != nil {
		return nil, nil, err
	}

	j.touch(m.Owner.Name)
	e := &env{job: j, member: m, args: expressions, receiver: receiverExpression}
	value, err := m.Invoke(e, receiver, args)
	if err != nil {
		return nil, nil, err
	}
	return value, e.result, nil
}

func read(j *job, scope *Scope, field *cluster.Member, source *testcase.VariableReference) (any, symbolic.Expression, error) {
	if field.Get == nil {
		return nil, nil, errors.Errorf("%s cannot be read", field.ID())
	}
	receiver, receiverExpression, err := receiverOf(scope, field, source)
	if err != nil {
		return nil, nil, err
	}

	j.touch(field.Owner.Name)
	e := &env{job: j, member: field, receiver: receiverExpression}
	value, err := field.Get(e, receiver)
	if err != nil {
		return nil, nil, err
	}
	return value, e.result, nil
}

func write(j *job, scope *Scope, field *cluster.Member, source, value *testcase.VariableReference) error {
	if field.Set == nil {
		return errors.Errorf("%s is read-only", field.ID())
	}
	receiver, receiverExpression, err := receiverOf(scope, field, source)
	if err != nil {
		return err
	}
	v, err := scope.Value(value)
	if err != nil {
		return err
	}

	j.touch(field.Owner.Name)
	e := &env{
		job:      j,
		member:   field,
		args:     []symbolic.Expression{scope.Expression(value)},
		receiver: receiverExpression,
	}
	return field.Set(e, receiver, v)
}
