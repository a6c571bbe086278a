package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/types"
)

// MemberKind describes what a Member invokes.
type MemberKind int

const (
	Constructor MemberKind = iota
	Method
	Field
)

// String returns the name of the member kind.
func (k MemberKind) String() string {
	switch k {
	case Constructor:
		return "constructor"
	case Method:
		return "method"
	default:
		return "field"
	}
}

// Invoker runs a constructor or method of the program under test. Static members and constructors receive a nil
// receiver. A returned error is treated as an exception thrown by the code under test.
type Invoker func(env Env, receiver any, args []any) (any, error)

// Env is the view of the execution sandbox given to code under test while it runs.
type Env interface {
	// Context is cancelled when the execution is killed.
	Context() context.Context

	// Arg returns the symbolic expression of the i-th argument.
	Arg(i int) symbolic.Expression

	// Receiver returns the symbolic expression of the receiver, if it is primitive-like.
	Receiver() symbolic.Expression

	// Branch records a decision of the member on condition and returns whether it holds. It is a safe point at which
	// a killed execution stops.
	Branch(index int, condition symbolic.Constraint) bool

	// Covered records a decision on state that has no symbolic representation. It is a safe point as well.
	Covered(index int, outcome bool)

	// Require checks that the capability has been granted to the code under test.
	Require(capability string) error

	// Go spawns a goroutine, provided the spawn capability has been granted.
	Go(fn func()) error

	// StaticInit runs fn the first time the static state of the named type is touched in the current execution.
	StaticInit(typeName string, fn func())

	// SetResult attaches a symbolic expression to the value returned by the member.
	SetResult(expression symbolic.Expression)
}

// Member is a constructor, method or field of the program under test, registered with its declared types and the
// functions that invoke it.
type Member struct {
	// Name describes the declared name of the member.
	Name string

	// Kind describes what the member invokes.
	Kind MemberKind

	// Owner describes the type declaring the member.
	Owner *types.Type

	// Static indicates the member needs no receiver.
	Static bool

	// Private indicates the member is only reachable reflectively.
	Private bool

	// Params describes the parameter types of constructors and methods.
	Params []*types.Type

	// Returns describes the produced type: the owner for constructors, the result for methods and the field type
	// for fields.
	Returns *types.Type

	// BoundedParams lists parameter indexes whose arguments become bound to the produced object and may not be
	// reassigned afterwards.
	BoundedParams []int

	// AtMostOnce indicates the member may be invoked at most once per test.
	AtMostOnce bool

	// Branches describes how many decision points the member reports through Env.Branch and Env.Covered. Each
	// contributes two coverage goals.
	Branches int

	// Invoke runs constructors and methods.
	Invoke Invoker

	// Get reads a field.
	Get func(env Env, receiver any) (any, error)

	// Set writes a field. Fields without a setter are read-only.
	Set func(env Env, receiver any, value any) error
}

// ID returns the identifier under which the member is registered.
func (m *Member) ID() string {
	return fmt.Sprintf("%s.%s/%d", m.Owner.Name, m.Name, len(m.Params))
}

// IsConstructor indicates whether the member is a constructor.
func (m *Member) IsConstructor() bool { return m.Kind == Constructor }

// IsMethod indicates whether the member is a method.
func (m *Member) IsMethod() bool { return m.Kind == Method }

// IsField indicates whether the member is a field.
func (m *Member) IsField() bool { return m.Kind == Field }

// IsAssignable indicates whether the member is a writable field.
func (m *Member) IsAssignable() bool { return m.Kind == Field && m.Set != nil }

// IsBounded indicates whether the i-th parameter is bound to the produced object.
func (m *Member) IsBounded(i int) bool {
	for _, b := range m.BoundedParams {
		if b == i {
			return true
		}
	}
	return false
}

// HasTypeVariables indicates whether any declared type of the member is generic.
func (m *Member) HasTypeVariables() bool {
	if m.Owner.HasTypeVariables() || m.Returns.HasTypeVariables() {
		return true
	}
	for _, p := range m.Params {
		if p.HasTypeVariables() {
			return true
		}
	}
	return false
}

// Instantiate returns a copy of the member with the substitution applied to every declared type.
func (m *Member) Instantiate(s types.Substitution) *Member {
	if !m.HasTypeVariables() {
		return m
	}
	c := *m
	c.Owner = s.Instantiate(m.Owner)
	c.Returns = s.Instantiate(m.Returns)
	c.Params = make([]*types.Type, len(m.Params))
	for i, p := range m.Params {
		c.Params[i] = s.Instantiate(p)
	}
	return &c
}

// WithOwner returns the member instantiated for a concrete owner, binding the owner's type arguments.
func (m *Member) WithOwner(owner *types.Type, fallback types.Substitution) *Member {
	if !m.HasTypeVariables() {
		return m
	}
	s := fallback.Clone()
	for k := range s {
		if isOwnerVariable(m.Owner, k) {
			delete(s, k)
		}
	}
	s.Unify(m.Owner, owner)
	return m.Instantiate(s)
}

// String returns a readable signature of the member.
func (m *Member) String() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	switch m.Kind {
	case Field:
		return fmt.Sprintf("%s.%s %s", m.Owner, m.Name, m.Returns)
	case Constructor:
		return fmt.Sprintf("%s(%s)", m.Name, strings.Join(params, ", "))
	default:
		return fmt.Sprintf("%s.%s(%s) %s", m.Owner, m.Name, strings.Join(params, ", "), m.Returns)
	}
}

func isOwnerVariable(owner *types.Type, name string) bool {
	for _, a := range owner.Arguments {
		if a.Kind == types.KindTypeVariable && a.Name == name {
			return true
		}
	}
	return false
}

// MockMethod describes one method of a mockable interface whose answer is configured by the test.
type MockMethod struct {
	// Name describes the mocked method.
	Name string

	// Returns describes the type of the configured answer.
	Returns *types.Type
}

// MockSpec describes how to build a functional mock of an interface type from a set of configured answers.
type MockSpec struct {
	// Type describes the mocked interface.
	Type *types.Type

	// Methods describes the mocked methods, in the order their answers are supplied.
	Methods []MockMethod

	// Build returns an object implementing Type that answers each method with the corresponding value.
	Build func(answers []any) any
}
