package factory

import (
	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/crytic/evosynth/utils/randomutils"
)

// ChangeRandomCall replaces st with a call to another member producing the same type, whose receiver and parameters
// can be drawn from values already in scope. Returns false for statements invoking no member, or if no replacement
// exists or it cannot be built.
func (f *TestFactory) ChangeRandomCall(tc *testcase.TestCase, st testcase.Statement) bool {
	if st.Member() == nil {
		return false
	}
	position := st.Position()
	objects := make([]*testcase.VariableReference, 0)
	for _, v := range tc.AllObjects(position) {
		if !tc.IsFunctionalMock(v) {
			objects = append(objects, v)
		}
	}

	calls := f.possibleCalls(st.ReturnValue().Type, objects)
	if current := st.Member(); current != nil && len(current.Params) > 0 {
		calls = removeMember(calls, current)
	}
	call, ok := randomutils.Choice(f.randomProvider, calls)
	if !ok {
		return false
	}
	if err := f.ChangeCall(tc, st, call); err != nil {
		f.logger.Trace("Changing ", st.Code(), " to ", call.ID(), " failed: ", err)
		return false
	}
	return true
}

// ChangeCall replaces st with a call to call, drawing the receiver and every parameter from values defined before
// st. Uses of the value of st are rewired to the value of the new statement.
func (f *TestFactory) ChangeCall(tc *testcase.TestCase, st testcase.Statement, call *cluster.Member) error {
	position := st.Position()
	old := st.ReturnValue()
	if err := f.checkInvocable(tc, call); err != nil && !sameMember(st.Member(), call) {
		return err
	}

	pick := func(t *types.Type, req request) (*testcase.VariableReference, error) {
		v, ok := randomutils.Choice(f.randomProvider, f.candidatesForReuse(tc, t, position, req))
		if !ok {
			return nil, failf(ReasonNoCandidates, "no value of %s before position %d", t, position)
		}
		return v, nil
	}

	var callee *testcase.VariableReference
	if !call.IsConstructor() && !call.Static {
		var err error
		if callee, err = pick(call.Owner, request{}); err != nil {
			return err
		}
		call = call.WithOwner(callee.Type, f.cluster.Substitution())
	}
	call = call.Instantiate(f.cluster.Substitution())

	var replacement testcase.Statement
	switch {
	case call.IsField():
		replacement = testcase.NewFieldStatement(call, callee)
	default:
		params := make([]*testcase.VariableReference, len(call.Params))
		bound := make(map[*testcase.VariableReference]bool)
		for i, p := range call.Params {
			v, err := pick(p, request{exclude: callee, allowNull: true, canUseMocks: true, unbound: call.IsBounded(i)})
			if err != nil {
				return err
			}
			if call.IsBounded(i) {
				if bound[v] {
					return failf(ReasonNoCandidates, "%s is already bound", v.Name())
				}
				bound[v] = true
			}
			params[i] = v
		}
		if call.IsConstructor() {
			replacement = testcase.NewConstructorStatement(call, params)
		} else {
			replacement = testcase.NewMethodStatement(call, callee, params)
		}
	}

	if !f.universe().IsAssignable(replacement.ReturnValue().Type, old.Type) {
		return failf(ReasonTypeMismatch, "%s produces %s, not %s", call.ID(), replacement.ReturnValue().Type, old.Type)
	}
	replacement.ReturnValue().Distance = old.Distance
	tc.SetStatement(replacement, position)
	return nil
}

// possibleCalls returns the generators of t whose receiver and parameters all have a value among objects. Methods
// and fields must produce exactly t.
func (f *TestFactory) possibleCalls(t *types.Type, objects []*testcase.VariableReference) []*cluster.Member {
	calls := make([]*cluster.Member, 0)
	if t.IsVoid() {
		return calls
	}
	for _, call := range f.cluster.GetGenerators(t) {
		if !call.IsConstructor() && !call.Returns.Equal(t) {
			continue
		}
		dependencies := append([]*types.Type(nil), call.Params...)
		if !call.IsConstructor() && !call.Static {
			dependencies = append(dependencies, call.Owner)
		}
		if f.dependenciesSatisfied(dependencies, objects) {
			calls = append(calls, call)
		}
	}
	return calls
}

func (f *TestFactory) dependenciesSatisfied(dependencies []*types.Type, objects []*testcase.VariableReference) bool {
	for _, dependency := range dependencies {
		satisfied := false
		for _, v := range objects {
			if f.universe().IsAssignable(v.Type, dependency) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

func sameMember(a, b *cluster.Member) bool {
	return a != nil && b != nil && a.ID() == b.ID()
}

func removeMember(calls []*cluster.Member, m *cluster.Member) []*cluster.Member {
	result := make([]*cluster.Member, 0, len(calls))
	for _, call := range calls {
		if !sameMember(call, m) {
			result = append(result, call)
		}
	}
	return result
}
