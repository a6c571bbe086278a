package testcase

import (
	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
)

// Validate checks the structural invariants of the test case: every operand resolves to a value defined strictly
// earlier, operands are assignable to the types they are consumed as, bounded values are never reassigned, members
// restricted to a single invocation are invoked at most once, and functional mocks are never receivers and are
// consumed by at most maxMockConsumers statements.
func (tc *TestCase) Validate(u *types.Universe, maxMockConsumers int) error {
	bounded := make(map[*VariableReference]int)
	invocations := make(map[string]int)

	for i, st := range tc.statements {
		if st.Position() != i {
			return errors.Errorf("statement %d reports position %d", i, st.Position())
		}

		for _, input := range st.Inputs() {
			if input == nil {
				return errors.Errorf("statement %d has a nil operand", i)
			}
			p := input.Position()
			if p >= i {
				return errors.Errorf("statement %d refers to %s defined at position %d", i, input.Name(), p)
			}
			if tc.statements[p].ReturnValue() != input {
				return errors.Errorf("statement %d refers to %s which is not defined in this test", i, input.Name())
			}
			if input.IsVoid() {
				return errors.Errorf("statement %d consumes a void value", i)
			}
		}

		if err := tc.checkTypes(u, st); err != nil {
			return errors.Wrapf(err, "statement %d", i)
		}

		if callee := Callee(st); callee != nil {
			if tc.IsFunctionalMock(callee) {
				return errors.Errorf("statement %d uses functional mock %s as a receiver", i, callee.Name())
			}
			if _, ok := bounded[callee]; ok && IsAssignment(st) {
				return errors.Errorf("statement %d reassigns bounded variable %s", i, callee.Name())
			}
		}
		for _, b := range BoundedInputs(st) {
			if previous, ok := bounded[b]; ok {
				return errors.Errorf("statement %d binds %s already bound at position %d", i, b.Name(), previous)
			}
			bounded[b] = i
		}

		if m := st.Member(); m != nil && m.AtMostOnce {
			invocations[m.ID()]++
			if invocations[m.ID()] > 1 {
				return errors.Errorf("statement %d invokes %s more than once", i, m.ID())
			}
		}

		if mock := st.ReturnValue(); tc.IsFunctionalMock(mock) {
			if n := tc.MockUsageCount(mock); n > maxMockConsumers {
				return errors.Errorf("functional mock %s is consumed %d times", mock.Name(), n)
			}
		}
	}
	return nil
}

// checkTypes verifies that the operands of st are assignable to the types its member declares.
func (tc *TestCase) checkTypes(u *types.Universe, st Statement) error {
	check := func(v *VariableReference, expected *types.Type) error {
		if v == nil {
			return nil
		}
		if tc.IsNull(v) && expected.IsNullable() {
			return nil
		}
		if !u.IsAssignable(v.Type, expected) {
			return errors.Errorf("%s of type %s is not assignable to %s", v.Name(), v.Type, expected)
		}
		return nil
	}
	checkParams := func(params []*VariableReference, expected []*types.Type) error {
		if len(params) != len(expected) {
			return errors.Errorf("expected %d arguments, got %d", len(expected), len(params))
		}
		for i, p := range params {
			if err := check(p, expected[i]); err != nil {
				return err
			}
		}
		return nil
	}

	switch s := st.(type) {
	case *ConstructorStatement:
		return checkParams(s.Params, s.Constructor.Params)
	case *MethodStatement:
		if s.Callee == nil && !s.Method.Static {
			return errors.Errorf("instance method %s has no receiver", s.Method.Name)
		}
		if err := check(s.Callee, s.Method.Owner); err != nil {
			return err
		}
		return checkParams(s.Params, s.Method.Params)
	case *FieldStatement:
		return check(s.Source, s.Field.Owner)
	case *FieldAssignmentStatement:
		if err := check(s.Source, s.Field.Owner); err != nil {
			return err
		}
		return check(s.Value, s.Field.Returns)
	case *ArrayIndexAssignmentStatement:
		array := s.Array()
		if !array.Type.IsArray() {
			return errors.Errorf("%s is not an array", array.Name())
		}
		if length := array.ArrayLength(); length >= 0 && s.Index() >= length {
			return errors.Errorf("index %d is out of bounds for %s", s.Index(), array.Name())
		}
		return check(s.Value, array.Type.Component)
	case *PrivateFieldStatement:
		if err := check(s.Callee, s.Field.Owner); err != nil {
			return err
		}
		return check(s.Value, s.Field.Returns)
	case *PrivateMethodStatement:
		if err := check(s.Callee, s.Method.Owner); err != nil {
			return err
		}
		return checkParams(s.Params, s.Method.Params)
	case *FunctionalMockStatement:
		expected := make([]*types.Type, len(s.Mock.Methods))
		for i, m := range s.Mock.Methods {
			expected[i] = m.Returns
		}
		return checkParams(s.Answers, expected)
	}
	return nil
}
