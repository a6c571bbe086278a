package factory

import (
	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/crytic/evosynth/utils/randomutils"
)

// AddConstructor inserts a constructor call at position, satisfying its parameters first.
func (f *TestFactory) AddConstructor(tc *testcase.TestCase, constructor *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.addConstructor(tc, constructor, position, depth)
		return err
	})
	return v, err
}

// AddMethod inserts a method call at position, providing a receiver for instance methods and satisfying the
// parameters first.
func (f *TestFactory) AddMethod(tc *testcase.TestCase, method *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.addMethod(tc, method, position, depth)
		return err
	})
	return v, err
}

// AddMethodFor inserts a call of method on callee at position.
func (f *TestFactory) AddMethodFor(tc *testcase.TestCase, callee *testcase.VariableReference, method *cluster.Member, position int) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.addMethodFor(tc, callee, method, position)
		return err
	})
	return v, err
}

// AddField inserts a field read at position, providing a source object for instance fields.
func (f *TestFactory) AddField(tc *testcase.TestCase, field *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.addField(tc, field, position, depth)
		return err
	})
	return v, err
}

// AddFieldFor inserts a read of field from callee at position.
func (f *TestFactory) AddFieldFor(tc *testcase.TestCase, callee *testcase.VariableReference, field *cluster.Member, position int) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.addFieldFor(tc, callee, field, position)
		return err
	})
	return v, err
}

// AddFieldAssignment inserts a write of a value to field at position, providing the source object and the value.
func (f *TestFactory) AddFieldAssignment(tc *testcase.TestCase, field *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.addFieldAssignment(tc, nil, field, position, depth)
		return err
	})
	return v, err
}

// AddFunctionalMock inserts a functional mock of t at position, providing a value for each mocked method.
func (f *TestFactory) AddFunctionalMock(tc *testcase.TestCase, t *types.Type, position int, depth int) (*testcase.VariableReference, error) {
	var v *testcase.VariableReference
	err := f.atomically(tc, position, func() error {
		var err error
		v, err = f.addFunctionalMock(tc, t, position, depth)
		return err
	})
	return v, err
}

// AddCallFor inserts a call of a method or field of callee at position.
func (f *TestFactory) AddCallFor(tc *testcase.TestCase, callee *testcase.VariableReference, call *cluster.Member, position int) error {
	return f.atomically(tc, position, func() error {
		return f.addCallFor(tc, callee, call, position)
	})
}

// AssignArray inserts an assignment of a reused or generated value to array[index] at position.
func (f *TestFactory) AssignArray(tc *testcase.TestCase, array *testcase.VariableReference, index int, position int) error {
	return f.atomically(tc, position, func() error {
		return f.assignArray(tc, array, index, position, 0)
	})
}

func (f *TestFactory) addConstructor(tc *testcase.TestCase, constructor *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	if depth > f.config.MaxRecursion {
		return nil, failf(ReasonMaxRecursion, "depth %d adding %s", depth, constructor.ID())
	}
	if err := f.checkInvocable(tc, constructor); err != nil {
		return nil, err
	}
	constructor = constructor.Instantiate(f.cluster.Substitution())

	length := tc.Size()
	params, err := f.satisfyParameters(tc, nil, constructor.Params, constructor.BoundedParams, position, depth+1, true, true)
	if err != nil {
		return nil, err
	}
	position += tc.Size() - length
	return tc.AddStatement(testcase.NewConstructorStatement(constructor, params), position), nil
}

func (f *TestFactory) addMethod(tc *testcase.TestCase, method *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	if depth > f.config.MaxRecursion {
		return nil, failf(ReasonMaxRecursion, "depth %d adding %s", depth, method.ID())
	}
	if err := f.checkInvocable(tc, method); err != nil {
		return nil, err
	}

	var callee *testcase.VariableReference
	if !method.Static {
		length := tc.Size()
		var err error
		callee, err = f.calleeFor(tc, method.Instantiate(f.cluster.Substitution()), position, depth+1)
		if err != nil {
			return nil, err
		}
		position += tc.Size() - length
		method = method.WithOwner(callee.Type, f.cluster.Substitution())
	}
	method = method.Instantiate(f.cluster.Substitution())

	length := tc.Size()
	params, err := f.satisfyParameters(tc, callee, method.Params, method.BoundedParams, position, depth+1, true, true)
	if err != nil {
		return nil, err
	}
	position += tc.Size() - length
	return tc.AddStatement(testcase.NewMethodStatement(method, callee, params), position), nil
}

func (f *TestFactory) addMethodFor(tc *testcase.TestCase, callee *testcase.VariableReference, method *cluster.Member, position int) (*testcase.VariableReference, error) {
	if position <= callee.Position() {
		return nil, failf(ReasonInvalidPosition, "cannot call %s on %s at position %d", method.ID(), callee.Name(), position)
	}
	if tc.IsFunctionalMock(callee) {
		return nil, failf(ReasonMockAsCallee, "%s as receiver of %s", callee.Name(), method.ID())
	}
	if err := f.checkInvocable(tc, method); err != nil {
		return nil, err
	}
	f.resetRecursion()
	method = method.WithOwner(callee.Type, f.cluster.Substitution()).Instantiate(f.cluster.Substitution())

	length := tc.Size()
	params, err := f.satisfyParameters(tc, callee, method.Params, method.BoundedParams, position, 1, true, true)
	if err != nil {
		return nil, err
	}
	position += tc.Size() - length
	v := tc.AddStatement(testcase.NewMethodStatement(method, callee, params), position)
	v.Distance = callee.Distance + 1
	return v, nil
}

func (f *TestFactory) addField(tc *testcase.TestCase, field *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	if depth > f.config.MaxRecursion {
		return nil, failf(ReasonMaxRecursion, "depth %d adding %s", depth, field.ID())
	}

	var source *testcase.VariableReference
	if !field.Static {
		length := tc.Size()
		var err error
		source, err = f.calleeFor(tc, field.Instantiate(f.cluster.Substitution()), position, depth+1)
		if err != nil {
			return nil, err
		}
		position += tc.Size() - length
		field = field.WithOwner(source.Type, f.cluster.Substitution())
	}
	field = field.Instantiate(f.cluster.Substitution())
	return tc.AddStatement(testcase.NewFieldStatement(field, source), position), nil
}

func (f *TestFactory) addFieldFor(tc *testcase.TestCase, callee *testcase.VariableReference, field *cluster.Member, position int) (*testcase.VariableReference, error) {
	if position <= callee.Position() {
		return nil, failf(ReasonInvalidPosition, "cannot read %s of %s at position %d", field.ID(), callee.Name(), position)
	}
	if tc.IsFunctionalMock(callee) {
		return nil, failf(ReasonMockAsCallee, "%s as source of %s", callee.Name(), field.ID())
	}
	f.resetRecursion()
	field = field.WithOwner(callee.Type, f.cluster.Substitution()).Instantiate(f.cluster.Substitution())
	v := tc.AddStatement(testcase.NewFieldStatement(field, callee), position)
	v.Distance = callee.Distance + 1
	return v, nil
}

// addFieldAssignment writes a value to field of source, providing a source when it is nil and the field is not
// static.
func (f *TestFactory) addFieldAssignment(tc *testcase.TestCase, source *testcase.VariableReference, field *cluster.Member, position int, depth int) (*testcase.VariableReference, error) {
	if depth > f.config.MaxRecursion {
		return nil, failf(ReasonMaxRecursion, "depth %d assigning %s", depth, field.ID())
	}
	if !field.IsAssignable() {
		return nil, failf(ReasonInaccessible, "%s is read-only", field.ID())
	}

	if !field.Static {
		if source == nil {
			length := tc.Size()
			var err error
			source, err = f.calleeFor(tc, field.Instantiate(f.cluster.Substitution()), position, depth+1)
			if err != nil {
				return nil, err
			}
			position += tc.Size() - length
		} else if tc.IsFunctionalMock(source) {
			return nil, failf(ReasonMockAsCallee, "%s as target of %s", source.Name(), field.ID())
		}
		if tc.IsBounded(source) {
			return nil, failf(ReasonInaccessible, "%s is bound and may not be reassigned", source.Name())
		}
		field = field.WithOwner(source.Type, f.cluster.Substitution())
	} else {
		source = nil
	}
	field = field.Instantiate(f.cluster.Substitution())

	length := tc.Size()
	value, err := f.createOrReuseVariable(tc, field.Returns, position, depth+1, request{
		exclude:     source,
		allowNull:   true,
		canUseMocks: true,
	})
	if err != nil {
		return nil, err
	}
	position += tc.Size() - length
	if source != nil && value == source {
		return nil, failf(ReasonSelfAssignment, "%s.%s = %s", source.Name(), field.Name, value.Name())
	}
	if !f.universe().IsAssignable(value.Type, field.Returns) && !(tc.IsNull(value) && field.Returns.IsNullable()) {
		return nil, failf(ReasonTypeMismatch, "%s is not assignable to %s", value.Type, field.Returns)
	}
	return tc.AddStatement(testcase.NewFieldAssignmentStatement(field, source, value), position), nil
}

func (f *TestFactory) addFunctionalMock(tc *testcase.TestCase, t *types.Type, position int, depth int) (*testcase.VariableReference, error) {
	if depth > f.config.MaxRecursion {
		return nil, failf(ReasonMaxRecursion, "depth %d mocking %s", depth, t)
	}
	spec, ok := f.cluster.Mock(t.Name)
	if !ok {
		return nil, failf(ReasonNoGenerator, "%s cannot be mocked", t)
	}

	answers := make([]*testcase.VariableReference, 0, len(spec.Methods))
	for _, method := range spec.Methods {
		length := tc.Size()
		answer, err := f.createOrReuseVariable(tc, method.Returns, position, depth+1, request{allowNull: true})
		if err != nil {
			return nil, err
		}
		position += tc.Size() - length
		answers = append(answers, answer)
	}
	v := tc.AddStatement(testcase.NewFunctionalMockStatement(spec, answers), position)
	v.Distance = depth + 1
	return v, nil
}

func (f *TestFactory) addCallFor(tc *testcase.TestCase, callee *testcase.VariableReference, call *cluster.Member, position int) error {
	if position <= callee.Position() {
		return failf(ReasonInvalidPosition, "cannot use %s at position %d", callee.Name(), position)
	}
	switch {
	case call.IsMethod():
		_, err := f.addMethodFor(tc, callee, call, position)
		return err
	case call.IsField():
		if call.IsAssignable() && !tc.IsBounded(callee) && f.randomProvider.Intn(2) == 0 {
			if tc.IsFunctionalMock(callee) {
				return failf(ReasonMockAsCallee, "%s as target of %s", callee.Name(), call.ID())
			}
			f.resetRecursion()
			_, err := f.addFieldAssignment(tc, callee, call, position, 0)
			return err
		}
		_, err := f.addFieldFor(tc, callee, call, position)
		return err
	}
	return failf(ReasonInaccessible, "%s cannot be called on an object", call.ID())
}

// createArray inserts an array of type t with the given length at position and fills every slot.
func (f *TestFactory) createArray(tc *testcase.TestCase, t *types.Type, length int, position int, depth int) (*testcase.VariableReference, error) {
	t = f.instantiate(t)
	array := tc.AddStatement(testcase.NewArrayStatement(t, length), position)
	array.Distance = depth
	position++

	recursion := f.currentRecursion
	for i := 0; i < length; i++ {
		f.currentRecursion = make(map[string]bool, len(recursion))
		for id := range recursion {
			f.currentRecursion[id] = true
		}

		before := tc.Size()
		if err := f.assignArray(tc, array, i, position, depth); err != nil {
			f.currentRecursion = recursion
			return nil, err
		}
		position += tc.Size() - before
	}
	f.currentRecursion = recursion
	return array, nil
}

// arrayCandidates returns the values in scope that may be stored in array without aliasing elements of the array
// itself or of arrays of the same type.
func (f *TestFactory) arrayCandidates(tc *testcase.TestCase, array *testcase.VariableReference, position int) []*testcase.VariableReference {
	candidates := make([]*testcase.VariableReference, 0)
	for _, v := range f.candidatesForReuse(tc, array.Type.Component, position, request{exclude: array, allowNull: true, canUseMocks: true}) {
		if v.IsArrayIndex() && (v.Array() == array || v.Array().Type.Equal(array.Type)) {
			continue
		}
		candidates = append(candidates, v)
	}
	return candidates
}

func (f *TestFactory) assignArray(tc *testcase.TestCase, array *testcase.VariableReference, index int, position int, depth int) error {
	if !array.Type.IsArray() {
		return failf(ReasonTypeMismatch, "%s is not an array", array.Name())
	}
	if position <= array.Position() {
		return failf(ReasonInvalidPosition, "cannot assign %s at position %d", array.Name(), position)
	}
	if length := array.ArrayLength(); index < 0 || (length >= 0 && index >= length) {
		return failf(ReasonInvalidPosition, "index %d of %s", index, array.Name())
	}
	component := array.Type.Component

	var value *testcase.VariableReference
	candidates := f.arrayCandidates(tc, array, position)
	if len(candidates) > 0 && randomutils.Chance(f.randomProvider, f.config.ObjectReuseProbability) {
		value = candidates[f.randomProvider.Intn(len(candidates))]
	} else {
		length := tc.Size()
		var err error
		value, err = f.attemptGeneration(tc, component, position, depth+1, true, true)
		if err != nil {
			return err
		}
		if !f.universe().IsAssignable(value.Type, component) && !(tc.IsNull(value) && component.IsNullable()) {
			return failf(ReasonTypeMismatch, "%s is not assignable to %s", value.Type, component)
		}
		position += tc.Size() - length
	}
	tc.AddStatement(testcase.NewArrayIndexAssignmentStatement(array, index, value), position)
	return nil
}
