package testcase

import (
	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/types"
	"github.com/fxamacker/cbor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Statement kinds used in serialized test cases.
const (
	kindConstructor          = "constructor"
	kindMethod               = "method"
	kindField                = "field"
	kindFieldAssignment      = "fieldAssignment"
	kindPrimitive            = "primitive"
	kindArray                = "array"
	kindArrayIndexAssignment = "arrayIndexAssignment"
	kindNull                 = "null"
	kindPrivateField         = "privateField"
	kindPrivateMethod        = "privateMethod"
	kindFunctionalMock       = "mock"
)

// statementDescriptor is the serialized form of a statement. Operands are stored by position, -1 marking an absent
// receiver.
type statementDescriptor struct {
	Kind     string      `cbor:"kind"`
	Member   string      `cbor:"member,omitempty"`
	Owner    *types.Type `cbor:"owner,omitempty"`
	Type     *types.Type `cbor:"type,omitempty"`
	Callee   int         `cbor:"callee"`
	Inputs   []int       `cbor:"inputs,omitempty"`
	Value    any         `cbor:"value"`
	Length   int         `cbor:"length,omitempty"`
	Index    int         `cbor:"index,omitempty"`
	Distance int         `cbor:"distance,omitempty"`
}

// testCaseDescriptor is the serialized form of a test case.
type testCaseDescriptor struct {
	ID         string                `cbor:"id"`
	Statements []statementDescriptor `cbor:"statements"`
}

// suiteDescriptor is the serialized form of a test suite.
type suiteDescriptor struct {
	Tests []testCaseDescriptor `cbor:"tests"`
}

func positions(vs []*VariableReference) []int {
	result := make([]int, len(vs))
	for i, v := range vs {
		result[i] = v.Position()
	}
	return result
}

func positionOf(v *VariableReference) int {
	if v == nil {
		return -1
	}
	return v.Position()
}

func describeMember(d *statementDescriptor, m *cluster.Member) {
	d.Member = m.ID()
	if m.HasTypeVariables() || len(m.Owner.Arguments) > 0 {
		d.Owner = m.Owner
	}
}

func describe(tc *TestCase) testCaseDescriptor {
	descriptor := testCaseDescriptor{
		ID:         tc.ID.String(),
		Statements: make([]statementDescriptor, len(tc.statements)),
	}
	for i, st := range tc.statements {
		d := statementDescriptor{Callee: -1, Distance: st.ReturnValue().Distance}
		switch s := st.(type) {
		case *ConstructorStatement:
			d.Kind = kindConstructor
			describeMember(&d, s.Constructor)
			d.Inputs = positions(s.Params)
		case *MethodStatement:
			d.Kind = kindMethod
			describeMember(&d, s.Method)
			d.Callee = positionOf(s.Callee)
			d.Inputs = positions(s.Params)
		case *FieldStatement:
			d.Kind = kindField
			describeMember(&d, s.Field)
			d.Callee = positionOf(s.Source)
		case *FieldAssignmentStatement:
			d.Kind = kindFieldAssignment
			describeMember(&d, s.Field)
			d.Callee = positionOf(s.Source)
			d.Inputs = []int{s.Value.Position()}
		case *PrimitiveStatement:
			d.Kind = kindPrimitive
			d.Type = s.Type()
			d.Value = s.Value
		case *ArrayStatement:
			d.Kind = kindArray
			d.Type = s.ReturnValue().Type
			d.Length = s.Length
		case *ArrayIndexAssignmentStatement:
			d.Kind = kindArrayIndexAssignment
			d.Callee = s.Array().Position()
			d.Index = s.Index()
			d.Inputs = []int{s.Value.Position()}
		case *NullStatement:
			d.Kind = kindNull
			d.Type = s.ReturnValue().Type
		case *PrivateFieldStatement:
			d.Kind = kindPrivateField
			describeMember(&d, s.Field)
			d.Callee = s.Callee.Position()
			d.Inputs = []int{s.Value.Position()}
		case *PrivateMethodStatement:
			d.Kind = kindPrivateMethod
			describeMember(&d, s.Method)
			d.Callee = s.Callee.Position()
			d.Inputs = positions(s.Params)
		case *FunctionalMockStatement:
			d.Kind = kindFunctionalMock
			d.Type = s.Mock.Type
			d.Inputs = positions(s.Answers)
		}
		descriptor.Statements[i] = d
	}
	return descriptor
}

// Encode serializes a test case to CBOR.
func Encode(tc *TestCase) ([]byte, error) {
	b, err := cbor.Marshal(describe(tc), cbor.EncOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// EncodeSuite serializes a test suite to CBOR.
func EncodeSuite(suite *TestSuite) ([]byte, error) {
	descriptor := suiteDescriptor{Tests: make([]testCaseDescriptor, len(suite.Tests))}
	for i, tc := range suite.Tests {
		descriptor.Tests[i] = describe(tc)
	}
	b, err := cbor.Marshal(descriptor, cbor.EncOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// Decode deserializes a test case, resolving members against the cluster it was generated from.
func Decode(data []byte, c *cluster.TestCluster) (*TestCase, error) {
	var descriptor testCaseDescriptor
	if err := cbor.Unmarshal(data, &descriptor); err != nil {
		return nil, errors.WithStack(err)
	}
	return restore(descriptor, c)
}

// DecodeSuite deserializes a test suite.
func DecodeSuite(data []byte, c *cluster.TestCluster) (*TestSuite, error) {
	var descriptor suiteDescriptor
	if err := cbor.Unmarshal(data, &descriptor); err != nil {
		return nil, errors.WithStack(err)
	}
	suite := NewTestSuite()
	for _, d := range descriptor.Tests {
		tc, err := restore(d, c)
		if err != nil {
			return nil, err
		}
		suite.Add(tc)
	}
	return suite, nil
}

func restore(descriptor testCaseDescriptor, c *cluster.TestCluster) (*TestCase, error) {
	tc := New()
	if id, err := uuid.Parse(descriptor.ID); err == nil {
		tc.ID = id
	}

	operand := func(position int) (*VariableReference, error) {
		if position < 0 {
			return nil, nil
		}
		if position >= tc.Size() {
			return nil, errors.Errorf("operand refers to undefined position %d", position)
		}
		return tc.ReturnValue(position), nil
	}
	operands := func(ps []int) ([]*VariableReference, error) {
		result := make([]*VariableReference, len(ps))
		for i, p := range ps {
			v, err := operand(p)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, errors.Errorf("missing operand")
			}
			result[i] = v
		}
		return result, nil
	}
	member := func(d statementDescriptor) (*cluster.Member, error) {
		m, ok := c.Member(d.Member)
		if !ok {
			return nil, errors.Errorf("unknown member %q", d.Member)
		}
		if d.Owner != nil {
			m = m.WithOwner(d.Owner, c.Substitution())
		}
		return m, nil
	}

	for i, d := range descriptor.Statements {
		callee, err := operand(d.Callee)
		if err != nil {
			return nil, errors.Wrapf(err, "statement %d", i)
		}
		inputs, err := operands(d.Inputs)
		if err != nil {
			return nil, errors.Wrapf(err, "statement %d", i)
		}

		var st Statement
		switch d.Kind {
		case kindConstructor, kindMethod, kindField, kindFieldAssignment, kindPrivateField, kindPrivateMethod:
			m, err := member(d)
			if err != nil {
				return nil, errors.Wrapf(err, "statement %d", i)
			}
			switch d.Kind {
			case kindConstructor:
				st = NewConstructorStatement(m, inputs)
			case kindMethod:
				st = NewMethodStatement(m, callee, inputs)
			case kindField:
				st = NewFieldStatement(m, callee)
			case kindFieldAssignment:
				if len(inputs) != 1 {
					return nil, errors.Errorf("statement %d: field assignment needs one value", i)
				}
				st = NewFieldAssignmentStatement(m, callee, inputs[0])
			case kindPrivateField:
				if len(inputs) != 1 || callee == nil {
					return nil, errors.Errorf("statement %d: private field assignment needs a receiver and a value", i)
				}
				st = NewPrivateFieldStatement(m, callee, inputs[0])
			default:
				if callee == nil {
					return nil, errors.Errorf("statement %d: private method needs a receiver", i)
				}
				st = NewPrivateMethodStatement(m, callee, inputs)
			}
		case kindPrimitive:
			st = NewPrimitiveStatement(d.Type, NormalizeValue(d.Type, d.Value))
		case kindArray:
			st = NewArrayStatement(d.Type, d.Length)
		case kindArrayIndexAssignment:
			if callee == nil || len(inputs) != 1 {
				return nil, errors.Errorf("statement %d: array assignment needs an array and a value", i)
			}
			st = NewArrayIndexAssignmentStatement(callee, d.Index, inputs[0])
		case kindNull:
			st = NewNullStatement(d.Type)
		case kindFunctionalMock:
			spec, ok := c.Mock(d.Type.Name)
			if !ok {
				return nil, errors.Errorf("statement %d: no mock for %s", i, d.Type)
			}
			st = NewFunctionalMockStatement(spec, inputs)
		default:
			return nil, errors.Errorf("statement %d has unknown kind %q", i, d.Kind)
		}
		st.ReturnValue().Distance = d.Distance
		tc.AppendStatement(st)
	}
	return tc, nil
}

// NormalizeValue converts a decoded literal to the representation used for values of type t: bool for booleans,
// int64 for other integral types, float64 for floating types and string for strings and enum constants.
func NormalizeValue(t *types.Type, value any) any {
	switch {
	case t.Kind == types.KindBool:
		switch v := value.(type) {
		case bool:
			return v
		case nil:
			return false
		default:
			return asInt64(v) != 0
		}
	case t.IsIntegral():
		return asInt64(value)
	case t.IsFloating():
		switch v := value.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		default:
			return float64(asInt64(v))
		}
	case t.Kind == types.KindString || t.Kind == types.KindEnum:
		s, _ := value.(string)
		return s
	}
	return value
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	}
	return 0
}
