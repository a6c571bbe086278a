package testcase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/types"
)

// Statement is one operation of a test case. The concrete statement types of this package are the only
// implementations.
type Statement interface {
	// Position returns the index of the statement within its test case.
	Position() int

	// ReturnValue returns the reference to the value produced by the statement. Statements without a result return
	// a void reference.
	ReturnValue() *VariableReference

	// Inputs returns the operands of the statement, receivers included.
	Inputs() []*VariableReference

	// References indicates whether the statement uses v as an operand.
	References(v *VariableReference) bool

	// Replace substitutes every operand equal to old with replacement.
	Replace(old, replacement *VariableReference)

	// Member returns the invoked member, or nil for statements that invoke none.
	Member() *cluster.Member

	// Code returns the source representation of the statement.
	Code() string

	base() *statementBase
	copyTo(tc *TestCase) Statement
}

// statementBase holds the state shared by every statement.
type statementBase struct {
	position int
	retval   *VariableReference
}

func (b *statementBase) Position() int                   { return b.position }
func (b *statementBase) ReturnValue() *VariableReference { return b.retval }
func (b *statementBase) Member() *cluster.Member         { return nil }
func (b *statementBase) base() *statementBase            { return b }

func references(inputs []*VariableReference, v *VariableReference) bool {
	for _, input := range inputs {
		if input == v {
			return true
		}
	}
	return false
}

func replaceIn(inputs []*VariableReference, old, replacement *VariableReference) {
	for i, input := range inputs {
		if input == old {
			inputs[i] = replacement
		}
	}
}

func names(inputs []*VariableReference) string {
	s := make([]string, len(inputs))
	for i, input := range inputs {
		s[i] = input.Name()
	}
	return strings.Join(s, ", ")
}

// remap resolves a reference of another test case to the reference defined at the same position in tc.
func remap(tc *TestCase, v *VariableReference) *VariableReference {
	if v == nil {
		return nil
	}
	return tc.statements[v.Position()].ReturnValue()
}

func remapAll(tc *TestCase, vs []*VariableReference) []*VariableReference {
	result := make([]*VariableReference, len(vs))
	for i, v := range vs {
		result[i] = remap(tc, v)
	}
	return result
}

func assignment(retval *VariableReference, expression string) string {
	if retval.IsVoid() {
		return expression
	}
	return retval.Name() + " := " + expression
}

// ConstructorStatement creates an object by invoking a constructor.
type ConstructorStatement struct {
	statementBase
	Constructor *cluster.Member
	Params      []*VariableReference
}

// NewConstructorStatement returns a statement invoking constructor with the given arguments.
func NewConstructorStatement(constructor *cluster.Member, params []*VariableReference) *ConstructorStatement {
	st := &ConstructorStatement{Constructor: constructor, Params: params}
	st.retval = newVariable(constructor.Returns, st)
	return st
}

func (s *ConstructorStatement) Inputs() []*VariableReference { return append([]*VariableReference(nil), s.Params...) }
func (s *ConstructorStatement) References(v *VariableReference) bool {
	return references(s.Params, v)
}
func (s *ConstructorStatement) Replace(old, replacement *VariableReference) {
	replaceIn(s.Params, old, replacement)
}
func (s *ConstructorStatement) Member() *cluster.Member { return s.Constructor }
func (s *ConstructorStatement) Code() string {
	return assignment(s.retval, fmt.Sprintf("%s(%s)", s.Constructor.Name, names(s.Params)))
}
func (s *ConstructorStatement) copyTo(tc *TestCase) Statement {
	c := NewConstructorStatement(s.Constructor, remapAll(tc, s.Params))
	c.retval.Distance = s.retval.Distance
	return c
}

// MethodStatement invokes a method. Static methods have no callee.
type MethodStatement struct {
	statementBase
	Method *cluster.Member
	Callee *VariableReference
	Params []*VariableReference
}

// NewMethodStatement returns a statement invoking method on callee with the given arguments.
func NewMethodStatement(method *cluster.Member, callee *VariableReference, params []*VariableReference) *MethodStatement {
	st := &MethodStatement{Method: method, Callee: callee, Params: params}
	st.retval = newVariable(method.Returns, st)
	return st
}

func (s *MethodStatement) Inputs() []*VariableReference {
	inputs := make([]*VariableReference, 0, len(s.Params)+1)
	if s.Callee != nil {
		inputs = append(inputs, s.Callee)
	}
	return append(inputs, s.Params...)
}
func (s *MethodStatement) References(v *VariableReference) bool {
	return s.Callee == v || references(s.Params, v)
}
func (s *MethodStatement) Replace(old, replacement *VariableReference) {
	if s.Callee == old {
		s.Callee = replacement
	}
	replaceIn(s.Params, old, replacement)
}
func (s *MethodStatement) Member() *cluster.Member { return s.Method }
func (s *MethodStatement) Code() string {
	receiver := s.Method.Owner.Name
	if s.Callee != nil {
		receiver = s.Callee.Name()
	}
	return assignment(s.retval, fmt.Sprintf("%s.%s(%s)", receiver, s.Method.Name, names(s.Params)))
}
func (s *MethodStatement) copyTo(tc *TestCase) Statement {
	c := NewMethodStatement(s.Method, remap(tc, s.Callee), remapAll(tc, s.Params))
	c.retval.Distance = s.retval.Distance
	return c
}

// FieldStatement reads a field. Static fields have no source.
type FieldStatement struct {
	statementBase
	Field  *cluster.Member
	Source *VariableReference
}

// NewFieldStatement returns a statement reading field from source.
func NewFieldStatement(field *cluster.Member, source *VariableReference) *FieldStatement {
	st := &FieldStatement{Field: field, Source: source}
	st.retval = newVariable(field.Returns, st)
	return st
}

func (s *FieldStatement) Inputs() []*VariableReference {
	if s.Source == nil {
		return nil
	}
	return []*VariableReference{s.Source}
}
func (s *FieldStatement) References(v *VariableReference) bool { return s.Source == v }
func (s *FieldStatement) Replace(old, replacement *VariableReference) {
	if s.Source == old {
		s.Source = replacement
	}
}
func (s *FieldStatement) Member() *cluster.Member { return s.Field }
func (s *FieldStatement) Code() string {
	owner := s.Field.Owner.Name
	if s.Source != nil {
		owner = s.Source.Name()
	}
	return assignment(s.retval, owner+"."+s.Field.Name)
}
func (s *FieldStatement) copyTo(tc *TestCase) Statement {
	c := NewFieldStatement(s.Field, remap(tc, s.Source))
	c.retval.Distance = s.retval.Distance
	return c
}

// FieldAssignmentStatement writes a value to a field. It produces no value.
type FieldAssignmentStatement struct {
	statementBase
	Field  *cluster.Member
	Source *VariableReference
	Value  *VariableReference
}

// NewFieldAssignmentStatement returns a statement writing value to field of source.
func NewFieldAssignmentStatement(field *cluster.Member, source, value *VariableReference) *FieldAssignmentStatement {
	st := &FieldAssignmentStatement{Field: field, Source: source, Value: value}
	st.retval = newVariable(types.Void, st)
	return st
}

func (s *FieldAssignmentStatement) Inputs() []*VariableReference {
	if s.Source == nil {
		return []*VariableReference{s.Value}
	}
	return []*VariableReference{s.Source, s.Value}
}
func (s *FieldAssignmentStatement) References(v *VariableReference) bool {
	return s.Source == v || s.Value == v
}
func (s *FieldAssignmentStatement) Replace(old, replacement *VariableReference) {
	if s.Source == old {
		s.Source = replacement
	}
	if s.Value == old {
		s.Value = replacement
	}
}
func (s *FieldAssignmentStatement) Member() *cluster.Member { return s.Field }
func (s *FieldAssignmentStatement) Code() string {
	owner := s.Field.Owner.Name
	if s.Source != nil {
		owner = s.Source.Name()
	}
	return owner + "." + s.Field.Name + " = " + s.Value.Name()
}
func (s *FieldAssignmentStatement) copyTo(tc *TestCase) Statement {
	return NewFieldAssignmentStatement(s.Field, remap(tc, s.Source), remap(tc, s.Value))
}

// PrimitiveStatement defines a literal: a primitive, string, enum constant or environment value. Booleans are held
// as bool, other integral values as int64, floating values as float64, strings and enum constants as string.
type PrimitiveStatement struct {
	statementBase
	Value any
}

// NewPrimitiveStatement returns a literal of type t.
func NewPrimitiveStatement(t *types.Type, value any) *PrimitiveStatement {
	st := &PrimitiveStatement{Value: value}
	st.retval = newVariable(t, st)
	return st
}

// Type returns the declared type of the literal.
func (s *PrimitiveStatement) Type() *types.Type { return s.retval.Type }

// SymbolicName returns the name under which the literal appears as a symbolic variable.
func (s *PrimitiveStatement) SymbolicName() string { return s.retval.Name() }

func (s *PrimitiveStatement) Inputs() []*VariableReference       { return nil }
func (s *PrimitiveStatement) References(*VariableReference) bool { return false }
func (s *PrimitiveStatement) Replace(_, _ *VariableReference)    {}
func (s *PrimitiveStatement) Code() string {
	return assignment(s.retval, FormatLiteral(s.retval.Type, s.Value))
}
func (s *PrimitiveStatement) copyTo(*TestCase) Statement {
	c := NewPrimitiveStatement(s.retval.Type, s.Value)
	c.retval.Distance = s.retval.Distance
	return c
}

// FormatLiteral renders a literal value of type t.
func FormatLiteral(t *types.Type, value any) string {
	switch t.Kind {
	case types.KindString:
		s, _ := value.(string)
		return strconv.Quote(s)
	case types.KindChar:
		c, _ := value.(int64)
		return strconv.QuoteRune(rune(c))
	case types.KindBool:
		b, _ := value.(bool)
		return strconv.FormatBool(b)
	case types.KindEnum:
		return fmt.Sprintf("%s.%v", t.Name, value)
	case types.KindFloat, types.KindDouble:
		f, _ := value.(float64)
		return strconv.FormatFloat(f, 'g', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

// ArrayStatement creates an array of fixed length whose slots hold zero values until assigned.
type ArrayStatement struct {
	statementBase
	Length int
}

// NewArrayStatement returns a statement creating an array of type t.
func NewArrayStatement(t *types.Type, length int) *ArrayStatement {
	st := &ArrayStatement{Length: length}
	st.retval = newVariable(t, st)
	return st
}

func (s *ArrayStatement) Inputs() []*VariableReference       { return nil }
func (s *ArrayStatement) References(*VariableReference) bool { return false }
func (s *ArrayStatement) Replace(_, _ *VariableReference)    {}
func (s *ArrayStatement) Code() string {
	return assignment(s.retval, fmt.Sprintf("make([]%s, %d)", s.retval.Type.Component, s.Length))
}
func (s *ArrayStatement) copyTo(*TestCase) Statement {
	c := NewArrayStatement(s.retval.Type, s.Length)
	c.retval.Distance = s.retval.Distance
	return c
}

// ArrayIndexAssignmentStatement stores a value in an array slot. Its return value is an array index reference
// addressing that slot.
type ArrayIndexAssignmentStatement struct {
	statementBase
	Value *VariableReference
}

// NewArrayIndexAssignmentStatement returns a statement storing value at array[index].
func NewArrayIndexAssignmentStatement(array *VariableReference, index int, value *VariableReference) *ArrayIndexAssignmentStatement {
	st := &ArrayIndexAssignmentStatement{Value: value}
	st.retval = newArrayIndex(array, index, st)
	return st
}

// Array returns the array being assigned.
func (s *ArrayIndexAssignmentStatement) Array() *VariableReference { return s.retval.array }

// Index returns the slot being assigned.
func (s *ArrayIndexAssignmentStatement) Index() int { return s.retval.index }

func (s *ArrayIndexAssignmentStatement) Inputs() []*VariableReference {
	return []*VariableReference{s.retval.array, s.Value}
}
func (s *ArrayIndexAssignmentStatement) References(v *VariableReference) bool {
	return s.retval.array == v || s.Value == v
}
func (s *ArrayIndexAssignmentStatement) Replace(old, replacement *VariableReference) {
	if s.retval.array == old {
		s.retval.array = replacement
	}
	if s.Value == old {
		s.Value = replacement
	}
}
func (s *ArrayIndexAssignmentStatement) Code() string {
	return s.retval.Name() + " = " + s.Value.Name()
}
func (s *ArrayIndexAssignmentStatement) copyTo(tc *TestCase) Statement {
	return NewArrayIndexAssignmentStatement(remap(tc, s.retval.array), s.retval.index, remap(tc, s.Value))
}

// NullStatement defines a null value of a nullable type.
type NullStatement struct {
	statementBase
}

// NewNullStatement returns a null literal of type t.
func NewNullStatement(t *types.Type) *NullStatement {
	st := &NullStatement{}
	st.retval = newVariable(t, st)
	return st
}

func (s *NullStatement) Inputs() []*VariableReference       { return nil }
func (s *NullStatement) References(*VariableReference) bool { return false }
func (s *NullStatement) Replace(_, _ *VariableReference)    {}
func (s *NullStatement) Code() string {
	return assignment(s.retval, fmt.Sprintf("%s(nil)", s.retval.Type))
}
func (s *NullStatement) copyTo(*TestCase) Statement {
	c := NewNullStatement(s.retval.Type)
	c.retval.Distance = s.retval.Distance
	return c
}

// PrivateFieldStatement writes a private field of an object under test, bypassing its visibility.
type PrivateFieldStatement struct {
	statementBase
	Field  *cluster.Member
	Callee *VariableReference
	Value  *VariableReference
}

// NewPrivateFieldStatement returns a statement writing value to the private field of callee.
func NewPrivateFieldStatement(field *cluster.Member, callee, value *VariableReference) *PrivateFieldStatement {
	st := &PrivateFieldStatement{Field: field, Callee: callee, Value: value}
	st.retval = newVariable(types.Void, st)
	return st
}

func (s *PrivateFieldStatement) Inputs() []*VariableReference {
	return []*VariableReference{s.Callee, s.Value}
}
func (s *PrivateFieldStatement) References(v *VariableReference) bool {
	return s.Callee == v || s.Value == v
}
func (s *PrivateFieldStatement) Replace(old, replacement *VariableReference) {
	if s.Callee == old {
		s.Callee = replacement
	}
	if s.Value == old {
		s.Value = replacement
	}
}
func (s *PrivateFieldStatement) Member() *cluster.Member { return s.Field }
func (s *PrivateFieldStatement) Code() string {
	return fmt.Sprintf("setPrivateField(%s, %q, %s)", s.Callee.Name(), s.Field.Name, s.Value.Name())
}
func (s *PrivateFieldStatement) copyTo(tc *TestCase) Statement {
	return NewPrivateFieldStatement(s.Field, remap(tc, s.Callee), remap(tc, s.Value))
}

// PrivateMethodStatement invokes a private method of an object under test, bypassing its visibility.
type PrivateMethodStatement struct {
	statementBase
	Method *cluster.Member
	Callee *VariableReference
	Params []*VariableReference
}

// NewPrivateMethodStatement returns a statement invoking the private method on callee.
func NewPrivateMethodStatement(method *cluster.Member, callee *VariableReference, params []*VariableReference) *PrivateMethodStatement {
	st := &PrivateMethodStatement{Method: method, Callee: callee, Params: params}
	st.retval = newVariable(method.Returns, st)
	return st
}

func (s *PrivateMethodStatement) Inputs() []*VariableReference {
	return append([]*VariableReference{s.Callee}, s.Params...)
}
func (s *PrivateMethodStatement) References(v *VariableReference) bool {
	return s.Callee == v || references(s.Params, v)
}
func (s *PrivateMethodStatement) Replace(old, replacement *VariableReference) {
	if s.Callee == old {
		s.Callee = replacement
	}
	replaceIn(s.Params, old, replacement)
}
func (s *PrivateMethodStatement) Member() *cluster.Member { return s.Method }
func (s *PrivateMethodStatement) Code() string {
	args := s.Callee.Name() + ", " + strconv.Quote(s.Method.Name)
	if len(s.Params) > 0 {
		args += ", " + names(s.Params)
	}
	return assignment(s.retval, "callPrivateMethod("+args+")")
}
func (s *PrivateMethodStatement) copyTo(tc *TestCase) Statement {
	c := NewPrivateMethodStatement(s.Method, remap(tc, s.Callee), remapAll(tc, s.Params))
	c.retval.Distance = s.retval.Distance
	return c
}

// FunctionalMockStatement creates a stand-in object of an interface type whose methods answer with the values of
// its operands. A mock may only be passed as an argument, never used as a receiver.
type FunctionalMockStatement struct {
	statementBase
	Mock    *cluster.MockSpec
	Answers []*VariableReference
}

// NewFunctionalMockStatement returns a mock built from spec, answering with the given values.
func NewFunctionalMockStatement(spec *cluster.MockSpec, answers []*VariableReference) *FunctionalMockStatement {
	st := &FunctionalMockStatement{Mock: spec, Answers: answers}
	st.retval = newVariable(spec.Type, st)
	return st
}

func (s *FunctionalMockStatement) Inputs() []*VariableReference {
	return append([]*VariableReference(nil), s.Answers...)
}
func (s *FunctionalMockStatement) References(v *VariableReference) bool {
	return references(s.Answers, v)
}
func (s *FunctionalMockStatement) Replace(old, replacement *VariableReference) {
	replaceIn(s.Answers, old, replacement)
}
func (s *FunctionalMockStatement) Code() string {
	return assignment(s.retval, fmt.Sprintf("mock[%s](%s)", s.Mock.Type, names(s.Answers)))
}
func (s *FunctionalMockStatement) copyTo(tc *TestCase) Statement {
	c := NewFunctionalMockStatement(s.Mock, remapAll(tc, s.Answers))
	c.retval.Distance = s.retval.Distance
	return c
}

// Callee returns the receiver operand of a statement, or nil if it has none.
func Callee(st Statement) *VariableReference {
	switch s := st.(type) {
	case *MethodStatement:
		return s.Callee
	case *FieldStatement:
		return s.Source
	case *FieldAssignmentStatement:
		return s.Source
	case *PrivateMethodStatement:
		return s.Callee
	case *PrivateFieldStatement:
		return s.Callee
	}
	return nil
}

// IsAssignment indicates whether the statement writes to an existing location rather than producing a value.
func IsAssignment(st Statement) bool {
	switch st.(type) {
	case *FieldAssignmentStatement, *ArrayIndexAssignmentStatement, *PrivateFieldStatement:
		return true
	}
	return false
}

// BoundedInputs returns the arguments of a statement that become bound to the object it produces.
func BoundedInputs(st Statement) []*VariableReference {
	var member *cluster.Member
	var params []*VariableReference
	switch s := st.(type) {
	case *ConstructorStatement:
		member, params = s.Constructor, s.Params
	case *MethodStatement:
		member, params = s.Method, s.Params
	default:
		return nil
	}
	bounded := make([]*VariableReference, 0)
	for i, p := range params {
		if member.IsBounded(i) {
			bounded = append(bounded, p)
		}
	}
	return bounded
}
