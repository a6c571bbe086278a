package testcase

import (
	"fmt"

	"github.com/crytic/evosynth/generation/types"
)

// VariableKind describes how a VariableReference addresses its value.
type VariableKind int

const (
	// VariablePlain refers to the value produced by a statement.
	VariablePlain VariableKind = iota
	// VariableArrayIndex refers to one slot of an array, as assigned by an ArrayIndexAssignmentStatement.
	VariableArrayIndex
)

// VariableReference is a typed handle to the value produced by a statement of a test case. A reference is only
// valid as an operand of statements positioned strictly after the statement that defines it.
type VariableReference struct {
	// Type describes the declared type of the referenced value.
	Type *types.Type

	// Distance describes the generation depth of the value relative to the call that required it. Values closer to
	// the calls under test have a lower distance.
	Distance int

	// kind describes how the value is addressed.
	kind VariableKind

	// statement is the statement defining the value.
	statement Statement

	// array is the array an array index reference addresses.
	array *VariableReference

	// index is the slot an array index reference addresses.
	index int
}

func newVariable(t *types.Type, st Statement) *VariableReference {
	return &VariableReference{Type: t, kind: VariablePlain, statement: st}
}

func newArrayIndex(array *VariableReference, index int, st Statement) *VariableReference {
	return &VariableReference{
		Type:      array.Type.Component,
		kind:      VariableArrayIndex,
		statement: st,
		array:     array,
		index:     index,
		Distance:  array.Distance,
	}
}

// Position returns the position of the defining statement.
func (v *VariableReference) Position() int {
	return v.statement.Position()
}

// Statement returns the defining statement.
func (v *VariableReference) Statement() Statement {
	return v.statement
}

// Kind returns how the reference addresses its value.
func (v *VariableReference) Kind() VariableKind {
	return v.kind
}

// IsArrayIndex indicates whether the reference addresses an array slot.
func (v *VariableReference) IsArrayIndex() bool {
	return v.kind == VariableArrayIndex
}

// Array returns the array addressed by an array index reference.
func (v *VariableReference) Array() *VariableReference {
	return v.array
}

// Index returns the slot addressed by an array index reference.
func (v *VariableReference) Index() int {
	return v.index
}

// AdditionalReference returns the variable this reference depends on beyond its defining statement: the array of an
// array index reference. It is consulted to avoid self-referential assignments.
func (v *VariableReference) AdditionalReference() *VariableReference {
	return v.array
}

// IsVoid indicates whether the reference carries no value.
func (v *VariableReference) IsVoid() bool {
	return v.Type.IsVoid()
}

// IsPrimitive indicates whether the referenced value is primitive.
func (v *VariableReference) IsPrimitive() bool {
	return v.Type.IsPrimitive()
}

// ArrayLength returns the length of the array created by the defining statement, or -1 if it is not an array
// creation.
func (v *VariableReference) ArrayLength() int {
	if a, ok := v.statement.(*ArrayStatement); ok && v.kind == VariablePlain {
		return a.Length
	}
	return -1
}

// Name returns the identifier of the reference in generated code.
func (v *VariableReference) Name() string {
	if v.kind == VariableArrayIndex {
		return fmt.Sprintf("%s[%d]", v.array.Name(), v.index)
	}
	return fmt.Sprintf("var%d", v.Position())
}

// String returns the name of the reference.
func (v *VariableReference) String() string {
	return v.Name()
}
