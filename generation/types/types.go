package types

import (
	"strings"
)

// Kind describes the category of a Type.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindByte
	KindShort
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindEnum
	KindObject
	KindArray
	KindTypeVariable
)

var kindNames = map[Kind]string{
	KindVoid:         "void",
	KindBool:         "bool",
	KindByte:         "byte",
	KindShort:        "short",
	KindChar:         "char",
	KindInt:          "int",
	KindLong:         "long",
	KindFloat:        "float",
	KindDouble:       "double",
	KindString:       "string",
	KindEnum:         "enum",
	KindObject:       "object",
	KindArray:        "array",
	KindTypeVariable: "typevar",
}

// String returns the name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Type describes a type of the program under test. Types are immutable once constructed and may be shared freely.
type Type struct {
	// Name describes the declared name of the type. Primitive types use their kind name.
	Name string `cbor:"n" json:"name"`

	// Kind describes the category of the type.
	Kind Kind `cbor:"k" json:"kind"`

	// Component describes the element type of an array type.
	Component *Type `cbor:"c,omitempty" json:"component,omitempty"`

	// Arguments describes the type arguments of a parameterized object type.
	Arguments []*Type `cbor:"a,omitempty" json:"arguments,omitempty"`

	// EnumValues describes the constants of an enum type.
	EnumValues []string `cbor:"e,omitempty" json:"enumValues,omitempty"`
}

// Predeclared types.
var (
	Void   = &Type{Name: "void", Kind: KindVoid}
	Bool   = &Type{Name: "bool", Kind: KindBool}
	Byte   = &Type{Name: "byte", Kind: KindByte}
	Short  = &Type{Name: "short", Kind: KindShort}
	Char   = &Type{Name: "char", Kind: KindChar}
	Int    = &Type{Name: "int", Kind: KindInt}
	Long   = &Type{Name: "long", Kind: KindLong}
	Float  = &Type{Name: "float", Kind: KindFloat}
	Double = &Type{Name: "double", Kind: KindDouble}
	String = &Type{Name: "string", Kind: KindString}

	// Object is the root of every non-primitive type.
	Object = &Type{Name: "Object", Kind: KindObject}
)

// NewObject returns an object type with the given name and type arguments.
func NewObject(name string, arguments ...*Type) *Type {
	return &Type{Name: name, Kind: KindObject, Arguments: arguments}
}

// NewEnum returns an enum type with the given constants.
func NewEnum(name string, values ...string) *Type {
	return &Type{Name: name, Kind: KindEnum, EnumValues: values}
}

// ArrayOf returns the array type with the given component.
func ArrayOf(component *Type) *Type {
	return &Type{Name: component.String() + "[]", Kind: KindArray, Component: component}
}

// NewTypeVariable returns an unbound type variable.
func NewTypeVariable(name string) *Type {
	return &Type{Name: name, Kind: KindTypeVariable}
}

// IsVoid indicates whether the type carries no value.
func (t *Type) IsVoid() bool {
	return t == nil || t.Kind == KindVoid
}

// IsPrimitive indicates whether the type is a primitive value type.
func (t *Type) IsPrimitive() bool {
	return t != nil && t.Kind >= KindBool && t.Kind <= KindDouble
}

// IsPrimitiveOrSimilar indicates whether values of the type are synthesized directly as literals.
func (t *Type) IsPrimitiveOrSimilar() bool {
	return t.IsPrimitive() || t.Kind == KindString || t.Kind == KindEnum
}

// IsIntegral indicates whether the type is represented as an integer by the symbolic layer.
func (t *Type) IsIntegral() bool {
	return t != nil && t.Kind >= KindBool && t.Kind <= KindLong
}

// IsFloating indicates whether the type is a floating point type.
func (t *Type) IsFloating() bool {
	return t != nil && (t.Kind == KindFloat || t.Kind == KindDouble)
}

// IsArray indicates whether the type is an array type.
func (t *Type) IsArray() bool {
	return t != nil && t.Kind == KindArray
}

// IsNullable indicates whether null is a legal value of the type.
func (t *Type) IsNullable() bool {
	return t != nil && (t.Kind == KindString || t.Kind == KindObject || t.Kind == KindArray)
}

// HasTypeVariables indicates whether the type or any of its components or arguments is an unbound type variable.
func (t *Type) HasTypeVariables() bool {
	if t == nil {
		return false
	}
	if t.Kind == KindTypeVariable {
		return true
	}
	if t.Component != nil && t.Component.HasTypeVariables() {
		return true
	}
	for _, argument := range t.Arguments {
		if argument.HasTypeVariables() {
			return true
		}
	}
	return false
}

// Equal reports whether two types are structurally identical.
func (t *Type) Equal(other *Type) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	if t.Kind != other.Kind || t.Name != other.Name || len(t.Arguments) != len(other.Arguments) {
		return false
	}
	if (t.Component == nil) != (other.Component == nil) {
		return false
	}
	if t.Component != nil && !t.Component.Equal(other.Component) {
		return false
	}
	for i := range t.Arguments {
		if !t.Arguments[i].Equal(other.Arguments[i]) {
			return false
		}
	}
	return true
}

// String returns the source representation of the type.
func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	if t.Kind == KindArray {
		return t.Component.String() + "[]"
	}
	if len(t.Arguments) == 0 {
		return t.Name
	}
	args := make([]string, len(t.Arguments))
	for i, argument := range t.Arguments {
		args[i] = argument.String()
	}
	return t.Name + "<" + strings.Join(args, ", ") + ">"
}

// BitLength returns the width of integral types, used when narrowing solver values. Non-integral types return zero.
func (t *Type) BitLength() int {
	switch t.Kind {
	case KindBool:
		return 1
	case KindByte:
		return 8
	case KindShort, KindChar:
		return 16
	case KindInt:
		return 32
	case KindLong:
		return 64
	default:
		return 0
	}
}

// Bounds returns the inclusive value range of integral types.
func (t *Type) Bounds() (int64, int64) {
	switch t.Kind {
	case KindBool:
		return 0, 1
	case KindByte:
		return -1 << 7, 1<<7 - 1
	case KindShort:
		return -1 << 15, 1<<15 - 1
	case KindChar:
		return 0, 1<<16 - 1
	case KindInt:
		return -1 << 31, 1<<31 - 1
	default:
		return -1 << 63, 1<<63 - 1
	}
}
