package symbolic

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Sort describes the value domain of a symbolic expression.
type Sort int

const (
	SortInt Sort = iota
	SortReal
	SortString
)

// String returns the name of the sort.
func (s Sort) String() string {
	switch s {
	case SortInt:
		return "int"
	case SortReal:
		return "real"
	default:
		return "string"
	}
}

// ErrUndefined is returned when an expression has no value under an assignment, such as a division by zero.
var ErrUndefined = errors.New("expression is undefined")

// Assignment maps variable names to values: int64 for SortInt, float64 for SortReal and string for SortString.
type Assignment map[string]any

// Expression describes a symbolic expression which also carries the concrete value observed during execution.
type Expression interface {
	// Sort returns the value domain of the expression.
	Sort() Sort

	// Concrete returns the value observed during the concrete execution.
	Concrete() any

	// Evaluate computes the value of the expression, taking variable values from the assignment when present and
	// from the concrete execution otherwise.
	Evaluate(assignment Assignment) (any, error)

	// Variables appends the variables referenced by the expression to the provided map.
	Variables(into map[string]*Variable)

	// Size returns the number of nodes in the expression tree.
	Size() int

	// String returns a canonical textual representation of the expression.
	String() string
}

// Variable is a free symbolic input. Integer variables carry the inclusive range of their declared type.
type Variable struct {
	// Name identifies the input, matching the name of the literal that produced it.
	Name string

	sort     Sort
	concrete any

	// Min and Max bound the values of integer variables.
	Min, Max int64
}

// NewIntVariable returns an integer variable with the given concrete value and range.
func NewIntVariable(name string, concrete, min, max int64) *Variable {
	return &Variable{Name: name, sort: SortInt, concrete: concrete, Min: min, Max: max}
}

// NewRealVariable returns a real-valued variable with the given concrete value.
func NewRealVariable(name string, concrete float64) *Variable {
	return &Variable{Name: name, sort: SortReal, concrete: concrete}
}

// NewStringVariable returns a string variable with the given concrete value.
func NewStringVariable(name string, concrete string) *Variable {
	return &Variable{Name: name, sort: SortString, concrete: concrete}
}

func (v *Variable) Sort() Sort    { return v.sort }
func (v *Variable) Concrete() any { return v.concrete }
func (v *Variable) Size() int     { return 1 }
func (v *Variable) String() string {
	return v.Name
}

func (v *Variable) Evaluate(assignment Assignment) (any, error) {
	if value, ok := assignment[v.Name]; ok {
		return value, nil
	}
	return v.concrete, nil
}

func (v *Variable) Variables(into map[string]*Variable) {
	into[v.Name] = v
}

// Declaration returns the name, sort and range of the variable. It distinguishes variables that share a name but
// not a domain.
func (v *Variable) Declaration() string {
	if v.sort == SortInt {
		return fmt.Sprintf("%s:%s[%d,%d]", v.Name, v.sort, v.Min, v.Max)
	}
	return v.Name + ":" + v.sort.String()
}

// Constant is a fixed value.
type Constant struct {
	sort  Sort
	value any
}

// IntConst returns an integer constant.
func IntConst(v int64) *Constant { return &Constant{sort: SortInt, value: v} }

// RealConst returns a real constant.
func RealConst(v float64) *Constant { return &Constant{sort: SortReal, value: v} }

// StringConst returns a string constant.
func StringConst(v string) *Constant { return &Constant{sort: SortString, value: v} }

func (c *Constant) Sort() Sort                         { return c.sort }
func (c *Constant) Concrete() any                      { return c.value }
func (c *Constant) Evaluate(_ Assignment) (any, error) { return c.value, nil }
func (c *Constant) Variables(_ map[string]*Variable)   {}
func (c *Constant) Size() int                          { return 1 }
func (c *Constant) String() string {
	if c.sort == SortString {
		return strconv.Quote(c.value.(string))
	}
	return fmt.Sprint(c.value)
}

// Operator describes an arithmetic operator.
type Operator int

const (
	Add Operator = iota
	Sub
	Mul
	Div
	Rem
)

var operatorSymbols = [...]string{"+", "-", "*", "/", "%"}

// String returns the operator symbol.
func (o Operator) String() string {
	return operatorSymbols[o]
}

// IntBinary applies an arithmetic operator to two integer expressions with 64-bit wrap-around semantics.
type IntBinary struct {
	Op          Operator
	Left, Right Expression
	concrete    int64
}

// NewIntBinary returns an integer arithmetic expression. Its concrete value is computed from the operands.
func NewIntBinary(op Operator, left, right Expression) *IntBinary {
	e := &IntBinary{Op: op, Left: left, Right: right}
	if value, err := e.Evaluate(nil); err == nil {
		e.concrete = value.(int64)
	}
	return e
}

func (e *IntBinary) Sort() Sort    { return SortInt }
func (e *IntBinary) Concrete() any { return e.concrete }
func (e *IntBinary) Size() int     { return 1 + e.Left.Size() + e.Right.Size() }
func (e *IntBinary) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e *IntBinary) Variables(into map[string]*Variable) {
	e.Left.Variables(into)
	e.Right.Variables(into)
}

func (e *IntBinary) Evaluate(assignment Assignment) (any, error) {
	l, err := evaluateInt(e.Left, assignment)
	if err != nil {
		return nil, err
	}
	r, err := evaluateInt(e.Right, assignment)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case Add:
		return l + r, nil
	case Sub:
		return l - r, nil
	case Mul:
		return l * r, nil
	case Div:
		if r == 0 {
			return nil, ErrUndefined
		}
		return l / r, nil
	default:
		if r == 0 {
			return nil, ErrUndefined
		}
		return l % r, nil
	}
}

// RealBinary applies an arithmetic operator to two real expressions.
type RealBinary struct {
	Op          Operator
	Left, Right Expression
	concrete    float64
}

// NewRealBinary returns a real arithmetic expression. Rem is not supported on reals.
func NewRealBinary(op Operator, left, right Expression) *RealBinary {
	e := &RealBinary{Op: op, Left: left, Right: right}
	if value, err := e.Evaluate(nil); err == nil {
		e.concrete = value.(float64)
	}
	return e
}

func (e *RealBinary) Sort() Sort    { return SortReal }
func (e *RealBinary) Concrete() any { return e.concrete }
func (e *RealBinary) Size() int     { return 1 + e.Left.Size() + e.Right.Size() }
func (e *RealBinary) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e *RealBinary) Variables(into map[string]*Variable) {
	e.Left.Variables(into)
	e.Right.Variables(into)
}

func (e *RealBinary) Evaluate(assignment Assignment) (any, error) {
	l, err := evaluateReal(e.Left, assignment)
	if err != nil {
		return nil, err
	}
	r, err := evaluateReal(e.Right, assignment)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case Add:
		return l + r, nil
	case Sub:
		return l - r, nil
	case Mul:
		return l * r, nil
	case Div:
		if r == 0 {
			return nil, ErrUndefined
		}
		return l / r, nil
	default:
		return math.Mod(l, r), nil
	}
}

// IntNeg negates an integer expression.
type IntNeg struct {
	Operand Expression
}

func (e *IntNeg) Sort() Sort { return SortInt }
func (e *IntNeg) Concrete() any {
	return -toInt(e.Operand.Concrete())
}
func (e *IntNeg) Size() int                           { return 1 + e.Operand.Size() }
func (e *IntNeg) String() string                      { return "-" + e.Operand.String() }
func (e *IntNeg) Variables(into map[string]*Variable) { e.Operand.Variables(into) }
func (e *IntNeg) Evaluate(assignment Assignment) (any, error) {
	v, err := evaluateInt(e.Operand, assignment)
	if err != nil {
		return nil, err
	}
	return -v, nil
}

// StringLength is the length of a string expression in bytes.
type StringLength struct {
	Operand Expression
}

func (e *StringLength) Sort() Sort { return SortInt }
func (e *StringLength) Concrete() any {
	s, _ := e.Operand.Concrete().(string)
	return int64(len(s))
}
func (e *StringLength) Size() int                           { return 1 + e.Operand.Size() }
func (e *StringLength) String() string                      { return "len(" + e.Operand.String() + ")" }
func (e *StringLength) Variables(into map[string]*Variable) { e.Operand.Variables(into) }
func (e *StringLength) Evaluate(assignment Assignment) (any, error) {
	v, err := evaluateString(e.Operand, assignment)
	if err != nil {
		return nil, err
	}
	return int64(len(v)), nil
}

// StringToInt parses a string expression as a base 10 integer. Unparsable strings are undefined.
type StringToInt struct {
	Operand Expression
}

func (e *StringToInt) Sort() Sort { return SortInt }
func (e *StringToInt) Concrete() any {
	s, _ := e.Operand.Concrete().(string)
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
func (e *StringToInt) Size() int                           { return 1 + e.Operand.Size() }
func (e *StringToInt) String() string                      { return "atoi(" + e.Operand.String() + ")" }
func (e *StringToInt) Variables(into map[string]*Variable) { e.Operand.Variables(into) }
func (e *StringToInt) Evaluate(assignment Assignment) (any, error) {
	s, err := evaluateString(e.Operand, assignment)
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, ErrUndefined
	}
	return v, nil
}

// IntToReal converts an integer expression to a real.
type IntToReal struct {
	Operand Expression
}

func (e *IntToReal) Sort() Sort                          { return SortReal }
func (e *IntToReal) Concrete() any                       { return float64(toInt(e.Operand.Concrete())) }
func (e *IntToReal) Size() int                           { return 1 + e.Operand.Size() }
func (e *IntToReal) String() string                      { return "real(" + e.Operand.String() + ")" }
func (e *IntToReal) Variables(into map[string]*Variable) { e.Operand.Variables(into) }
func (e *IntToReal) Evaluate(assignment Assignment) (any, error) {
	v, err := evaluateInt(e.Operand, assignment)
	if err != nil {
		return nil, err
	}
	return float64(v), nil
}

// VariablesOf returns the variables referenced by the given expressions, sorted by name.
func VariablesOf(expressions ...Expression) []*Variable {
	set := make(map[string]*Variable)
	for _, e := range expressions {
		e.Variables(set)
	}
	result := make([]*Variable, 0, len(set))
	for _, v := range set {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func evaluateInt(e Expression, assignment Assignment) (int64, error) {
	v, err := e.Evaluate(assignment)
	if err != nil {
		return 0, err
	}
	return toInt(v), nil
}

func evaluateReal(e Expression, assignment Assignment) (float64, error) {
	v, err := e.Evaluate(assignment)
	if err != nil {
		return 0, err
	}
	return toReal(v), nil
}

func evaluateString(e Expression, assignment Assignment) (string, error) {
	v, err := e.Evaluate(assignment)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func toReal(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
