package execution

import (
	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/pkg/errors"
)

// Scope is the arena holding the values produced while a test case executes. Values are indexed by the position of
// the statement which produced them, and carry the symbolic expression describing them, if any.
type Scope struct {
	values      []any
	expressions []symbolic.Expression
	defined     []bool
}

// NewScope returns a Scope for a test case of the given size.
func NewScope(size int) *Scope {
	return &Scope{
		values:      make([]any, size),
		expressions: make([]symbolic.Expression, size),
		defined:     make([]bool, size),
	}
}

// Set stores the value produced at position.
func (s *Scope) Set(position int, value any, expression symbolic.Expression) {
	s.values[position] = value
	s.expressions[position] = expression
	s.defined[position] = true
}

// Value returns the current value of v. Array index references read the slot of the array they address.
func (s *Scope) Value(v *testcase.VariableReference) (any, error) {
	if v.IsArrayIndex() {
		array, err := s.Value(v.Array())
		if err != nil {
			return nil, err
		}
		slots, ok := array.([]any)
		if !ok {
			return nil, errors.Errorf("%s does not hold an array", v.Array().Name())
		}
		if v.Index() >= len(slots) {
			return nil, errors.Errorf("index %d out of range for %s of length %d", v.Index(), v.Array().Name(), len(slots))
		}
		return slots[v.Index()], nil
	}

	position := v.Position()
	if position < 0 || position >= len(s.values) || !s.defined[position] {
		return nil, errors.Errorf("%s is not defined", v.Name())
	}
	return s.values[position], nil
}

// Expression returns the symbolic expression of v. Values without one are described by a constant of their concrete
// value when it is primitive-like, and by nil otherwise.
func (s *Scope) Expression(v *testcase.VariableReference) symbolic.Expression {
	position := v.Position()
	if position >= 0 && position < len(s.expressions) && s.expressions[position] != nil {
		return s.expressions[position]
	}
	value, err := s.Value(v)
	if err != nil {
		return nil
	}
	return constantOf(value)
}

// constantOf describes a concrete primitive-like value as a symbolic constant.
func constantOf(value any) symbolic.Expression {
	switch x := value.(type) {
	case int64:
		return symbolic.IntConst(x)
	case bool:
		if x {
			return symbolic.IntConst(1)
		}
		return symbolic.IntConst(0)
	case float64:
		return symbolic.RealConst(x)
	case string:
		return symbolic.StringConst(x)
	default:
		return nil
	}
}

// literalVariable returns the free symbolic input introduced by a literal, or nil for literals that cannot be
// negated on.
func literalVariable(st *testcase.PrimitiveStatement) symbolic.Expression {
	name := st.SymbolicName()
	t := st.Type()
	switch {
	case t.Kind == types.KindBool:
		b, _ := st.Value.(bool)
		concrete := int64(0)
		if b {
			concrete = 1
		}
		return symbolic.NewIntVariable(name, concrete, 0, 1)
	case t.IsIntegral():
		concrete, _ := st.Value.(int64)
		lo, hi := t.Bounds()
		return symbolic.NewIntVariable(name, concrete, lo, hi)
	case t.IsFloating():
		concrete, _ := st.Value.(float64)
		return symbolic.NewRealVariable(name, concrete)
	case t.Kind == types.KindString:
		concrete, _ := st.Value.(string)
		return symbolic.NewStringVariable(name, concrete)
	default:
		return nil
	}
}
