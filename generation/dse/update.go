package dse

import (
	"unicode/utf8"

	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/crytic/evosynth/utils"
	"golang.org/x/exp/slices"
)

// UpdateTest returns a copy of tc in which every literal named in the model holds the model's value, converted to
// the declared type of the literal. Returns the number of literals changed.
func UpdateTest(tc *testcase.TestCase, model symbolic.Assignment) (*testcase.TestCase, int) {
	updated := tc.Clone()
	changed := 0
	for _, st := range updated.Statements() {
		literal, ok := st.(*testcase.PrimitiveStatement)
		if !ok {
			continue
		}
		value, ok := model[literal.SymbolicName()]
		if !ok {
			continue
		}
		converted, ok := convertValue(literal.Type(), value)
		if !ok || converted == literal.Value {
			continue
		}
		literal.Value = converted
		changed++
	}
	return updated, changed
}

// convertValue narrows or widens a model value to the representation of literals of type t. Reports false if the
// value cannot represent a literal of type t.
func convertValue(t *types.Type, value any) (any, bool) {
	switch v := value.(type) {
	case int64:
		return convertInteger(t, v)
	case float64:
		switch t.Kind {
		case types.KindDouble:
			return v, true
		case types.KindFloat:
			return float64(float32(v)), true
		}
	case string:
		switch t.Kind {
		case types.KindString:
			return v, true
		case types.KindChar:
			r, size := utf8.DecodeRuneInString(v)
			if size == 0 {
				return nil, false
			}
			return utils.NarrowInteger(int64(r), 16, false), true
		case types.KindEnum:
			if slices.Contains(t.EnumValues, v) {
				return v, true
			}
		}
	}
	return nil, false
}

func convertInteger(t *types.Type, v int64) (any, bool) {
	switch t.Kind {
	case types.KindBool:
		return v > 0, true
	case types.KindByte:
		return utils.NarrowInteger(v, 8, true), true
	case types.KindShort:
		return utils.NarrowInteger(v, 16, true), true
	case types.KindChar:
		return utils.NarrowInteger(v, 16, false), true
	case types.KindInt:
		return utils.NarrowInteger(v, 32, true), true
	case types.KindLong:
		return v, true
	case types.KindFloat:
		return float64(float32(v)), true
	case types.KindDouble:
		return float64(v), true
	}
	return nil, false
}
