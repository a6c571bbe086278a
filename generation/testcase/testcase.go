package testcase

import (
	"encoding/hex"
	"math/rand"
	"sort"
	"strings"

	"github.com/crytic/evosynth/generation/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// TestCase is an ordered sequence of statements. Positions are kept consistent on every insertion and removal, but
// operand references are not rewired: callers removing a statement must first remove or rewire its dependents.
type TestCase struct {
	// ID identifies the test case in logs and corpus metadata. Clones receive a fresh ID.
	ID uuid.UUID

	// statements holds the statements in execution order.
	statements []Statement
}

// New returns an empty TestCase.
func New() *TestCase {
	return &TestCase{
		ID:         uuid.New(),
		statements: make([]Statement, 0),
	}
}

// Size returns the number of statements.
func (tc *TestCase) Size() int {
	return len(tc.statements)
}

// IsEmpty indicates whether the test case holds no statements.
func (tc *TestCase) IsEmpty() bool {
	return len(tc.statements) == 0
}

// Statement returns the statement at position.
func (tc *TestCase) Statement(position int) Statement {
	return tc.statements[position]
}

// Statements returns a copy of the statement sequence.
func (tc *TestCase) Statements() []Statement {
	return append([]Statement(nil), tc.statements...)
}

// ReturnValue returns the value produced by the statement at position.
func (tc *TestCase) ReturnValue(position int) *VariableReference {
	return tc.statements[position].ReturnValue()
}

// AddStatement inserts st at position, shifting later statements, and returns its return value.
func (tc *TestCase) AddStatement(st Statement, position int) *VariableReference {
	tc.statements = append(tc.statements, nil)
	copy(tc.statements[position+1:], tc.statements[position:])
	tc.statements[position] = st
	tc.renumber(position)
	return st.ReturnValue()
}

// AppendStatement adds st at the end of the test case and returns its return value.
func (tc *TestCase) AppendStatement(st Statement) *VariableReference {
	return tc.AddStatement(st, len(tc.statements))
}

// SetStatement replaces the statement at position with st. Later operands referring to the replaced value are
// rewired to the value of st.
func (tc *TestCase) SetStatement(st Statement, position int) *VariableReference {
	old := tc.statements[position].ReturnValue()
	tc.statements[position] = st
	st.base().position = position
	for i := position + 1; i < len(tc.statements); i++ {
		if tc.statements[i].References(old) {
			tc.statements[i].Replace(old, st.ReturnValue())
		}
	}
	return st.ReturnValue()
}

// Remove deletes the statement at position.
func (tc *TestCase) Remove(position int) {
	tc.statements = append(tc.statements[:position], tc.statements[position+1:]...)
	tc.renumber(position)
}

func (tc *TestCase) renumber(from int) {
	for i := from; i < len(tc.statements); i++ {
		tc.statements[i].base().position = i
	}
}

// Objects returns the values defined before position that are assignable to t.
func (tc *TestCase) Objects(u *types.Universe, t *types.Type, position int) []*VariableReference {
	result := make([]*VariableReference, 0)
	for i := 0; i < position && i < len(tc.statements); i++ {
		v := tc.statements[i].ReturnValue()
		if v.IsVoid() {
			continue
		}
		if u.IsAssignable(v.Type, t) {
			result = append(result, v)
		}
	}
	return result
}

// AllObjects returns every value defined before position.
func (tc *TestCase) AllObjects(position int) []*VariableReference {
	result := make([]*VariableReference, 0)
	for i := 0; i < position && i < len(tc.statements); i++ {
		if v := tc.statements[i].ReturnValue(); !v.IsVoid() {
			result = append(result, v)
		}
	}
	return result
}

// HasObject indicates whether a value assignable to t is defined before position.
func (tc *TestCase) HasObject(u *types.Universe, t *types.Type, position int) bool {
	return len(tc.Objects(u, t, position)) > 0
}

// RandomObject selects a value assignable to t defined before position.
func (tc *TestCase) RandomObject(r *rand.Rand, u *types.Universe, t *types.Type, position int) (*VariableReference, bool) {
	objects := tc.Objects(u, t, position)
	if len(objects) == 0 {
		return nil, false
	}
	return objects[r.Intn(len(objects))], true
}

// RandomNonNullObject selects a value assignable to t defined before position that may serve as a receiver: null
// literals and functional mocks are excluded.
func (tc *TestCase) RandomNonNullObject(r *rand.Rand, u *types.Universe, t *types.Type, position int) (*VariableReference, bool) {
	candidates := make([]*VariableReference, 0)
	for _, v := range tc.Objects(u, t, position) {
		if tc.IsNull(v) || tc.IsFunctionalMock(v) {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[r.Intn(len(candidates))], true
}

// IsNull indicates whether v is defined by a null literal.
func (tc *TestCase) IsNull(v *VariableReference) bool {
	_, ok := v.Statement().(*NullStatement)
	return ok && !v.IsArrayIndex()
}

// IsFunctionalMock indicates whether v is defined by a functional mock.
func (tc *TestCase) IsFunctionalMock(v *VariableReference) bool {
	_, ok := v.Statement().(*FunctionalMockStatement)
	return ok && !v.IsArrayIndex()
}

// MockUsageCount returns how many statements consume v.
func (tc *TestCase) MockUsageCount(v *VariableReference) int {
	count := 0
	for i := v.Position() + 1; i < len(tc.statements); i++ {
		if tc.statements[i].References(v) {
			count++
		}
	}
	return count
}

// HasReferences indicates whether any statement after the definition of v uses it.
func (tc *TestCase) HasReferences(v *VariableReference) bool {
	if v.IsVoid() {
		return false
	}
	for i := v.Position() + 1; i < len(tc.statements); i++ {
		if tc.statements[i].References(v) {
			return true
		}
	}
	return false
}

// References returns the positions of every statement depending on the value defined at position, directly or
// through other dependent values, in ascending order.
func (tc *TestCase) References(position int) []int {
	dependencies := []*VariableReference{tc.statements[position].ReturnValue()}
	positions := make([]int, 0)
	for i := position + 1; i < len(tc.statements); i++ {
		st := tc.statements[i]
		for _, v := range dependencies {
			if st.References(v) {
				positions = append(positions, i)
				dependencies = append(dependencies, st.ReturnValue())
				break
			}
		}
	}
	return positions
}

// IsBounded indicates whether v was bound to an object by an earlier statement.
func (tc *TestCase) IsBounded(v *VariableReference) bool {
	for _, st := range tc.statements {
		for _, b := range BoundedInputs(st) {
			if b == v {
				return true
			}
		}
	}
	return false
}

// CountMemberCalls returns how many statements invoke the member with the given identifier.
func (tc *TestCase) CountMemberCalls(id string) int {
	count := 0
	for _, st := range tc.statements {
		if m := st.Member(); m != nil && m.ID() == id {
			count++
		}
	}
	return count
}

// Clone returns a deep copy of the test case. Statements and references of the clone are distinct objects.
func (tc *TestCase) Clone() *TestCase {
	c := &TestCase{
		ID:         uuid.New(),
		statements: make([]Statement, 0, len(tc.statements)),
	}
	for _, st := range tc.statements {
		c.AppendStatement(st.copyTo(c))
	}
	return c
}

// Code returns the source representation of the test case, one statement per line.
func (tc *TestCase) Code() string {
	lines := make([]string, len(tc.statements))
	for i, st := range tc.statements {
		lines[i] = st.Code()
	}
	return strings.Join(lines, "\n")
}

// Hash returns a hex-encoded SHA3 digest of the code of the test case. Structurally equal tests share a hash.
func (tc *TestCase) Hash() string {
	hash := sha3.Sum256([]byte(tc.Code()))
	return hex.EncodeToString(hash[:])
}

// PrimitiveStatements returns the literal statements keyed by their symbolic name.
func (tc *TestCase) PrimitiveStatements() map[string]*PrimitiveStatement {
	result := make(map[string]*PrimitiveStatement)
	for _, st := range tc.statements {
		if p, ok := st.(*PrimitiveStatement); ok {
			result[p.SymbolicName()] = p
		}
	}
	return result
}

// TouchedTypes returns the sorted names of every type whose members the test case invokes.
func (tc *TestCase) TouchedTypes() []string {
	set := make(map[string]bool)
	for _, st := range tc.statements {
		if m := st.Member(); m != nil {
			set[m.Owner.Name] = true
		}
	}
	result := make([]string, 0, len(set))
	for name := range set {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
