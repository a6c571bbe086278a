package testcase

import (
	"strings"
	"testing"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(cluster.Env, any, []any) (any, error) { return nil, nil }

type fixture struct {
	cluster *cluster.TestCluster
	dog     *types.Type
	source  *types.Type
	newDog  *cluster.Member
	speak   *cluster.Member
	rename  *cluster.Member
	listen  *cluster.Member
	age     *cluster.Member
}

func newFixture(t *testing.T) *fixture {
	b := cluster.NewBuilder()
	f := &fixture{}
	f.dog = b.AddType(types.NewObject("Dog"))
	f.source = b.AddType(types.NewObject("Source"))
	f.newDog = b.AddConstructor(f.dog, "NewDog", []*types.Type{types.String}, noop)
	f.speak = b.AddMethod(f.dog, "Speak", nil, types.String, noop)
	f.rename = b.AddMethod(f.dog, "Rename", []*types.Type{types.String}, nil, noop)
	f.listen = b.AddMethod(f.dog, "Listen", []*types.Type{f.source}, nil, noop)
	f.age = b.AddField(f.dog, "Age", types.Int,
		func(cluster.Env, any) (any, error) { return int64(0), nil },
		func(cluster.Env, any, any) error { return nil })
	b.AddMock(&cluster.MockSpec{
		Type:    f.source,
		Methods: []cluster.MockMethod{{Name: "Name", Returns: types.String}},
		Build:   func(answers []any) any { return answers },
	})
	b.MarkTarget("Dog")

	c, err := b.Build()
	require.NoError(t, err)
	f.cluster = c
	return f
}

// dogTest returns: var0 := "rex"; var1 := NewDog(var0); var1.Rename(var0); var3 := var1.Speak()
func (f *fixture) dogTest() *TestCase {
	tc := New()
	name := tc.AppendStatement(NewPrimitiveStatement(types.String, "rex"))
	dog := tc.AppendStatement(NewConstructorStatement(f.newDog, []*VariableReference{name}))
	tc.AppendStatement(NewMethodStatement(f.rename, dog, []*VariableReference{name}))
	tc.AppendStatement(NewMethodStatement(f.speak, dog, nil))
	return tc
}

func codeLines(tc *TestCase) []string {
	return strings.Split(tc.Code(), "\n")
}

// TestCodeRendering ensures statements render with their positional names.
func TestCodeRendering(t *testing.T) {
	f := newFixture(t)
	tc := f.dogTest()

	expected := []string{
		`var0 := "rex"`,
		`var1 := NewDog(var0)`,
		`var1.Rename(var0)`,
		`var3 := var1.Speak()`,
	}
	if diff := cmp.Diff(expected, codeLines(tc)); diff != "" {
		t.Fatalf("unexpected code (-want +got):\n%s", diff)
	}
	assert.NoError(t, tc.Validate(f.cluster.Universe(), 1))
}

// TestCloneIsIndependent ensures a clone renders identically but shares no statements with the original.
func TestCloneIsIndependent(t *testing.T) {
	f := newFixture(t)
	tc := f.dogTest()
	c := tc.Clone()

	assert.NotEqual(t, tc.ID, c.ID)
	assert.Equal(t, tc.Code(), c.Code())
	assert.Equal(t, tc.Hash(), c.Hash())
	for i := 0; i < tc.Size(); i++ {
		assert.NotSame(t, tc.Statement(i), c.Statement(i))
		for _, input := range c.Statement(i).Inputs() {
			assert.Same(t, c.ReturnValue(input.Position()), input)
		}
	}

	c.Remove(3)
	c.Statement(0).(*PrimitiveStatement).Value = "fido"
	assert.Equal(t, 4, tc.Size())
	assert.Equal(t, "rex", tc.Statement(0).(*PrimitiveStatement).Value)
	assert.NoError(t, c.Validate(f.cluster.Universe(), 1))
}

// TestAddStatementShiftsPositions ensures inserting a statement renumbers later statements and their names.
func TestAddStatementShiftsPositions(t *testing.T) {
	f := newFixture(t)
	tc := f.dogTest()

	tc.AddStatement(NewPrimitiveStatement(types.Int, int64(3)), 1)
	assert.Equal(t, 5, tc.Size())
	assert.Equal(t, "var2 := NewDog(var0)", tc.Statement(2).Code())
	assert.Equal(t, "var2.Rename(var0)", tc.Statement(3).Code())
	assert.NoError(t, tc.Validate(f.cluster.Universe(), 1))
}

// TestSetStatementRewiresReferences ensures later operands follow the replacing statement.
func TestSetStatementRewiresReferences(t *testing.T) {
	f := newFixture(t)
	tc := f.dogTest()

	replacement := NewPrimitiveStatement(types.String, "max")
	tc.SetStatement(replacement, 0)
	assert.Same(t, replacement.ReturnValue(), tc.Statement(1).Inputs()[0])
	assert.Equal(t, `var0 := "max"`, tc.Statement(0).Code())
	assert.NoError(t, tc.Validate(f.cluster.Universe(), 1))
}

// TestReferencesAreTransitive ensures references are followed through dependent values.
func TestReferencesAreTransitive(t *testing.T) {
	f := newFixture(t)
	tc := New()
	name := tc.AppendStatement(NewPrimitiveStatement(types.String, "a"))
	dog := tc.AppendStatement(NewConstructorStatement(f.newDog, []*VariableReference{name}))
	spoken := tc.AppendStatement(NewMethodStatement(f.speak, dog, nil))
	tc.AppendStatement(NewPrimitiveStatement(types.String, "b"))
	tc.AppendStatement(NewConstructorStatement(f.newDog, []*VariableReference{spoken}))

	assert.Equal(t, []int{1, 2, 4}, tc.References(0))
	assert.Equal(t, []int{2, 4}, tc.References(1))
	assert.Empty(t, tc.References(3))
	assert.True(t, tc.HasReferences(name))
	assert.False(t, tc.HasReferences(tc.ReturnValue(3)))
}

// TestValidateRejectsForwardReferences ensures operands must be defined strictly earlier.
func TestValidateRejectsForwardReferences(t *testing.T) {
	f := newFixture(t)
	tc := New()
	name := NewPrimitiveStatement(types.String, "rex")
	tc.AppendStatement(NewConstructorStatement(f.newDog, []*VariableReference{name.ReturnValue()}))
	tc.AppendStatement(name)

	err := tc.Validate(f.cluster.Universe(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined at position 1")
}

// TestValidateRejectsMockReceivers ensures functional mocks may be passed as arguments but never used as receivers.
func TestValidateRejectsMockReceivers(t *testing.T) {
	f := newFixture(t)
	spec, ok := f.cluster.Mock("Source")
	require.True(t, ok)

	tc := f.dogTest()
	answer := tc.AppendStatement(NewPrimitiveStatement(types.String, "x"))
	mock := tc.AppendStatement(NewFunctionalMockStatement(spec, []*VariableReference{answer}))
	tc.AppendStatement(NewMethodStatement(f.listen, tc.ReturnValue(1), []*VariableReference{mock}))
	require.NoError(t, tc.Validate(f.cluster.Universe(), 1))
	assert.True(t, tc.IsFunctionalMock(mock))
	assert.Equal(t, 1, tc.MockUsageCount(mock))

	// A second consumer exceeds the reuse limit
	tc.AppendStatement(NewMethodStatement(f.listen, tc.ReturnValue(1), []*VariableReference{mock}))
	assert.Error(t, tc.Validate(f.cluster.Universe(), 1))
	assert.NoError(t, tc.Validate(f.cluster.Universe(), 2))

	// A mock used as a receiver is rejected regardless of the limit
	misuse := New()
	a := misuse.AppendStatement(NewPrimitiveStatement(types.String, "x"))
	m := misuse.AppendStatement(NewFunctionalMockStatement(spec, []*VariableReference{a}))
	misuse.AppendStatement(NewMethodStatement(f.speak, m, nil))
	assert.Error(t, misuse.Validate(f.cluster.Universe(), 10))
}

// TestValidateRejectsTypeMismatches ensures operands must be assignable to declared parameter types.
func TestValidateRejectsTypeMismatches(t *testing.T) {
	f := newFixture(t)
	tc := New()
	number := tc.AppendStatement(NewPrimitiveStatement(types.Int, int64(4)))
	tc.AppendStatement(NewConstructorStatement(f.newDog, []*VariableReference{number}))
	assert.Error(t, tc.Validate(f.cluster.Universe(), 1))

	nulls := New()
	null := nulls.AppendStatement(NewNullStatement(types.String))
	nulls.AppendStatement(NewConstructorStatement(f.newDog, []*VariableReference{null}))
	assert.NoError(t, nulls.Validate(f.cluster.Universe(), 1))
}

// TestArrayIndexReferences ensures array slots are addressed through their assignments.
func TestArrayIndexReferences(t *testing.T) {
	f := newFixture(t)
	tc := New()
	array := tc.AppendStatement(NewArrayStatement(types.ArrayOf(types.String), 2))
	value := tc.AppendStatement(NewPrimitiveStatement(types.String, "a"))
	slot := tc.AppendStatement(NewArrayIndexAssignmentStatement(array, 1, value))

	assert.True(t, slot.IsArrayIndex())
	assert.Same(t, array, slot.AdditionalReference())
	assert.Equal(t, "var0[1]", slot.Name())
	assert.Equal(t, 2, array.ArrayLength())
	assert.True(t, slot.Type.Equal(types.String))
	assert.NoError(t, tc.Validate(f.cluster.Universe(), 1))

	outOfBounds := tc.Clone()
	outOfBounds.AppendStatement(NewArrayIndexAssignmentStatement(outOfBounds.ReturnValue(0), 2, outOfBounds.ReturnValue(1)))
	assert.Error(t, outOfBounds.Validate(f.cluster.Universe(), 1))
}

// TestEncodingRestoresStatements ensures a serialized test case decodes to the same program.
func TestEncodingRestoresStatements(t *testing.T) {
	f := newFixture(t)
	spec, _ := f.cluster.Mock("Source")

	tc := f.dogTest()
	flag := tc.AppendStatement(NewPrimitiveStatement(types.Int, int64(-7)))
	tc.AppendStatement(NewFieldAssignmentStatement(f.age, tc.ReturnValue(1), flag))
	answer := tc.AppendStatement(NewPrimitiveStatement(types.String, "x"))
	mock := tc.AppendStatement(NewFunctionalMockStatement(spec, []*VariableReference{answer}))
	tc.AppendStatement(NewMethodStatement(f.listen, tc.ReturnValue(1), []*VariableReference{mock}))
	array := tc.AppendStatement(NewArrayStatement(types.ArrayOf(types.Int), 1))
	tc.AppendStatement(NewArrayIndexAssignmentStatement(array, 0, flag))

	data, err := Encode(tc)
	require.NoError(t, err)
	decoded, err := Decode(data, f.cluster)
	require.NoError(t, err)

	assert.Equal(t, tc.ID, decoded.ID)
	if diff := cmp.Diff(codeLines(tc), codeLines(decoded)); diff != "" {
		t.Fatalf("decoded test differs (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(-7), decoded.Statement(4).(*PrimitiveStatement).Value)
	assert.NoError(t, decoded.Validate(f.cluster.Universe(), 1))
}

// TestDecodeRejectsUnknownMembers ensures tests referring to members absent from the cluster fail to decode.
func TestDecodeRejectsUnknownMembers(t *testing.T) {
	f := newFixture(t)
	data, err := Encode(f.dogTest())
	require.NoError(t, err)

	other := cluster.NewBuilder()
	other.AddType(types.NewObject("Dog"))
	c, err := other.Build()
	require.NoError(t, err)

	_, err = Decode(data, c)
	assert.Error(t, err)
}

// TestTouchedTypesAndCounts ensures member bookkeeping reflects the statements.
func TestTouchedTypesAndCounts(t *testing.T) {
	f := newFixture(t)
	tc := f.dogTest()
	assert.Equal(t, []string{"Dog"}, tc.TouchedTypes())
	assert.Equal(t, 1, tc.CountMemberCalls(f.speak.ID()))
	assert.Len(t, tc.PrimitiveStatements(), 1)
	assert.Contains(t, tc.PrimitiveStatements(), "var0")
}

// TestSuiteClone ensures suite clones are deep.
func TestSuiteClone(t *testing.T) {
	f := newFixture(t)
	suite := NewTestSuite(f.dogTest(), f.dogTest())
	assert.Equal(t, 8, suite.TotalLength())

	c := suite.Clone()
	c.Tests[0].Remove(3)
	c.Remove(1)
	assert.Equal(t, 2, suite.Size())
	assert.Equal(t, 8, suite.TotalLength())
	assert.Equal(t, 3, c.TotalLength())
}
