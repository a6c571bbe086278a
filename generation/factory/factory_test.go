package factory

import (
	"math/rand"
	"testing"

	"github.com/crytic/evosynth/generation/cluster"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/testcase"
	"github.com/crytic/evosynth/generation/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(cluster.Env, any, []any) (any, error) { return nil, nil }

// kennelCluster builds a cluster of dogs, kennels binding their dogs, mockable sources without generators, and
// widgets that can never be built because one of their parameters is an enum without constants.
func kennelCluster(t *testing.T) *cluster.TestCluster {
	b := cluster.NewBuilder()
	dog := b.AddType(types.NewObject("Dog"))
	kennel := b.AddType(types.NewObject("Kennel"))
	source := b.AddType(types.NewObject("Source"))

	b.AddConstructor(dog, "NewDog", []*types.Type{types.String}, noop)
	b.AddConstructor(dog, "NewPuppy", nil, noop)
	b.AddMethod(dog, "Speak", nil, types.String, noop)
	b.AddMethod(dog, "Rename", []*types.Type{types.String}, nil, noop)
	b.AddMethod(dog, "Listen", []*types.Type{source}, nil, noop)
	b.AddMethod(dog, "Fetch", []*types.Type{types.Int, types.ArrayOf(types.String)}, types.Int, noop)
	b.AddField(dog, "Age", types.Int,
		func(cluster.Env, any) (any, error) { return int64(0), nil },
		func(cluster.Env, any, any) error { return nil })
	house := b.AddConstructor(kennel, "NewKennel", []*types.Type{dog}, noop)
	house.BoundedParams = []int{0}
	b.AddMethod(kennel, "Count", nil, types.Int, noop)
	b.AddMock(&cluster.MockSpec{
		Type:    source,
		Methods: []cluster.MockMethod{{Name: "Name", Returns: types.String}},
		Build:   func(answers []any) any { return answers },
	})
	b.MarkTarget("Dog")
	b.MarkTarget("Kennel")

	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func brokenCluster(t *testing.T) *cluster.TestCluster {
	b := cluster.NewBuilder()
	widget := b.AddType(types.NewObject("Widget"))
	empty := b.AddType(types.NewEnum("Empty"))
	b.AddConstructor(widget, "NewWidget", []*types.Type{types.String, empty}, noop)
	b.MarkTarget("Widget")

	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func testConfig() config.FactoryConfig {
	cfg := config.GetDefaultProjectConfig().Generation.Factory
	cfg.FunctionalMockingPercent = 0
	cfg.FunctionalMockingProbability = 0.5
	return cfg
}

func sameStatements(t *testing.T, expected, actual []testcase.Statement) {
	identity := cmp.Comparer(func(a, b testcase.Statement) bool { return a == b })
	if diff := cmp.Diff(expected, actual, identity); diff != "" {
		t.Fatalf("statements changed (-want +got):\n%s", diff)
	}
}

// TestArrayElementsAreGeneratedIndependently ensures that without reuse every slot of a new array receives its own
// freshly generated value, none of which refer to the array.
func TestArrayElementsAreGeneratedIndependently(t *testing.T) {
	cfg := testConfig()
	cfg.ObjectReuseProbability = 0
	cfg.NullProbability = 0
	f := NewTestFactory(kennelCluster(t), cfg, rand.New(rand.NewSource(1)))

	tc := testcase.New()
	array, err := f.createArray(tc, types.ArrayOf(types.String), 3, 0, 0)
	require.NoError(t, err)
	require.NoError(t, tc.Validate(f.Cluster().Universe(), f.MaxMockConsumers()))
	assert.Equal(t, 7, tc.Size())

	values := make(map[*testcase.VariableReference]bool)
	literals := 0
	for _, st := range tc.Statements() {
		switch s := st.(type) {
		case *testcase.PrimitiveStatement:
			literals++
			assert.Empty(t, s.Inputs())
		case *testcase.ArrayIndexAssignmentStatement:
			assert.Same(t, array, s.Array())
			_, isLiteral := s.Value.Statement().(*testcase.PrimitiveStatement)
			assert.True(t, isLiteral)
			assert.False(t, values[s.Value], "slots share a value")
			values[s.Value] = true
		}
	}
	assert.Equal(t, 3, literals)
	assert.Len(t, values, 3)
}

// TestFailedInsertionIsRolledBack ensures a call whose parameters cannot all be satisfied leaves the test case
// exactly as it was.
func TestFailedInsertionIsRolledBack(t *testing.T) {
	cfg := testConfig()
	cfg.PrimitiveReuseProbability = 0
	f := NewTestFactory(brokenCluster(t), cfg, rand.New(rand.NewSource(7)))

	tc := testcase.New()
	tc.AppendStatement(testcase.NewPrimitiveStatement(types.Int, int64(1)))
	tc.AppendStatement(testcase.NewPrimitiveStatement(types.String, "a"))
	before := tc.Statements()

	for position := 0; position <= tc.Size(); position++ {
		assert.False(t, f.InsertRandomCall(tc, position))
		sameStatements(t, before, tc.Statements())
	}

	empty, _ := f.Cluster().Universe().Lookup("Empty")
	_, err := f.SatisfyParameters(tc, nil, []*types.Type{types.String, types.Int, empty}, 1, 0)
	require.Error(t, err)
	reason, ok := FailureReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNoGenerator, reason)
	sameStatements(t, before, tc.Statements())
}

// TestMaxRecursionFails ensures generation beyond the configured depth fails with a typed failure.
func TestMaxRecursionFails(t *testing.T) {
	cfg := testConfig()
	f := NewTestFactory(kennelCluster(t), cfg, rand.New(rand.NewSource(1)))
	dog, _ := f.Cluster().Universe().Lookup("Dog")

	tc := testcase.New()
	_, err := f.AttemptGeneration(tc, dog, 0, cfg.MaxRecursion+1, false)
	reason, ok := FailureReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonMaxRecursion, reason)
	assert.True(t, tc.IsEmpty())
}

// TestRandomConstructionKeepsInvariants applies random insertions and deletions and validates every intermediate
// test case: operands are defined earlier, types line up, bound values are never reassigned and functional mocks are
// never receivers.
func TestRandomConstructionKeepsInvariants(t *testing.T) {
	c := kennelCluster(t)
	for seed := int64(0); seed < 40; seed++ {
		r := rand.New(rand.NewSource(seed))
		f := NewTestFactory(c, testConfig(), r)
		tc := testcase.New()

		for step := 0; step < 30; step++ {
			switch r.Intn(5) {
			case 0, 1:
				f.InsertRandomCall(tc, r.Intn(tc.Size()+1))
			case 2:
				f.InsertRandomCallOnObject(tc, r.Intn(tc.Size()+1))
			case 3:
				if !tc.IsEmpty() {
					require.NoError(t, f.DeleteStatementGracefully(tc, r.Intn(tc.Size())))
				}
			case 4:
				if !tc.IsEmpty() {
					f.ChangeRandomCall(tc, tc.Statement(r.Intn(tc.Size())))
				}
			}
			require.NoError(t, tc.Validate(c.Universe(), f.MaxMockConsumers()), "seed %d step %d:\n%s", seed, step, tc.Code())

			for _, st := range tc.Statements() {
				if callee := testcase.Callee(st); callee != nil {
					assert.False(t, tc.IsFunctionalMock(callee))
				}
			}
		}
	}
}

// TestMocksStandInForTypesWithoutGenerators ensures a parameter of a mockable type without generators is satisfied
// by a functional mock used only as an argument.
func TestMocksStandInForTypesWithoutGenerators(t *testing.T) {
	c := kennelCluster(t)
	cfg := testConfig()
	cfg.NullProbability = 0
	f := NewTestFactory(c, cfg, rand.New(rand.NewSource(3)))
	listen, ok := c.Member("Dog.Listen/1")
	require.True(t, ok)

	tc := testcase.New()
	v, err := f.AddMethod(tc, listen, 0, 0)
	require.NoError(t, err)
	st := v.Statement().(*testcase.MethodStatement)
	assert.False(t, tc.IsFunctionalMock(st.Callee))
	require.Len(t, st.Params, 1)
	assert.True(t, tc.IsFunctionalMock(st.Params[0]))
	assert.NoError(t, tc.Validate(c.Universe(), f.MaxMockConsumers()))
}

// TestAddMethodForRejectsInvalidCallees ensures receivers must precede the call and must not be mocks.
func TestAddMethodForRejectsInvalidCallees(t *testing.T) {
	c := kennelCluster(t)
	f := NewTestFactory(c, testConfig(), rand.New(rand.NewSource(1)))
	speak, _ := c.Member("Dog.Speak/0")
	newPuppy, _ := c.Member("Dog.NewPuppy/0")
	spec, _ := c.Mock("Source")

	tc := testcase.New()
	dog, err := f.AddConstructor(tc, newPuppy, 0, 0)
	require.NoError(t, err)

	_, err = f.AddMethodFor(tc, dog, speak, 0)
	reason, _ := FailureReason(err)
	assert.Equal(t, ReasonInvalidPosition, reason)

	answer := tc.AppendStatement(testcase.NewPrimitiveStatement(types.String, "x"))
	mock := tc.AppendStatement(testcase.NewFunctionalMockStatement(spec, []*testcase.VariableReference{answer}))
	size := tc.Size()
	_, err = f.AddMethodFor(tc, mock, speak, tc.Size())
	reason, _ = FailureReason(err)
	assert.Equal(t, ReasonMockAsCallee, reason)
	assert.Equal(t, size, tc.Size())

	v, err := f.AddMethodFor(tc, dog, speak, tc.Size())
	require.NoError(t, err)
	assert.Equal(t, dog.Distance+1, v.Distance)
}

// TestDeletingUnreferencedStatement ensures deleting a statement without dependents removes exactly one statement.
func TestDeletingUnreferencedStatement(t *testing.T) {
	c := kennelCluster(t)
	f := NewTestFactory(c, testConfig(), rand.New(rand.NewSource(1)))
	newDog, _ := c.Member("Dog.NewDog/1")
	speak, _ := c.Member("Dog.Speak/0")

	tc := testcase.New()
	name := tc.AppendStatement(testcase.NewPrimitiveStatement(types.String, "rex"))
	dog := tc.AppendStatement(testcase.NewConstructorStatement(newDog, []*testcase.VariableReference{name}))
	tc.AppendStatement(testcase.NewMethodStatement(speak, dog, nil))
	tc.AppendStatement(testcase.NewMethodStatement(speak, dog, nil))

	require.NoError(t, f.DeleteStatement(tc, 3))
	assert.Equal(t, 3, tc.Size())
	require.NoError(t, f.DeleteStatementGracefully(tc, 2))
	assert.Equal(t, 2, tc.Size())

	assert.Error(t, f.DeleteStatement(tc, 5))
}

// TestDeletionCascadesToDependents ensures statements depending on a deleted value are removed when there is no
// alternative value.
func TestDeletionCascadesToDependents(t *testing.T) {
	c := kennelCluster(t)
	f := NewTestFactory(c, testConfig(), rand.New(rand.NewSource(1)))
	newDog, _ := c.Member("Dog.NewDog/1")
	speak, _ := c.Member("Dog.Speak/0")

	tc := testcase.New()
	name := tc.AppendStatement(testcase.NewPrimitiveStatement(types.String, "rex"))
	dog := tc.AppendStatement(testcase.NewConstructorStatement(newDog, []*testcase.VariableReference{name}))
	tc.AppendStatement(testcase.NewMethodStatement(speak, dog, nil))
	tc.AppendStatement(testcase.NewPrimitiveStatement(types.Int, int64(2)))

	require.NoError(t, f.DeleteStatementGracefully(tc, 0))
	require.Equal(t, 1, tc.Size())
	assert.Equal(t, "var0 := 2", tc.Statement(0).Code())
}

// TestGracefulDeletionRewiresReferences ensures uses of a deleted value move to an equivalent value in scope.
func TestGracefulDeletionRewiresReferences(t *testing.T) {
	c := kennelCluster(t)
	f := NewTestFactory(c, testConfig(), rand.New(rand.NewSource(1)))
	newDog, _ := c.Member("Dog.NewDog/1")
	rename, _ := c.Member("Dog.Rename/1")

	tc := testcase.New()
	first := tc.AppendStatement(testcase.NewPrimitiveStatement(types.String, "a"))
	second := tc.AppendStatement(testcase.NewPrimitiveStatement(types.String, "b"))
	dog := tc.AppendStatement(testcase.NewConstructorStatement(newDog, []*testcase.VariableReference{second}))
	tc.AppendStatement(testcase.NewMethodStatement(rename, dog, []*testcase.VariableReference{second}))

	require.NoError(t, f.DeleteStatementGracefully(tc, 1))
	require.Equal(t, 3, tc.Size())
	assert.Same(t, first, tc.Statement(1).Inputs()[0])
	assert.Equal(t, "var1.Rename(var0)", tc.Statement(2).Code())
	assert.NoError(t, tc.Validate(c.Universe(), f.MaxMockConsumers()))
}

// TestBoundValuesAreNotReused ensures a value bound by one constructor is never bound by another.
func TestBoundValuesAreNotReused(t *testing.T) {
	c := kennelCluster(t)
	cfg := testConfig()
	cfg.ObjectReuseProbability = 1
	f := NewTestFactory(c, cfg, rand.New(rand.NewSource(5)))
	newKennel, _ := c.Member("Kennel.NewKennel/1")

	tc := testcase.New()
	first, err := f.AddConstructor(tc, newKennel, 0, 0)
	require.NoError(t, err)
	second, err := f.AddConstructor(tc, newKennel, tc.Size(), 0)
	require.NoError(t, err)

	firstDog := first.Statement().(*testcase.ConstructorStatement).Params[0]
	secondDog := second.Statement().(*testcase.ConstructorStatement).Params[0]
	assert.NotSame(t, firstDog, secondDog)
	assert.NoError(t, tc.Validate(c.Universe(), f.MaxMockConsumers()))
}

// TestChangeRandomCallReplacesGenerator ensures a constructor is swapped for another generator of the same type and
// later uses follow the new value.
func TestChangeRandomCallReplacesGenerator(t *testing.T) {
	c := kennelCluster(t)
	f := NewTestFactory(c, testConfig(), rand.New(rand.NewSource(1)))
	newDog, _ := c.Member("Dog.NewDog/1")
	speak, _ := c.Member("Dog.Speak/0")

	tc := testcase.New()
	name := tc.AppendStatement(testcase.NewPrimitiveStatement(types.String, "rex"))
	dog := tc.AppendStatement(testcase.NewConstructorStatement(newDog, []*testcase.VariableReference{name}))
	tc.AppendStatement(testcase.NewMethodStatement(speak, dog, nil))

	require.True(t, f.ChangeRandomCall(tc, tc.Statement(1)))
	replaced, ok := tc.Statement(1).(*testcase.ConstructorStatement)
	require.True(t, ok)
	assert.Equal(t, "NewPuppy", replaced.Constructor.Name)
	assert.Same(t, replaced.ReturnValue(), tc.Statement(2).(*testcase.MethodStatement).Callee)
	assert.NoError(t, tc.Validate(c.Universe(), f.MaxMockConsumers()))
}

// TestCharactersAreNotReusedAsNumbers ensures char values are not offered for numeric parameters.
func TestCharactersAreNotReusedAsNumbers(t *testing.T) {
	c := kennelCluster(t)
	f := NewTestFactory(c, testConfig(), rand.New(rand.NewSource(1)))

	tc := testcase.New()
	tc.AppendStatement(testcase.NewPrimitiveStatement(types.Char, int64('a')))
	number := tc.AppendStatement(testcase.NewPrimitiveStatement(types.Short, int64(3)))

	candidates := f.candidatesForReuse(tc, types.Int, tc.Size(), request{allowNull: true})
	assert.Equal(t, []*testcase.VariableReference{number}, candidates)
}

// TestInsertRandomStatementReportsPosition ensures the returned position holds the inserted call.
func TestInsertRandomStatementReportsPosition(t *testing.T) {
	c := kennelCluster(t)
	f := NewTestFactory(c, testConfig(), rand.New(rand.NewSource(11)))

	tc := testcase.New()
	for i := 0; i < 10; i++ {
		position := f.InsertRandomStatement(tc, tc.Size()-1)
		if position < 0 {
			continue
		}
		require.Less(t, position, tc.Size())
		_, isLiteral := tc.Statement(position).(*testcase.PrimitiveStatement)
		assert.False(t, isLiteral)
	}
	assert.NoError(t, tc.Validate(c.Universe(), f.MaxMockConsumers()))
}
