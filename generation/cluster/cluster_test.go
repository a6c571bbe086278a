package cluster

import (
	"math/rand"
	"testing"

	"github.com/crytic/evosynth/generation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(Env, any, []any) (any, error) { return nil, nil }

func buildTestCluster(t *testing.T) *TestCluster {
	b := NewBuilder()
	animal := b.AddType(types.NewObject("Animal"))
	dog := b.AddType(types.NewObject("Dog"), "Animal")
	T := types.NewTypeVariable("T")
	box := b.AddType(types.NewObject("Box", T))
	b.AddType(types.NewObject("Source"))

	b.AddConstructor(dog, "NewDog", []*types.Type{types.String}, noop)
	b.AddMethod(animal, "Speak", nil, types.String, noop)
	b.AddMethod(dog, "Rename", []*types.Type{types.String}, nil, noop)
	b.AddConstructor(box, "NewBox", []*types.Type{T}, noop)
	b.AddMethod(box, "Get", nil, T, noop)
	secret := b.AddMethod(dog, "secret", []*types.Type{types.Int}, types.Int, noop)
	secret.Private = true
	b.AddField(dog, "Age", types.Int, func(Env, any) (any, error) { return 0, nil }, func(Env, any, any) error { return nil })
	b.AddMock(&MockSpec{
		Type:    types.NewObject("Source"),
		Methods: []MockMethod{{Name: "Name", Returns: types.String}},
		Build:   func(answers []any) any { return answers },
	})
	b.AddStaticReset("Dog", func() {})
	b.MarkTarget("Dog")
	b.WithTypeSubstitutions(map[string]string{"T": "int"})

	c, err := b.Build()
	require.NoError(t, err)
	return c
}

// TestGeneratorsHonourSubtypes ensures that generators of subtypes satisfy requests for a supertype.
func TestGeneratorsHonourSubtypes(t *testing.T) {
	c := buildTestCluster(t)
	animal, _ := c.Universe().Lookup("Animal")

	generators := c.GetGenerators(animal)
	require.Len(t, generators, 1)
	assert.Equal(t, "NewDog", generators[0].Name)
	assert.True(t, c.HasGenerator(types.String))
	assert.False(t, c.HasGenerator(types.NewObject("Source")))
}

// TestGenericGeneratorsAreInstantiated ensures generic generators are instantiated for the requested type arguments.
func TestGenericGeneratorsAreInstantiated(t *testing.T) {
	c := buildTestCluster(t)

	generators := c.GetGenerators(types.NewObject("Box", types.String))
	require.Len(t, generators, 1)
	assert.True(t, generators[0].Params[0].Equal(types.String))

	// Generic method results are instantiated through the configured substitution
	found := false
	for _, m := range c.GetGenerators(types.Int) {
		if m.Name == "Get" {
			found = true
			assert.True(t, m.Owner.Equal(types.NewObject("Box", types.Int)))
		}
	}
	assert.True(t, found)
}

// TestRandomGeneratorRespectsExclusions ensures the recursion guard removes candidates.
func TestRandomGeneratorRespectsExclusions(t *testing.T) {
	c := buildTestCluster(t)
	r := rand.New(rand.NewSource(1))
	dog, _ := c.Universe().Lookup("Dog")

	m, ok := c.GetRandomGenerator(r, dog, nil, nil)
	require.True(t, ok)
	_, ok = c.GetRandomGenerator(r, dog, map[string]bool{m.ID(): true}, nil)
	assert.False(t, ok)
}

// TestCallsAndTestCalls verifies modifier lookup through the hierarchy and the catalog of calls under test.
func TestCallsAndTestCalls(t *testing.T) {
	c := buildTestCluster(t)
	dog, _ := c.Universe().Lookup("Dog")

	names := make([]string, 0)
	for _, m := range c.GetCallsFor(dog) {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"Speak", "Rename", "Age"}, names)

	// NewDog, Rename and Age belong to the target; the private method does not count
	assert.Equal(t, 3, c.NumTestCalls())
	private := c.PrivateMembers()
	require.Len(t, private, 1)
	assert.Equal(t, "secret", private[0].Name)
}

// TestMocksAndResets verifies mock and static reset lookups.
func TestMocksAndResets(t *testing.T) {
	c := buildTestCluster(t)
	assert.True(t, c.CanBeMocked(types.NewObject("Source")))
	assert.False(t, c.CanBeMocked(types.String))
	assert.Len(t, c.StaticResets("Dog"), 1)
	assert.Equal(t, []string{"Dog"}, c.StaticTypes())
}

// TestBuildRejectsDuplicates ensures a member cannot be registered twice.
func TestBuildRejectsDuplicates(t *testing.T) {
	b := NewBuilder()
	dog := b.AddType(types.NewObject("Dog"))
	b.AddConstructor(dog, "NewDog", nil, noop)
	b.AddConstructor(dog, "NewDog", nil, noop)
	_, err := b.Build()
	assert.Error(t, err)
}
