package targets

import (
	"testing"

	"github.com/crytic/evosynth/generation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEveryTargetBuilds ensures every registered program yields a cluster with calls to test.
func TestEveryTargetBuilds(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{"bank", "classifier", "counter", "greeter", "sandboxed", "spinner", "stack"}, names)

	for _, name := range names {
		target, ok := Lookup(name)
		require.True(t, ok)
		c, err := target.Cluster(nil)
		require.NoError(t, err, name)
		assert.Positive(t, c.NumTestCalls(), name)
		assert.NotEmpty(t, target.Description, name)
	}

	_, ok := Lookup("missing")
	assert.False(t, ok)
}

// TestClustersHaveIndependentState ensures each cluster of a target owns fresh program state.
func TestClustersHaveIndependentState(t *testing.T) {
	first, err := counterTarget.Cluster(nil)
	require.NoError(t, err)
	second, err := counterTarget.Cluster(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Counter"}, first.StaticTypes())
	assert.Len(t, first.StaticResets("Counter"), 1)
	assert.Len(t, second.StaticResets("Counter"), 1)
}

// TestStackInstantiation ensures the element type of the generic stack follows the configured substitution.
func TestStackInstantiation(t *testing.T) {
	c, err := stackTarget.Cluster(nil)
	require.NoError(t, err)
	assert.True(t, c.HasGenerator(types.NewObject("Stack", types.Int)))

	c, err = stackTarget.Cluster(map[string]string{"T": "string"})
	require.NoError(t, err)
	assert.Equal(t, types.String, c.Substitution()["T"])

	_, err = stackTarget.Cluster(map[string]string{"T": "Unknown"})
	assert.Error(t, err)
}

// TestGreeterSourceIsMockable ensures the greeter dependency can only be satisfied by a functional mock.
func TestGreeterSourceIsMockable(t *testing.T) {
	c, err := greeterTarget.Cluster(nil)
	require.NoError(t, err)
	source, ok := c.Universe().Lookup("NameSource")
	require.True(t, ok)

	assert.True(t, c.CanBeMocked(source))
	assert.False(t, c.HasGenerator(source))

	spec, ok := c.Mock("NameSource")
	require.True(t, ok)
	mock := spec.Build([]any{"Ada", "Dr"}).(nameSource)
	assert.Equal(t, "Ada", mock.Name())
	assert.Equal(t, "Dr", mock.Title())
}
