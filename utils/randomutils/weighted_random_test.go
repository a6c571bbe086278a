package randomutils

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWeightedRandomChooserFavorsHeavierChoices verifies that selections follow the provided weights and that zero
// weight choices are never selected.
func TestWeightedRandomChooserFavorsHeavierChoices(t *testing.T) {
	chooser := NewWeightedRandomChooserWithRand[string](rand.New(rand.NewSource(1)), nil)
	chooser.AddChoices(
		NewWeightedRandomChoice("never", 0),
		NewWeightedRandomChoice("light", 1),
		NewWeightedRandomChoice("heavy", 9),
	)
	require.Equal(t, 3, chooser.ChoiceCount())

	counts := make(map[string]int)
	for i := 0; i < 5000; i++ {
		choice, err := chooser.Choose()
		require.NoError(t, err)
		counts[*choice]++
	}
	assert.Zero(t, counts["never"])
	assert.Greater(t, counts["heavy"], counts["light"]*4)
}

// TestWeightedRandomChooserEmpty verifies that an empty chooser reports an error instead of selecting anything.
func TestWeightedRandomChooserEmpty(t *testing.T) {
	chooser := NewWeightedRandomChooserWithRand[int](rand.New(rand.NewSource(1)), nil)
	_, err := chooser.Choose()
	assert.Error(t, err)

	chooser.AddChoices(NewWeightedRandomChoice(1, 0))
	_, err = chooser.Choose()
	assert.Error(t, err)
}

// TestForkRandomProviderIsDeterministic verifies forked providers derived from equal seeds produce equal streams.
func TestForkRandomProviderIsDeterministic(t *testing.T) {
	a := ForkRandomProvider(rand.New(rand.NewSource(42)))
	b := ForkRandomProvider(rand.New(rand.NewSource(42)))
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}
