package randomutils

import (
	"fmt"
	"math/rand"
	"sync"
)

// WeightedRandomChoice describes a weighted, randomly selectable object for use with a WeightedRandomChooser.
type WeightedRandomChoice[T any] struct {
	// Data describes the wrapped data that a WeightedRandomChooser returns when this choice is selected.
	Data T

	// weight describes the likelihood of this choice to appear in a random selection. Its probability is calculated
	// as its weight divided by the sum of all weights in a WeightedRandomChooser.
	weight float64
}

// NewWeightedRandomChoice creates a WeightedRandomChoice with the given underlying data and weight. Negative weights
// are treated as zero.
func NewWeightedRandomChoice[T any](data T, weight float64) *WeightedRandomChoice[T] {
	if weight < 0 {
		weight = 0
	}
	return &WeightedRandomChoice[T]{
		Data:   data,
		weight: weight,
	}
}

// WeightedRandomChooser takes a series of WeightedRandomChoice objects which wrap underlying data, and returns one
// of the weighted options randomly.
type WeightedRandomChooser[T any] struct {
	// choices describes the weighted choices from which the chooser will randomly select.
	choices []*WeightedRandomChoice[T]

	// totalWeight describes the sum of all weights in choices.
	totalWeight float64

	// randomProvider offers a source of random data.
	randomProvider *rand.Rand
	// randomProviderLock offers thread safety to the random number generator.
	randomProviderLock *sync.Mutex
}

// NewWeightedRandomChooserWithRand creates a WeightedRandomChooser with the provided random provider and the mutex
// lock to be acquired when using it.
func NewWeightedRandomChooserWithRand[T any](randomProvider *rand.Rand, randomProviderLock *sync.Mutex) *WeightedRandomChooser[T] {
	if randomProviderLock == nil {
		randomProviderLock = &sync.Mutex{}
	}
	return &WeightedRandomChooser[T]{
		choices:            make([]*WeightedRandomChoice[T], 0),
		randomProvider:     randomProvider,
		randomProviderLock: randomProviderLock,
	}
}

// ChoiceCount returns the count of choices added to this chooser.
func (c *WeightedRandomChooser[T]) ChoiceCount() int {
	return len(c.choices)
}

// AddChoices adds weighted choices to the WeightedRandomChooser, allowing for future random selection.
func (c *WeightedRandomChooser[T]) AddChoices(choices ...*WeightedRandomChoice[T]) {
	c.randomProviderLock.Lock()
	defer c.randomProviderLock.Unlock()

	for _, choice := range choices {
		c.totalWeight += choice.weight
	}
	c.choices = append(c.choices, choices...)
}

// Choose selects a random weighted item from the WeightedRandomChooser, or returns an error if there is nothing with
// a non-zero weight to choose from.
func (c *WeightedRandomChooser[T]) Choose() (*T, error) {
	if len(c.choices) == 0 || c.totalWeight <= 0 {
		return nil, fmt.Errorf("could not return a weighted random choice because no choices exist with non-zero weights")
	}

	c.randomProviderLock.Lock()
	defer c.randomProviderLock.Unlock()

	// Select a position in the total weight, then walk the choices subtracting their weight until we land in one
	selectedWeightPosition := c.randomProvider.Float64() * c.totalWeight
	for _, choice := range c.choices {
		if selectedWeightPosition < choice.weight {
			return &choice.Data, nil
		}
		selectedWeightPosition -= choice.weight
	}

	// Floating point rounding may leave us past the final choice, in which case the last weighted choice wins
	for i := len(c.choices) - 1; i >= 0; i-- {
		if c.choices[i].weight > 0 {
			return &c.choices[i].Data, nil
		}
	}
	return nil, fmt.Errorf("could not obtain a weighted random choice, selected position does not exist")
}
