package randomutils

import (
	"encoding/binary"
	"math/rand"
)

// ForkRandomProvider creates a child random provider from the current random provider by using its random data as
// a seed. Each generation session derives its own provider from the root seed so results stay reproducible even
// when sessions run on separate goroutines.
func ForkRandomProvider(randomProvider *rand.Rand) *rand.Rand {
	b := make([]byte, 8)
	_, err := randomProvider.Read(b)
	if err != nil {
		panic(err)
	}

	forkSeed := int64(binary.LittleEndian.Uint64(b))
	return rand.New(rand.NewSource(forkSeed))
}

// Choice returns a uniformly selected element of the provided slice. The boolean is false if the slice is empty.
func Choice[T any](randomProvider *rand.Rand, items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[randomProvider.Intn(len(items))], true
}

// Shuffle randomizes the order of the provided slice in place.
func Shuffle[T any](randomProvider *rand.Rand, items []T) {
	randomProvider.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// Chance returns true with the given probability.
func Chance(randomProvider *rand.Rand, probability float64) bool {
	if probability <= 0 {
		return false
	}
	return randomProvider.Float64() < probability
}
