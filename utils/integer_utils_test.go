package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNarrowInteger verifies two's complement truncation for the literal widths used by the generator.
func TestNarrowInteger(t *testing.T) {
	assert.EqualValues(t, 127, NarrowInteger(127, 8, true))
	assert.EqualValues(t, -128, NarrowInteger(128, 8, true))
	assert.EqualValues(t, -1, NarrowInteger(255, 8, true))
	assert.EqualValues(t, 65535, NarrowInteger(-1, 16, false))
	assert.EqualValues(t, math.MinInt32, NarrowInteger(int64(math.MaxInt32)+1, 32, true))
	assert.EqualValues(t, int64(math.MaxInt64), NarrowInteger(math.MaxInt64, 64, true))
}

// TestClampInteger verifies values are constrained to their bounds.
func TestClampInteger(t *testing.T) {
	assert.Equal(t, 5, ClampInteger(10, 0, 5))
	assert.Equal(t, 0, ClampInteger(-3, 0, 5))
	assert.Equal(t, 3, ClampInteger(3, 0, 5))
	assert.Equal(t, 4, Abs(-4))
}
