package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIsCompatible verifies the compatibility window for data written by other builds.
func TestIsCompatible(t *testing.T) {
	current := SemVer()
	assert.True(t, IsCompatible(current.String()))
	assert.False(t, IsCompatible("not-a-version"))
	assert.False(t, IsCompatible("99.0.0"))
}
