package utils

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceSelectAndWhere(t *testing.T) {
	values := []int{3, -1, 4, -1, 5}
	assert.Equal(t, []string{"3", "-1", "4", "-1", "5"}, SliceSelect(values, strconv.Itoa))
	assert.Equal(t, []int{3, 4, 5}, SliceWhere(values, func(x int) bool { return x > 0 }))
	assert.NotNil(t, SliceWhere(values, func(x int) bool { return x > 10 }))
	assert.Empty(t, SliceSelect([]int(nil), strconv.Itoa))
}
