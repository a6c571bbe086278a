package utils

import (
	"golang.org/x/exp/constraints"
)

// NarrowInteger truncates a 64-bit value to the given bit length, simulating the overflow and underflow of a
// two's complement cast. Unsigned results are returned zero-extended, signed results sign-extended.
func NarrowInteger(v int64, bitLength int, signed bool) int64 {
	if bitLength >= 64 || bitLength <= 0 {
		return v
	}
	mask := uint64(1)<<uint(bitLength) - 1
	u := uint64(v) & mask
	if signed && u&(uint64(1)<<uint(bitLength-1)) != 0 {
		u |= ^mask
	}
	return int64(u)
}

// ClampInteger constrains x to the inclusive range [min, max].
func ClampInteger[T constraints.Integer](x T, min T, max T) T {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// Abs returns the absolute value of x. The minimum value of a signed type is returned unchanged.
func Abs[T constraints.Integer](x T) T {
	if x < 0 {
		return -x
	}
	return x
}
