// Package safeconv provides integer conversions that clamp instead of wrapping.
package safeconv

import "math"

// ClampToInt64 converts v to int64, clamping values above math.MaxInt64.
func ClampToInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}

// ClampToUint64 converts v to uint64, clamping negative values to zero.
func ClampToUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}

	return uint64(v)
}
