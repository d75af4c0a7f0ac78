// Package numeric holds the small generic arithmetic helpers used by the
// split finder. It mirrors the teacher
// package's math.go, generalized so internal/ packages (which cannot import
// the unexported helpers of the root package) share one implementation.
package numeric

import "golang.org/x/exp/constraints"

// Real is the constraint used throughout the histogram/split code: anything
// that can be summed and divided like a score.
type Real interface {
	constraints.Float
}

// Mean returns the arithmetic mean of data, or 0 for an empty slice.
func Mean[T constraints.Float | constraints.Integer](data []T) float64 {
	if len(data) == 0 {
		return 0
	}
	return float64(Sum(data)) / float64(len(data))
}

// Sum returns the sum of data.
func Sum[T constraints.Float | constraints.Integer](data []T) T {
	var s T
	for _, d := range data {
		s += d
	}
	return s
}

// VSub returns a - b elementwise. Panics on length mismatch.
func VSub[T constraints.Float | constraints.Integer](a, b []T) []T {
	if len(a) != len(b) {
		panic("numeric: VSub mismatched slice lengths")
	}
	result := make([]T, len(a))
	for i := range a {
		result[i] = a[i] - b[i]
	}
	return result
}

// SoftThreshold applies L1 shrinkage: sign(g)*max(0, |g|-alpha). Used by the
// split finder's score function and by leaf-weight computation (spec.md §4.5).
func SoftThreshold[T Real](g, alpha T) T {
	if g > 0 {
		if g > alpha {
			return g - alpha
		}
		return 0
	}
	if -g > alpha {
		return g + alpha
	}
	return 0
}

// Score computes the per-side contribution to split gain:
// score(g,h) = soft_threshold(g,alpha)^2 / (h+lambda).
func Score[T Real](g, h, alpha, lambda T) T {
	st := SoftThreshold(g, alpha)
	denom := h + lambda
	if denom <= 0 {
		return 0
	}
	return (st * st) / denom
}

// LeafWeight computes the Newton-Raphson optimal leaf value
// w = -soft_threshold(G,alpha) / (H+lambda) (spec.md §4.5).
func LeafWeight[T Real](g, h, alpha, lambda T) T {
	denom := h + lambda
	if denom <= 0 {
		return 0
	}
	return -SoftThreshold(g, alpha) / denom
}
