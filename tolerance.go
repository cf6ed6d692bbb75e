// Package godf tolerance-based verification for floating-point comparisons
package godf

import (
	"fmt"
	"math"
)

// ToleranceConfig defines tolerance parameters for float64 comparison
type ToleranceConfig struct {
	// AbsTol is the absolute tolerance for values near zero
	AbsTol float64

	// RelTol is the relative tolerance as a fraction of the larger value
	RelTol float64
}

// DefaultTolerance returns the tolerance for block-streamed accumulation,
// where summation order differs from a dense reference
func DefaultTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol: 1e-10,
		RelTol: 1e-9,
	}
}

// StrictTolerance returns the tolerance for results that must agree to
// floating-point roundoff
func StrictTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol: 1e-13,
		RelTol: 1e-12,
	}
}

// Within reports whether a and b agree inside the tolerance
func (tc ToleranceConfig) Within(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	diff := math.Abs(a - b)
	if diff <= tc.AbsTol {
		return true
	}
	larger := math.Max(math.Abs(a), math.Abs(b))
	return diff <= tc.RelTol*larger
}

// Verify compares two slices element-wise and returns a descriptive
// error naming the first mismatch.
func (tc ToleranceConfig) Verify(name string, got, want []float64) error {
	if len(got) != len(want) {
		return fmt.Errorf("%s: length mismatch: got %d, want %d", name, len(got), len(want))
	}
	for i := range got {
		if !tc.Within(got[i], want[i]) {
			return fmt.Errorf("%s: mismatch at index %d: got %v, want %v (diff %v)",
				name, i, got[i], want[i], math.Abs(got[i]-want[i]))
		}
	}
	return nil
}
