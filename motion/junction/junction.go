// Package junction implements the cornering-deviation junction-velocity
// solver (spec.md §4.2, component C6): the maximum entry velocity for a
// block given the direction change from the previous block and the
// per-axis jerk limits.
package junction

import "github.com/orsinium-labs/tinymath"

// colinearFloor is the cosine value above which two direction vectors are
// treated as colinear (no cornering penalty at all).
const colinearFloor = 0.999999

// antiParallelCeiling is the cosine value at/below which two direction
// vectors are treated as anti-parallel (junction velocity forced to zero).
const antiParallelCeiling = -0.999999

// Params bundles the solver's scalar inputs.
type Params struct {
	JunctionDeviation float32 // mm, typ. 0.01
	CentripetalAccel  float32 // units/min^2, default 200000
	PrevCruiseVmax    float32
	PrevExitVmax      float32
	NextCruiseVmax    float32
	NextEntryVmax     float32
}

// Solve computes the maximum safe entry velocity for the block whose unit
// direction vector is next, following a block whose unit direction vector
// was prev. Implements spec.md §4.2's algorithm including its tie-break
// policy (zero-length/NaN vectors and anti-parallel directions yield zero).
func Solve(prev, next []float32, p Params) float32 {
	cos := dot(prev, next)

	// A zero-length or NaN direction vector dotted with anything either
	// comes out exactly 0 (degenerate but not caught below) or NaN; guard
	// both explicitly per the tie-break policy.
	if cos != cos { // NaN check without importing math
		return 0
	}
	if isZeroVector(prev) || isZeroVector(next) {
		return 0
	}

	if cos <= antiParallelCeiling {
		return 0
	}

	if cos >= colinearFloor {
		return min32(p.PrevCruiseVmax, p.NextCruiseVmax, p.PrevExitVmax, p.NextEntryVmax)
	}

	// sin^2(theta/2) = (1 - cos theta) / 2
	sinHalfSq := (1 - cos) / 2
	if sinHalfSq < 0 {
		sinHalfSq = 0
	}
	sinHalf := tinymath.Sqrt(sinHalfSq)

	if sinHalf >= 1 {
		// Degenerate: would divide by zero below; treat as anti-parallel.
		return 0
	}

	radius := p.JunctionDeviation * sinHalf / (1 - sinHalf)
	accel := p.CentripetalAccel
	if accel <= 0 {
		accel = 200_000
	}
	vSq := accel * radius
	if vSq < 0 {
		vSq = 0
	}
	v := tinymath.Sqrt(vSq)

	return min32(v, p.PrevExitVmax, p.NextEntryVmax)
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func min32(vals ...float32) float32 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
