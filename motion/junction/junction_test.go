package junction

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func defaultParams() Params {
	return Params{
		JunctionDeviation: 0.01,
		CentripetalAccel:  200_000,
		PrevCruiseVmax:    1000,
		PrevExitVmax:      1000,
		NextCruiseVmax:    1000,
		NextEntryVmax:     1000,
	}
}

// S2 — two colinear hops: entry2 == exit1 == min(cruise-vmax of both).
func TestSolve_Colinear(t *testing.T) {
	c := qt.New(t)
	v := Solve([]float32{1, 0, 0}, []float32{1, 0, 0}, defaultParams())
	c.Assert(v, qt.Equals, float32(1000))
}

// S3 — 90 degree corner: strictly between 0 and feed rate.
func TestSolve_RightAngle(t *testing.T) {
	c := qt.New(t)
	v := Solve([]float32{1, 0, 0}, []float32{0, 1, 0}, defaultParams())
	c.Assert(v > 0, qt.IsTrue)
	c.Assert(v < 1000, qt.IsTrue)
}

// S4 — anti-parallel: junction velocity is zero.
func TestSolve_AntiParallel(t *testing.T) {
	c := qt.New(t)
	v := Solve([]float32{1, 0, 0}, []float32{-1, 0, 0}, defaultParams())
	c.Assert(v, qt.Equals, float32(0))
}

func TestSolve_ZeroVector(t *testing.T) {
	c := qt.New(t)
	v := Solve([]float32{0, 0, 0}, []float32{1, 0, 0}, defaultParams())
	c.Assert(v, qt.Equals, float32(0))
}

func TestSolve_ClampedByNeighborLimits(t *testing.T) {
	c := qt.New(t)
	p := defaultParams()
	p.PrevExitVmax = 200
	v := Solve([]float32{1, 0, 0}, []float32{1, 0, 0}, p)
	c.Assert(v, qt.Equals, float32(200))
}
