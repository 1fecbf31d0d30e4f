// Package bezier evaluates the quintic Bézier velocity curve used by the
// segment executor (spec.md §4.4) via forward differences, so each segment
// costs a handful of additions rather than a polynomial evaluation.
package bezier

import (
	"github.com/orsinium-labs/tinymath"

	"tinygo.org/x/drivers/motion/mathutil"
)

// Curve is a forward-difference walker over one section's (head or tail)
// quintic Bézier velocity profile, with control points
// P0=P1=P2=Ventry, P3=P4=P5=Vexit (zero initial acceleration and jerk at
// both ends). Body sections don't need a Curve: they run at a constant
// cruise velocity.
//
// Per spec.md §9, the forward-difference accumulators (and the running
// velocity) always use Kahan compensated summation.
type Curve struct {
	f1      float32 // constant across the section
	f2      mathutil.KahanAcc
	f3      mathutil.KahanAcc
	f4      mathutil.KahanAcc
	f5      mathutil.KahanAcc
	v       mathutil.KahanAcc
	started bool
}

// NewCurve builds the forward-difference state for a section of segments
// sub-intervals running from vEntry to vExit, per spec.md §4.4's
// coefficient derivation (h = 1/segments, samples taken at t = h/2 so each
// segment carries the average velocity over its span).
func NewCurve(vEntry, vExit float32, segments int) *Curve {
	if segments < 1 {
		segments = 1
	}
	h := 1 / float32(segments)

	a := -6*vEntry + 6*vExit
	b := 15*vEntry - 15*vExit
	c := -10*vEntry + 10*vExit

	h2 := h / 2
	initial := a*pow(h2, 5) + b*pow(h2, 4) + c*pow(h2, 3) + vEntry

	f5 := (121.0/16.0)*a*pow(h, 5) + 5*b*pow(h, 4) + (13.0/4.0)*c*pow(h, 3)
	f4 := (165.0/2.0)*a*pow(h, 5) + 29*b*pow(h, 4) + 9*c*pow(h, 3)
	f3 := 255*a*pow(h, 5) + 48*b*pow(h, 4) + 6*c*pow(h, 3)
	f2 := 300*a*pow(h, 5) + 24*b*pow(h, 4)
	f1 := 120 * a * pow(h, 5)

	return &Curve{
		f1: f1,
		f2: mathutil.NewKahanAcc(f2),
		f3: mathutil.NewKahanAcc(f3),
		f4: mathutil.NewKahanAcc(f4),
		f5: mathutil.NewKahanAcc(f5),
		v:  mathutil.NewKahanAcc(initial),
	}
}

// Next returns the velocity for the next segment. The first call returns
// the half-step initial value computed at construction; every later call
// applies the forward-difference update first (spec.md §4.4: "First
// segment of the second half uses the initial v; subsequent segments apply
// the update before the segment is emitted" — here "second half" is this
// Curve's own first call, since head and tail each own one Curve).
func (cv *Curve) Next() float32 {
	if !cv.started {
		cv.started = true
		return cv.v.Value()
	}

	oldF5 := cv.f5.Value()
	v := cv.v.Add(oldF5)

	oldF4 := cv.f4.Value()
	cv.f5.Add(oldF4)

	oldF3 := cv.f3.Value()
	cv.f4.Add(oldF3)

	oldF2 := cv.f2.Value()
	cv.f3.Add(oldF2)

	cv.f2.Add(cv.f1)

	return v
}

// pow raises x to the small fixed integer powers (3, 4, 5) the quintic
// coefficient setup needs, via tinymath.Pow (the teacher's float32
// hot-path math library, tmc5160/helpers.go, used here for the same
// "float32 arithmetic instead of stdlib math" reason).
func pow(x float32, n int) float32 {
	return tinymath.Pow(x, float32(n))
}
