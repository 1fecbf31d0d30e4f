package trapezoid

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

// S1 — single short hop: target distance 10mm, feed 1000mm/min, jerk 5e9,
// entry 0, exit 0. Distance is too short to reach 1000, so this must
// collapse to a triangle profile (body length 0) peaking below 1000.
func TestPlan_TriangleProfile(t *testing.T) {
	c := qt.New(t)

	p := Plan(10, 0, 1000, 0, 5_000_000_000)

	c.Assert(p.Infeasible, qt.IsFalse)
	c.Assert(p.BodyLength, qt.Equals, float32(0))
	c.Assert(p.CruiseVelocity < 1000, qt.IsTrue)
	c.Assert(p.CruiseVelocity > 0, qt.IsTrue)

	sum := p.HeadLength + p.BodyLength + p.TailLength
	diff := sum - 10
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 0.001, qt.IsTrue)
}

func TestPlan_FullTrapezoid(t *testing.T) {
	c := qt.New(t)

	p := Plan(1000, 0, 1000, 0, 5_000_000_000)

	c.Assert(p.CruiseVelocity, qt.Equals, float32(1000))
	c.Assert(p.BodyLength > 0, qt.IsTrue)

	sum := p.HeadLength + p.BodyLength + p.TailLength
	diff := sum - 1000
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 0.001, qt.IsTrue)
}

// Invariant 6 — planning an isolated block twice with identical inputs
// yields identical head/body/tail.
func TestPlan_Idempotent(t *testing.T) {
	c := qt.New(t)

	a := Plan(37.5, 120, 1500, 60, 3_000_000_000)
	b := Plan(37.5, 120, 1500, 60, 3_000_000_000)

	c.Assert(a, qt.Equals, b)
}

func TestPlan_ZeroLength(t *testing.T) {
	c := qt.New(t)

	p := Plan(0, 500, 1000, 500, 5_000_000_000)
	c.Assert(p.CruiseVelocity, qt.Equals, float32(500))
}

func TestDistance_Symmetric(t *testing.T) {
	c := qt.New(t)

	a := Distance(0, 100, 1_000_000)
	b := Distance(100, 0, 1_000_000)
	c.Assert(a, qt.Equals, b)
}
