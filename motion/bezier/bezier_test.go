package bezier

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCurve_EndpointsMatch(t *testing.T) {
	c := qt.New(t)

	segments := 20
	cv := NewCurve(100, 400, segments)

	first := cv.Next()
	c.Assert(first > 90 && first < 110, qt.IsTrue)

	var last float32
	for i := 1; i < segments; i++ {
		last = cv.Next()
	}
	c.Assert(last > 380 && last < 410, qt.IsTrue)
}

func TestCurve_Monotonic_AccelerateCase(t *testing.T) {
	c := qt.New(t)

	segments := 10
	cv := NewCurve(0, 1000, segments)

	prev := cv.Next()
	for i := 1; i < segments; i++ {
		v := cv.Next()
		c.Assert(v >= prev-1, qt.IsTrue) // allow tiny float jitter
		prev = v
	}
}

func TestCurve_FlatWhenEntryEqualsExit(t *testing.T) {
	c := qt.New(t)

	cv := NewCurve(500, 500, 5)
	for i := 0; i < 5; i++ {
		v := cv.Next()
		diff := v - 500
		if diff < 0 {
			diff = -diff
		}
		c.Assert(diff < 0.01, qt.IsTrue)
	}
}
