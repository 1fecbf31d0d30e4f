package dda

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"tinygo.org/x/drivers/motion/encoder"
)

type fakePins struct {
	steps   []int
	dirs    []bool
	enabled []bool
}

func newFakePins(n int) *fakePins {
	return &fakePins{
		steps:   make([]int, n),
		dirs:    make([]bool, n),
		enabled: make([]bool, n),
	}
}

func (f *fakePins) SetStep(motor int, high bool) {
	if high {
		f.steps[motor]++
	}
}
func (f *fakePins) SetDirection(motor int, forward bool) { f.dirs[motor] = forward }
func (f *fakePins) Enable(motor int, enabled bool)       { f.enabled[motor] = enabled }

func TestGenerator_PrepLoadTick_EmitsExpectedSteps(t *testing.T) {
	c := qt.New(t)

	pins := newFakePins(1)
	mirror := encoder.NewMirror(1)
	g := NewGenerator(1, 50_000, 100, mirror, pins)

	segmentTimeMin := float32(5000) / 60_000_000 // 5ms, NOM_SEGMENT_USEC
	prep, err := g.PrepLine([]int32{20}, []int32{0}, segmentTimeMin)
	c.Assert(err, qt.IsNil)
	c.Assert(prep.Motors[0].SubstepIncrement, qt.Equals, uint32(2000))

	g.ReleasePrepToLoader(prep)
	c.Assert(g.Load(), qt.IsNil)
	c.Assert(pins.enabled[0], qt.IsTrue)

	done := false
	for i := uint32(0); i < prep.DDATicks; i++ {
		if g.Tick() {
			done = true
			break
		}
	}
	c.Assert(done, qt.IsTrue)
	c.Assert(pins.steps[0], qt.Equals, 20)
	c.Assert(mirror.Get(0), qt.Equals, int32(20))
}

func TestGenerator_RejectsNaNSegmentTime(t *testing.T) {
	c := qt.New(t)

	pins := newFakePins(1)
	g := NewGenerator(1, 50_000, 0, encoder.NewMirror(1), pins)

	nan := float32(0)
	nan = nan / nan
	_, err := g.PrepLine([]int32{10}, []int32{0}, nan)
	c.Assert(err, qt.Equals, ErrSegmentTimeInvalid)
}

func TestGenerator_LoadWithoutPrepFails(t *testing.T) {
	c := qt.New(t)
	g := NewGenerator(1, 50_000, 0, encoder.NewMirror(1), newFakePins(1))
	err := g.Load()
	c.Assert(err, qt.Equals, ErrPrepNotReady)
}

func TestGenerator_DirectionFlipRephasesAccumulator(t *testing.T) {
	c := qt.New(t)

	pins := newFakePins(1)
	g := NewGenerator(1, 50_000, 100, encoder.NewMirror(1), pins)

	segmentTimeMin := float32(5000) / 60_000_000
	prep1, _ := g.PrepLine([]int32{20}, []int32{0}, segmentTimeMin)
	g.ReleasePrepToLoader(prep1)
	c.Assert(g.Load(), qt.IsNil)
	for i := uint32(0); i < prep1.DDATicks; i++ {
		g.Tick()
	}

	prep2, _ := g.PrepLine([]int32{-20}, []int32{0}, segmentTimeMin)
	g.ReleasePrepToLoader(prep2)
	c.Assert(g.Load(), qt.IsNil)
	c.Assert(pins.dirs[0], qt.IsFalse)
}
