package motion

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"tinygo.org/x/drivers/motion/axis"
	"tinygo.org/x/drivers/motion/kinematics"
)

type fakePins struct {
	steps []int
}

func (f *fakePins) SetStep(motor int, high bool) {
	if high {
		f.steps[motor]++
	}
}
func (f *fakePins) SetDirection(int, bool) {}
func (f *fakePins) Enable(int, bool)       {}

func newTestCore(t *testing.T) (*Core, *fakePins, *int) {
	t.Helper()
	kin := kinematics.NewIdentity([]string{"x"}, 80, 300)
	ax := axis.NewDefaultConfig("x")
	pins := &fakePins{steps: make([]int, 1)}
	cycleEnds := 0
	c := New(Config{
		Kinematics: kin,
		Axes:       []axis.Config{ax},
		System:     axis.NewDefaultSystem(),
		Pins:       pins,
		DDAFreqHz:  50_000,
	}, Callbacks{
		CycleEnd: func() { cycleEnds++ },
	})
	return c, pins, &cycleEnds
}

// driveUntilCycleEnd runs the three priority-level ticks in the order the
// MED/HI interrupt levels would fire relative to LO (spec.md §5): one
// executor step, then a loader load if a segment is ready, then DDA ticks
// until the segment's downcount is drained.
func driveUntilCycleEnd(t *testing.T, c *Core, cycleEnds *int) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if err := c.TickExec(); err != nil {
			t.Fatalf("TickExec: %v", err)
		}
		if err := c.TickLoad(); err != nil {
			t.Fatalf("TickLoad: %v", err)
		}
		for j := 0; j < 10000; j++ {
			if c.TickDDA() {
				break
			}
		}
		if *cycleEnds > 0 {
			return
		}
	}
	t.Fatal("did not reach cycle end within iteration budget")
}

// S1 — single short hop: queuing one 10mm move at feed 1000 with a huge
// jerk limit must leave the toolhead at the target step count and fire
// cycle_end once the queue drains.
func TestCore_SingleShortHopReachesTarget(t *testing.T) {
	c := qt.New(t)
	core, pins, cycleEnds := newTestCore(t)

	err := core.QueueLine([]float32{10}, 1000, nil, nil, 0)
	c.Assert(err, qt.IsNil)

	driveUntilCycleEnd(t, core, cycleEnds)

	c.Assert(*cycleEnds, qt.Equals, 1)
	c.Assert(pins.steps[0], qt.Equals, int(10*80))
	c.Assert(core.Queue().Empty(), qt.IsTrue)

	pos := core.Position()
	diff := pos[0] - 10
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 0.01, qt.IsTrue)
}

// S2 — two colinear hops at full speed: queuing a second move while the
// first is still queued (not yet running) must not error, and both moves
// must eventually complete with exactly one cycle_end once the queue
// drains for good.
func TestCore_TwoColinearMovesBothComplete(t *testing.T) {
	c := qt.New(t)
	core, pins, cycleEnds := newTestCore(t)

	c.Assert(core.QueueLine([]float32{10}, 1000, nil, nil, 0), qt.IsNil)
	c.Assert(core.QueueLine([]float32{20}, 1000, nil, nil, 0), qt.IsNil)

	driveUntilCycleEnd(t, core, cycleEnds)

	c.Assert(*cycleEnds, qt.Equals, 1)
	c.Assert(pins.steps[0], qt.Equals, int(20*80))
	c.Assert(core.Queue().Empty(), qt.IsTrue)
}

// A queued command block must run its callback once the executor reaches
// it, and must not itself produce any step pulses.
func TestCore_QueueCommandRunsCallbackWithNoSteps(t *testing.T) {
	c := qt.New(t)
	core, pins, cycleEnds := newTestCore(t)

	ran := false
	c.Assert(core.QueueCommand(func() { ran = true }), qt.IsNil)

	driveUntilCycleEnd(t, core, cycleEnds)

	c.Assert(ran, qt.IsTrue)
	c.Assert(pins.steps[0], qt.Equals, 0)
	c.Assert(core.Queue().Empty(), qt.IsTrue)
}

// S5 / invariant 8 — requesting a feedhold mid-move must synthesize a
// deceleration tail without losing any commanded travel: exiting the hold
// once it's fully engaged lets the move finish at exactly the target it
// would have reached uninterrupted (spec.md §8 S5 "request hold at t =
// body_midpoint", invariant 8 "feedhold resume parity").
func TestCore_FeedholdMidMoveResumesToSameTarget(t *testing.T) {
	c := qt.New(t)
	core, pins, cycleEnds := newTestCore(t)

	c.Assert(core.QueueLine([]float32{100}, 2000, nil, nil, 0), qt.IsNil)

	// Run enough ticks to clear the head section and land the hold request
	// solidly inside the body.
	for i := 0; i < 50; i++ {
		c.Assert(core.TickExec(), qt.IsNil)
		c.Assert(core.TickLoad(), qt.IsNil)
		for j := 0; j < 10000; j++ {
			if core.TickDDA() {
				break
			}
		}
	}

	core.RequestFeedhold()

	// Drive the hold to completion, asking to resume every tick; this is a
	// no-op until the controller actually reaches its hold state.
	for i := 0; i < 20000 && core.InFeedhold(); i++ {
		c.Assert(core.TickExec(), qt.IsNil)
		c.Assert(core.TickLoad(), qt.IsNil)
		for j := 0; j < 10000; j++ {
			if core.TickDDA() {
				break
			}
		}
		core.ExitFeedhold()
	}
	c.Assert(core.InFeedhold(), qt.IsFalse)

	driveUntilCycleEnd(t, core, cycleEnds)

	c.Assert(*cycleEnds, qt.Equals, 1)
	c.Assert(pins.steps[0], qt.Equals, int(100*80))
	c.Assert(core.Queue().Empty(), qt.IsTrue)

	pos := core.Position()
	diff := pos[0] - 100
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 0.01, qt.IsTrue)
}

// Kill must stop motion immediately and leave the queue empty so a
// subsequent QueueLine is accepted on an otherwise-fresh queue.
func TestCore_KillFlushesQueueAndAcceptsNewWork(t *testing.T) {
	c := qt.New(t)
	core, _, _ := newTestCore(t)

	c.Assert(core.QueueLine([]float32{10}, 1000, nil, nil, 0), qt.IsNil)
	core.Kill(nil)
	c.Assert(core.Queue().Empty(), qt.IsTrue)

	c.Assert(core.QueueLine([]float32{5}, 1000, nil, nil, 0), qt.IsNil)
}
