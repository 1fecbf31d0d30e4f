package planner

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"tinygo.org/x/drivers/motion/axis"
	"tinygo.org/x/drivers/motion/block"
	"tinygo.org/x/drivers/motion/kinematics"
	"tinygo.org/x/drivers/motion/queue"
)

func newTestPlanner(n int) *Planner {
	q := queue.New(queue.MinSize)
	kin := kinematics.NewIdentity([]string{"x", "y", "z"}[:n], 80, 300)
	axes := make([]axis.Config, n)
	for i := range axes {
		axes[i] = axis.NewDefaultConfig([]string{"x", "y", "z"}[i])
	}
	sys := axis.NewDefaultSystem()
	pos := make([]float32, n)
	return New(q, kin, axes, sys, pos)
}

func TestPlanner_QueueLineFirstMoveStartsFromRest(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(1)

	err := p.QueueLine([]float32{10}, 1000, nil, nil, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(p.NeedsStartupDelay(), qt.IsTrue)

	// The startup dwell injected ahead of this move sits at the tail;
	// LastBlock is the aline QueueLine actually built.
	dwell := p.q.At(p.q.Tail())
	c.Assert(dwell.MoveType, qt.Equals, block.MoveDwell)

	b := p.LastBlock()
	c.Assert(b.EntryVelocity, qt.Equals, float32(0))
	c.Assert(b.Length, qt.Equals, float32(10))
	c.Assert(b.ProfileValid(0.01), qt.IsTrue)
}

func TestPlanner_QueueLineRejectsZeroLength(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(1)
	err := p.QueueLine([]float32{0}, 1000, nil, nil, 0)
	c.Assert(err, qt.Equals, ErrZeroLengthMove)
}

func TestPlanner_QueueLineRejectsOutOfTravel(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(1)
	err := p.QueueLine([]float32{10000}, 1000, nil, nil, 0)
	c.Assert(err, qt.Equals, kinematics.ErrOutOfTravel)
}

// Two colinear moves should leave a nonzero junction velocity between them,
// so the second move's NeedsStartupDelay is false (queue wasn't idle) and
// its predecessor's exit velocity is raised above zero by the back-replan
// sweep.
func TestPlanner_QueueLineColinearMovesShareJunctionVelocity(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(1)

	c.Assert(p.QueueLine([]float32{50}, 3000, nil, nil, 0), qt.IsNil)
	first := p.NeedsStartupDelay()
	c.Assert(first, qt.IsTrue)
	firstBlock := p.LastBlock()

	c.Assert(p.QueueLine([]float32{100}, 3000, nil, nil, 0), qt.IsNil)
	c.Assert(p.NeedsStartupDelay(), qt.IsFalse)

	c.Assert(firstBlock.ExitVelocity > 0, qt.IsTrue)
}

func TestPlanner_QueueLineMultiAxisCombinesJerkHarmonically(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(2)
	p.axes[0].JerkMax = 1000
	p.axes[1].JerkMax = 2000

	err := p.QueueLine([]float32{3, 4}, 600, nil, nil, 0)
	c.Assert(err, qt.IsNil)

	b := p.LastBlock()
	c.Assert(b.Length, qt.Equals, float32(5))
	// unit = (0.6, 0.8); combined jerk = 1/(0.6/1000 + 0.8/2000)
	want := float32(1) / (0.6/1000 + 0.8/2000)
	diff := b.Jerk - want
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 1, qt.IsTrue)
}

func TestPlanner_CombineAxisLimitsClampsToSlowestAxis(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(2)
	p.axes[0].FeedRateMax = 1000
	p.axes[1].FeedRateMax = 500

	unit := []float32{0.6, 0.8}
	cruise, _ := p.combineAxisLimits(unit, 10000, nil)
	// axis 1 allows at most 500/0.8 = 625 units/min of resultant speed.
	c.Assert(cruise <= 625.01, qt.IsTrue)
}

func TestPlanner_QueueCommandCarriesFnAndMoveType(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(1)

	ran := false
	err := p.QueueCommand(block.MoveStart, func() { ran = true })
	c.Assert(err, qt.IsNil)

	b := p.q.At(p.q.Tail())
	c.Assert(b.MoveType, qt.Equals, block.MoveStart)
	b.CommandFn()
	c.Assert(ran, qt.IsTrue)
}

func TestPlanner_BlockInvariantsHoldAfterQueueLine(t *testing.T) {
	c := qt.New(t)
	p := newTestPlanner(1)
	c.Assert(p.QueueLine([]float32{20}, 2000, nil, nil, 0), qt.IsNil)

	b := p.LastBlock()
	sum := b.LengthSum()
	diff := sum - b.Length
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 0.01, qt.IsTrue)
}
