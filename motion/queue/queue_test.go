package queue

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"tinygo.org/x/drivers/motion/block"
)

func TestQueue_EmptyInitially(t *testing.T) {
	c := qt.New(t)
	q := New(DefaultSize)
	c.Assert(q.Empty(), qt.IsTrue)
}

func TestQueue_ReserveCommitRoundTrip(t *testing.T) {
	c := qt.New(t)
	q := New(MinSize)

	b, idx, err := q.ReserveWrite()
	c.Assert(err, qt.IsNil)
	c.Assert(b.State, qt.Equals, block.StateLoading)

	b.Length = 10
	err = q.CommitWrite(idx, block.MoveAline)
	c.Assert(err, qt.IsNil)
	c.Assert(q.pool.At(idx).State, qt.Equals, block.StateQueued)

	run := q.PeekRun()
	c.Assert(run, qt.Not(qt.IsNil))
	c.Assert(run.Length, qt.Equals, float32(10))
}

func TestQueue_FullWhenAllSlotsLoaded(t *testing.T) {
	c := qt.New(t)
	q := New(MinSize)

	for i := 0; i < MinSize; i++ {
		_, idx, err := q.ReserveWrite()
		c.Assert(err, qt.IsNil)
		c.Assert(q.CommitWrite(idx, block.MoveAline), qt.IsNil)
	}

	_, _, err := q.ReserveWrite()
	c.Assert(err, qt.Equals, ErrFull)
}

func TestQueue_AdvanceRunDrainsToEmpty(t *testing.T) {
	c := qt.New(t)
	q := New(MinSize)

	_, idx, _ := q.ReserveWrite()
	c.Assert(q.CommitWrite(idx, block.MoveAline), qt.IsNil)
	c.Assert(q.BeginRun(), qt.IsNil)

	empty, err := q.AdvanceRun()
	c.Assert(err, qt.IsNil)
	c.Assert(empty, qt.IsTrue)
	c.Assert(q.Empty(), qt.IsTrue)
}

func TestQueue_IterateBackwardSkipsRunSlot(t *testing.T) {
	c := qt.New(t)
	q := New(MinSize)

	var indices []int
	for i := 0; i < 3; i++ {
		_, idx, _ := q.ReserveWrite()
		c.Assert(q.CommitWrite(idx, block.MoveAline), qt.IsNil)
		indices = append(indices, idx)
	}
	c.Assert(q.BeginRun(), qt.IsNil)

	back := q.IterateBackwardFrom(indices[2])
	for _, i := range back {
		c.Assert(i, qt.Not(qt.Equals), q.RunIndex())
	}
}
