package block

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestBlock_ResetZeroesEverything(t *testing.T) {
	c := qt.New(t)
	b := &Block{State: StateRunning, Length: 42, Replannable: true}
	b.SetJerk(1000)
	b.Reset()
	c.Assert(b.State, qt.Equals, StateEmpty)
	c.Assert(b.Length, qt.Equals, float32(0))
	c.Assert(b.Replannable, qt.IsFalse)
	c.Assert(b.JerkRecip(), qt.Equals, float32(0))
}

func TestBlock_SetJerkCachesReciprocal(t *testing.T) {
	c := qt.New(t)
	b := &Block{}
	b.SetJerk(1000)
	c.Assert(b.Jerk, qt.Equals, float32(1000))

	diffRecip := b.JerkRecip() - 1.0/1000
	if diffRecip < 0 {
		diffRecip = -diffRecip
	}
	c.Assert(diffRecip < 1e-9, qt.IsTrue)
}

// Invariant 1 (spec.md §8): head+body+tail length must sum to the block's
// total length.
func TestBlock_LengthSumMatchesSections(t *testing.T) {
	c := qt.New(t)
	b := &Block{Length: 10, HeadLength: 3, BodyLength: 4, TailLength: 3}
	c.Assert(b.LengthSum(), qt.Equals, float32(10))
}

// Invariant 2 (spec.md §8): entry <= cruise >= exit, cruise <= cruise-vmax,
// all non-negative.
func TestBlock_ProfileValidRejectsEntryAboveCruise(t *testing.T) {
	c := qt.New(t)
	b := &Block{EntryVelocity: 500, CruiseVelocity: 400, CruiseVmax: 1000}
	c.Assert(b.ProfileValid(0.001), qt.IsFalse)
}

func TestBlock_ProfileValidAcceptsWellFormedProfile(t *testing.T) {
	c := qt.New(t)
	b := &Block{EntryVelocity: 0, CruiseVelocity: 900, ExitVelocity: 0, CruiseVmax: 1000}
	c.Assert(b.ProfileValid(0.001), qt.IsTrue)
}

func TestPool_ReturnsDistinctZeroedSlots(t *testing.T) {
	c := qt.New(t)
	pool := NewPool(4)
	c.Assert(pool.Len(), qt.Equals, 4)

	a := pool.At(0)
	a.Length = 99
	b := pool.At(1)
	c.Assert(b.Length, qt.Equals, float32(0))
}
