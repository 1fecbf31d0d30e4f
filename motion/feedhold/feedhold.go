// Package feedhold implements the feedhold controller (spec.md §4.6,
// component C4): intercept/pause/resume of motion, synthesizing a
// deceleration-to-zero tail without losing position.
package feedhold

import (
	"github.com/orsinium-labs/tinymath"

	"tinygo.org/x/drivers/motion/block"
	"tinygo.org/x/drivers/motion/trapezoid"
)

// State is the feedhold state machine's current state.
type State uint8

const (
	StateOff State = iota
	StateSync
	StateDecelContinue
	StateDecelToZero
	StateDecelEnd
	StatePending
	StateHold
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateSync:
		return "sync"
	case StateDecelContinue:
		return "decel-continue"
	case StateDecelToZero:
		return "decel-to-zero"
	case StateDecelEnd:
		return "decel-end"
	case StatePending:
		return "pending"
	case StateHold:
		return "hold"
	default:
		return "unknown"
	}
}

// lengthTolerance is the "within epsilon" slack used to decide whether the
// available length in the block equals the braking distance exactly
// (spec.md §4.6).
const lengthTolerance = 1e-4

// Controller is the feedhold state machine. It mutates the runtime block
// in place (clearing head/body, rewriting tail) rather than owning a
// runtime copy of its own, matching spec.md §4.6's description of the
// transitions as edits to the currently-running block's profile.
type Controller struct {
	state State
	jerk  float32
}

// New returns a Controller in the off state.
func New() *Controller {
	return &Controller{state: StateOff}
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Request may be called at any time (spec.md §4.6 "Request at any time"):
// from the off state it moves to sync; while a hold is already in progress
// it changes nothing.
func (c *Controller) Request() {
	if c.state == StateOff {
		c.state = StateSync
	}
}

// RemainingLength is how much of the running block is left ahead of the
// position the hold is serviced at. motion.Core passes
// exec.Runtime.RemainingLength: the block's Length minus the straight-line
// distance traveled since the block started.
type RemainingLength = float32

// OnExecutorEntry applies the "On next executor entry in sync" transition
// of spec.md §4.6: it snapshots the current segment velocity as the new
// entry/cruise velocity of the running block, clears head and body, and
// recomputes a tail using the braking-distance formula, choosing between
// decel-to-zero and decel-continue based on how much length remains.
//
// segmentVelocity is the executor's current segment_velocity at the
// instant the hold is serviced; remaining is the block length still ahead
// of the current position; jerk is the block's jerk limit.
func (c *Controller) OnExecutorEntry(blk *block.Block, segmentVelocity, remaining, jerk float32) {
	if c.state != StateSync {
		return
	}
	c.jerk = jerk

	blk.EntryVelocity = segmentVelocity
	blk.CruiseVelocity = segmentVelocity
	blk.HeadLength = 0
	blk.BodyLength = 0

	brakingDistance := trapezoid.Distance(segmentVelocity, 0, jerk)

	diff := remaining - brakingDistance
	switch {
	case diff >= -lengthTolerance && diff <= lengthTolerance:
		blk.TailLength = remaining
		blk.ExitVelocity = 0
		c.state = StateDecelToZero
	case diff < -lengthTolerance:
		// Not enough room: decelerate as much as fits and carry the
		// remainder into the next block (decel-continue).
		blk.TailLength = remaining
		blk.ExitVelocity = velocityAchievableOver(remaining, segmentVelocity, jerk)
		c.state = StateDecelContinue
	default:
		// Plenty of room: still decelerate fully to zero within this
		// block, using exactly the braking distance.
		blk.TailLength = brakingDistance
		blk.ExitVelocity = 0
		c.state = StateDecelToZero
	}
}

// velocityAchievableOver returns the exit velocity reachable when
// decelerating from entry over the given available distance under jerk —
// the inverse of trapezoid.Distance, solved by bisection since there is no
// closed form (mirrors trapezoid.Plan's own degraded-case solver).
func velocityAchievableOver(distance, entry, jerk float32) float32 {
	if distance <= 0 {
		return entry
	}
	lo, hi := float32(0), entry
	for i := 0; i < 20; i++ {
		mid := (lo + hi) / 2
		d := trapezoid.Distance(entry, mid, jerk)
		if d > distance {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// OnNextBlockEntry applies the "decel-continue across blocks" transition:
// while state == decel-continue, a freshly entered block inherits the
// previous exit velocity as its entry and becomes a tail-only move whose
// exit is again computed from braking distance.
func (c *Controller) OnNextBlockEntry(blk *block.Block, prevExit, remaining, jerk float32) {
	if c.state != StateDecelContinue {
		return
	}
	blk.EntryVelocity = prevExit
	blk.CruiseVelocity = prevExit
	blk.HeadLength = 0
	blk.BodyLength = 0

	brakingDistance := trapezoid.Distance(prevExit, 0, jerk)
	if remaining >= brakingDistance {
		blk.TailLength = brakingDistance
		blk.ExitVelocity = 0
		c.state = StateDecelToZero
	} else {
		blk.TailLength = remaining
		blk.ExitVelocity = velocityAchievableOver(remaining, prevExit, jerk)
	}
}

// OnExecutorStatOK applies "decel-to-zero + STAT_OK from executor" ->
// decel-end.
func (c *Controller) OnExecutorStatOK() {
	if c.state == StateDecelToZero {
		c.state = StateDecelEnd
	}
}

// RestagedBlock describes the buffered block re-run from the stopped
// position, computed by OnDecelEnd.
type RestagedBlock struct {
	RemainingLength float32
	EntryVmaxZero   bool
}

// OnDecelEnd applies the decel-end transition: invalidate the runtime
// block, mark the buffered block for re-run from the current position
// (recomputing its length from current position to original target), pin
// its entry-vmax to zero, and move to pending.
func (c *Controller) OnDecelEnd(originalTarget, stoppedPosition []float32) RestagedBlock {
	if c.state != StateDecelEnd {
		return RestagedBlock{}
	}
	var sumSq float32
	for i := range originalTarget {
		if i >= len(stoppedPosition) {
			break
		}
		d := originalTarget[i] - stoppedPosition[i]
		sumSq += d * d
	}
	c.state = StatePending
	return RestagedBlock{RemainingLength: tinymath.Sqrt(sumSq), EntryVmaxZero: true}
}

// OnStepGeneratorIdle applies "pending: return no-op from executor until
// step generator reports idle; then go to hold."
func (c *Controller) OnStepGeneratorIdle(idle bool) {
	if c.state == StatePending && idle {
		c.state = StateHold
	}
}

// ExitHold applies "Exit hold (external request)": if hasRunnableWork,
// the caller should resume execution (return to off so the executor runs
// normally); otherwise the caller should stop. Returns true if motion
// should resume.
func (c *Controller) ExitHold(hasRunnableWork bool) bool {
	if c.state != StateHold {
		return false
	}
	if hasRunnableWork {
		c.state = StateOff
		return true
	}
	c.state = StateOff
	return false
}

// InHold reports whether the controller is actively intercepting motion
// (anything other than off).
func (c *Controller) InHold() bool { return c.state != StateOff }
