// Package planner ties the planner queue (motion/queue), the junction
// solver (motion/junction) and the trapezoid planner (motion/trapezoid)
// together into the public queue_line operation of spec.md §6, and
// implements the back-propagation sweep of spec.md §4.3.
package planner

import (
	"errors"

	"github.com/orsinium-labs/tinymath"

	"tinygo.org/x/drivers/motion/axis"
	"tinygo.org/x/drivers/motion/block"
	"tinygo.org/x/drivers/motion/junction"
	"tinygo.org/x/drivers/motion/kinematics"
	"tinygo.org/x/drivers/motion/queue"
	"tinygo.org/x/drivers/motion/trapezoid"
)

// ErrQueueFull is returned when the planner queue has no empty slot.
var ErrQueueFull = queue.ErrFull

// StartupDelaySeconds is the short dwell injected ahead of the first block
// of a freshly-idle planner so the executor has primed segments before the
// first step (spec.md §5 "Timeouts").
const StartupDelaySeconds = 0.05

// Planner composes the queue, junction solver and trapezoid planner.
type Planner struct {
	q        *queue.Queue
	kin      kinematics.Kinematics
	axes     []axis.Config
	sys      axis.System
	position []float32

	lastCommittedIdx    int
	haveLast            bool
	pendingStartupDelay bool
}

// New builds a Planner bound to q, kin and the configured axes. position0
// is the machine's starting Cartesian position.
func New(q *queue.Queue, kin kinematics.Kinematics, axes []axis.Config, sys axis.System, position0 []float32) *Planner {
	pos := make([]float32, len(kin.AxisNames()))
	copy(pos, position0)
	return &Planner{
		q:        q,
		kin:      kin,
		axes:     axes,
		sys:      sys,
		position: pos,
	}
}

func (p *Planner) axisConfig(i int) (axis.Config, bool) {
	if i < 0 || i >= len(p.axes) {
		return axis.Config{}, false
	}
	return p.axes[i], true
}

// QueueLine is the planner's public input (spec.md §6): it accepts a
// Cartesian target, feed rate (units per minute), per-axis jerk overrides
// (nil for none), a work offset, and a minimum move time, and either
// queues a new block or rejects it with an input error.
func (p *Planner) QueueLine(target []float32, feedRate float32, jerkOverrides []float32, workOffset []float32, minTime float32) error {
	if err := p.kin.CheckLimits(target); err != nil {
		return err
	}

	n := len(p.position)
	delta := make([]float32, n)
	var lengthSq float32
	for i := 0; i < n; i++ {
		t := target[i]
		if i < len(workOffset) {
			t += workOffset[i]
		}
		delta[i] = t - p.position[i]
		lengthSq += delta[i] * delta[i]
	}
	length := tinymath.Sqrt(lengthSq)

	if length <= 0 {
		return ErrZeroLengthMove
	}

	unit := make([]float32, n)
	for i := 0; i < n; i++ {
		unit[i] = delta[i] / length
	}

	wasIdle := p.q.Empty()

	if wasIdle {
		// Startup delay (spec.md §5 "Timeouts"): inject a short dwell
		// ahead of the first block of a freshly-idle planner so the
		// executor/loader have primed segments before the first step.
		// Queued before the aline reservation below so it runs first;
		// errors here (e.g. a pool exhausted by a single slot) are not
		// fatal to the move itself, so the dwell is skipped rather than
		// rejecting the caller's QueueLine.
		if err := p.QueueDwell(StartupDelaySeconds); err == nil {
			p.pendingStartupDelay = true
		}
	}

	b, idx, err := p.q.ReserveWrite()
	if err != nil {
		return err
	}

	b.MoveType = block.MoveAline
	b.Length = length
	b.NumAxes = n
	for i := 0; i < n && i < block.MaxAxes; i++ {
		b.UnitVector[i] = unit[i]
		b.Target[i] = target[i]
		if i < len(workOffset) {
			b.WorkOffset[i] = workOffset[i]
		}
	}

	cruiseVmax, jerk := p.combineAxisLimits(unit, feedRate, jerkOverrides)
	b.CruiseVmax = cruiseVmax
	if wasIdle {
		// The machine is at rest: there is no running or queued block to
		// corner off of, so this block's entry velocity is pinned to zero
		// rather than the axis/feed-rate maximum (spec.md §4.2, "the first
		// block after an idle queue always enters at zero").
		b.EntryVmax = 0
	} else {
		b.EntryVmax = cruiseVmax
	}
	b.ExitVmax = cruiseVmax
	b.SetJerk(jerk)
	b.EntryVelocity = 0
	b.CruiseVelocity = cruiseVmax
	b.ExitVelocity = 0

	if err := p.q.CommitWrite(idx, block.MoveAline); err != nil {
		return err
	}

	if p.haveLast && !wasIdle {
		prev := p.q.At(p.lastCommittedIdx)
		jv := junction.Solve(prev.UnitVector[:n], b.UnitVector[:n], junction.Params{
			JunctionDeviation: p.junctionDeviation(unit),
			CentripetalAccel:  p.sys.JunctionAcceleration,
			PrevCruiseVmax:    prev.CruiseVmax,
			PrevExitVmax:      prev.ExitVmax,
			NextCruiseVmax:    b.CruiseVmax,
			NextEntryVmax:     b.EntryVmax,
		})
		b.EntryVmax = jv
		prev.ExitVmax = jv
	}

	p.lastCommittedIdx = idx
	p.haveLast = true
	copy(p.position, target)

	p.replanBackward(idx)

	return nil
}

// RestageBlock rewrites blk in place so it represents the remaining travel
// from pos to target, with a zero entry velocity, and re-plans its
// trapezoid profile against that shorter length (spec.md §4.6 "decel-end":
// "mark the buffered block for re-run from its current position (recompute
// its length from current position to original target), and pin its
// entry-vmax to zero"). Used by the feedhold controller to resume a hold
// with the part of a move the decel tail didn't cover.
func (p *Planner) RestageBlock(blk *block.Block, target, pos []float32) error {
	n := blk.NumAxes
	delta := make([]float32, n)
	var lengthSq float32
	for i := 0; i < n; i++ {
		delta[i] = target[i] - pos[i]
		lengthSq += delta[i] * delta[i]
	}
	length := tinymath.Sqrt(lengthSq)
	if length <= 0 {
		return nil
	}

	for i := 0; i < n; i++ {
		blk.UnitVector[i] = delta[i] / length
	}
	blk.Length = length
	blk.EntryVelocity = 0
	blk.EntryVmax = 0

	prof := trapezoid.PlanRecip(blk.Length, 0, blk.CruiseVmax, 0, blk.JerkRecip())
	if prof.Infeasible {
		blk.ExitVelocity = prof.CruiseVelocity
		prof = trapezoid.PlanRecip(blk.Length, 0, blk.CruiseVmax, blk.ExitVelocity, blk.JerkRecip())
	} else {
		blk.ExitVelocity = 0
	}
	blk.HeadLength = prof.HeadLength
	blk.BodyLength = prof.BodyLength
	blk.TailLength = prof.TailLength
	blk.CruiseVelocity = prof.CruiseVelocity

	copy(p.position, target)
	return nil
}

// QueueDwell inserts a dwell block (spec.md §3 MoveType "dwell", §4.5
// "Dwell") at the tail of the queue: a degenerate move with only a time
// component, no spatial footprint, bypassing the junction solver and
// trapezoid planner entirely (a dwell has no unit-vector to corner with).
func (p *Planner) QueueDwell(seconds float32) error {
	b, idx, err := p.q.ReserveWrite()
	if err != nil {
		return err
	}
	b.DwellSeconds = seconds
	return p.q.CommitWrite(idx, block.MoveDwell)
}

// QueueCommand inserts a command block (spec.md §3 MoveType "command", §9
// "Replacing function pointers on blocks") at the tail of the queue: fn runs
// on the executor once the block reaches the head of the queue, with no
// spatial or time component of its own. moveType selects which of the
// teacher's start/stop/end/command variants this is; all four share the
// same typed-callback dispatch at the executor.
func (p *Planner) QueueCommand(moveType block.MoveType, fn func()) error {
	b, idx, err := p.q.ReserveWrite()
	if err != nil {
		return err
	}
	b.CommandFn = fn
	return p.q.CommitWrite(idx, moveType)
}

// junctionDeviation picks the junction-deviation to use for a move along
// unit: the minimum across axes with nonzero participation, matching the
// conservative combination the teacher's register-struct code favors
// (clamp to the tightest constraint) over an unweighted average.
func (p *Planner) junctionDeviation(unit []float32) float32 {
	best := float32(-1)
	for i, u := range unit {
		if u == 0 {
			continue
		}
		cfg, ok := p.axisConfig(i)
		if !ok {
			continue
		}
		if best < 0 || cfg.JunctionDeviation < best {
			best = cfg.JunctionDeviation
		}
	}
	if best < 0 {
		return 0.01
	}
	return best
}

// combineAxisLimits derives the block's cruise-vmax (feed rate clamped by
// every participating axis's velocity/feedrate max) and a combined jerk
// limit (the harmonic combination: 1 / sum(|unit_i| / jerk_i), so the
// slowest-jerk axis along the direction of travel dominates).
func (p *Planner) combineAxisLimits(unit []float32, feedRate float32, jerkOverrides []float32) (cruiseVmax, jerk float32) {
	cruiseVmax = feedRate
	var jerkRecipSum float32
	haveJerk := false

	for i, u := range unit {
		au := u
		if au < 0 {
			au = -au
		}
		if au == 0 {
			continue
		}
		cfg, ok := p.axisConfig(i)
		if !ok {
			continue
		}
		limit := cfg.FeedRateMax
		if limit <= 0 {
			limit = cfg.VelocityMax
		}
		if limit > 0 {
			axisVel := cruiseVmax * au
			if axisVel > limit {
				cruiseVmax = limit / au
			}
		}

		axisJerk := cfg.JerkMax
		if i < len(jerkOverrides) && jerkOverrides[i] > 0 {
			axisJerk = jerkOverrides[i]
		}
		if axisJerk > 0 {
			jerkRecipSum += au / axisJerk
			haveJerk = true
		}
	}

	if haveJerk && jerkRecipSum > 0 {
		jerk = 1 / jerkRecipSum
	} else {
		jerk = 5_000_000_000
	}
	return cruiseVmax, jerk
}

// replanBackward re-plans every still-replannable block behind idx plus idx
// itself, so junction velocities and trapezoid profiles stay consistent
// with the newly inserted block (spec.md §4.3 "Back-propagation sweep").
// It runs two passes over the replannable run, oldest to newest:
// a backward cap (each block's exit velocity may not exceed the next
// block's entry-vmax, so it can actually decelerate into that junction),
// then a forward solve (each block's entry velocity is what the previous
// block actually achieves, and its trapezoid profile is planned against
// that real entry/exit pair).
func (p *Planner) replanBackward(idx int) {
	behind := p.q.IterateBackwardFrom(idx) // nearest-first: newest..oldest
	order := make([]int, 0, len(behind)+1)
	for i := len(behind) - 1; i >= 0; i-- {
		order = append(order, behind[i])
	}
	order = append(order, idx)

	for i := len(order) - 1; i >= 0; i-- {
		b := p.q.At(order[i])
		exitCap := b.ExitVmax
		if i+1 < len(order) {
			next := p.q.At(order[i+1])
			if next.EntryVmax < exitCap {
				exitCap = next.EntryVmax
			}
		}
		b.ExitVelocity = exitCap
	}

	var prevExit float32
	for i, oi := range order {
		b := p.q.At(oi)
		entry := b.EntryVmax
		if i > 0 && prevExit < entry {
			entry = prevExit
		}
		b.EntryVelocity = entry

		prof := trapezoid.PlanRecip(b.Length, b.EntryVelocity, b.CruiseVmax, b.ExitVelocity, b.JerkRecip())
		if prof.Infeasible {
			// Back off the exit velocity until it is reachable; spec.md
			// §4.3 step 4's "back-propagate by lowering exit-velocity."
			b.ExitVelocity = prof.CruiseVelocity
			prof = trapezoid.PlanRecip(b.Length, b.EntryVelocity, b.CruiseVmax, b.ExitVelocity, b.JerkRecip())
		}
		b.HeadLength = prof.HeadLength
		b.BodyLength = prof.BodyLength
		b.TailLength = prof.TailLength
		b.CruiseVelocity = prof.CruiseVelocity
		prevExit = b.ExitVelocity
	}
}

// LastBlock returns the most recently committed aline block (not counting
// any startup dwell queued ahead of it), for callers/tests that want to
// inspect the block QueueLine just built rather than whatever sits at the
// tail of the queue.
func (p *Planner) LastBlock() *block.Block {
	if !p.haveLast {
		return nil
	}
	return p.q.At(p.lastCommittedIdx)
}

// NeedsStartupDelay reports (and clears) whether a QueueLine call since the
// previous NeedsStartupDelay call queued a startup dwell ahead of its block.
func (p *Planner) NeedsStartupDelay() bool {
	v := p.pendingStartupDelay
	p.pendingStartupDelay = false
	return v
}

// ErrZeroLengthMove is the input error of spec.md §7 for a move whose
// target coincides with the current position.
var ErrZeroLengthMove = errors.New("planner: zero-length move")
