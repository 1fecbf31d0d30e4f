// Package motion wires the planner queue, junction solver, trapezoid
// planner, segment executor, step generator and feedhold controller
// together into a single Core, the top-level entry point of this module
// (spec.md §6). Core never spawns a goroutine or timer itself: the three
// priority levels of spec.md §5 are exposed as plain methods
// (TickDDA/TickLoad/TickExec) meant to be called from progressively
// lower-priority interrupt contexts, matching the teacher's own pattern of
// handing out machine-typed pins and letting the caller own scheduling
// (tmc2209.TMC2209, tmc5160.Driver).
package motion

import (
	"errors"

	"tinygo.org/x/drivers/motion/axis"
	"tinygo.org/x/drivers/motion/block"
	"tinygo.org/x/drivers/motion/dda"
	"tinygo.org/x/drivers/motion/encoder"
	"tinygo.org/x/drivers/motion/exec"
	"tinygo.org/x/drivers/motion/feedhold"
	"tinygo.org/x/drivers/motion/kinematics"
	"tinygo.org/x/drivers/motion/planner"
	"tinygo.org/x/drivers/motion/queue"
)

// ErrAssertionFailure wraps one of spec.md §7's fatal assertions, surfaced
// to the caller's AssertionFailure callback rather than panicking: a
// firmware core keeps trying to hold the machine still even after an
// internal consistency check fails.
var ErrAssertionFailure = errors.New("motion: assertion failure")

// Callbacks bundles the host-supplied reactions of spec.md §6: what to do
// when a cycle ends, when following error exceeds a safe bound, and when
// an internal assertion fails.
type Callbacks struct {
	CycleEnd                func()
	FollowingErrorException func(motor int, errorSteps int32)
	AssertionFailure        func(err error)
}

func (c Callbacks) cycleEnd() {
	if c.CycleEnd != nil {
		c.CycleEnd()
	}
}

func (c Callbacks) followingError(motor int, errSteps int32) {
	if c.FollowingErrorException != nil {
		c.FollowingErrorException(motor, errSteps)
	}
}

func (c Callbacks) assertionFailure(err error) {
	if c.AssertionFailure != nil {
		c.AssertionFailure(err)
	}
}

// FollowingErrorLimitSteps is the default bound past which
// FollowingErrorException fires (spec.md §7's quality/fault boundary,
// distinct from the dda package's much smaller nudge-correction
// threshold).
const FollowingErrorLimitSteps = 50

// Config bundles everything Core needs to build its subsystems.
type Config struct {
	Kinematics    kinematics.Kinematics
	Axes          []axis.Config
	System        axis.System
	Pins          dda.PinDriver
	QueueSize     int     // 0 -> queue.DefaultSize
	DDAFreqHz     float32 // step-generator tick frequency
	Substeps      uint32  // 0 -> dda.DefaultSubsteps
	StartPosition []float32
}

// Core is the motion-control core: the planner queue feeding the segment
// executor feeding the step generator, plus the feedhold controller that
// can intercept any of it.
type Core struct {
	q       *queue.Queue
	planner *planner.Planner
	rt      *exec.Runtime
	gen     *dda.Generator
	mirror  *encoder.Mirror
	hold    *feedhold.Controller
	kin     kinematics.Kinematics

	callbacks Callbacks

	running bool

	// decelContinueExit is the exit velocity of the block that just
	// finished under feedhold.StateDecelContinue, carried across to the
	// next block's OnNextBlockEntry call (spec.md §4.6 "decel-continue
	// across blocks") since that next block isn't known until the
	// previous one's completion is processed.
	decelContinueExit float32
}

// eventSink adapts Core's Callbacks to exec.EventSink without exposing
// exec's quality-event enum in Core's own public surface.
type eventSink struct{ core *Core }

func (s eventSink) Event(e exec.QualityEvent, detail string) {
	s.core.reportQuality(e, detail)
}

// reportQuality routes a non-fatal quality event to the package logger
// (spec.md §7: "quality events are counted and optionally reported").
func (c *Core) reportQuality(e exec.QualityEvent, detail string) {
	switch e {
	case exec.QualityMinimumTimeMove:
		logf("motion: minimum-time move collapsed %s", detail)
	case exec.QualityPlannerUnderrun:
		logf("motion: planner underrun %s", detail)
	}
}

// New builds a Core from cfg, wiring a fresh queue, planner, runtime,
// step generator and feedhold controller.
func New(cfg Config, cb Callbacks) *Core {
	qsize := cfg.QueueSize
	if qsize == 0 {
		qsize = queue.DefaultSize
	}
	q := queue.New(qsize)

	numMotors := len(cfg.Kinematics.AxisNames())
	mirror := encoder.NewMirror(numMotors)
	gen := dda.NewGenerator(numMotors, cfg.DDAFreqHz, cfg.Substeps, mirror, cfg.Pins)
	gen.PowerTimeoutSec = cfg.System.MotorPowerTimeoutSec

	c := &Core{
		q:         q,
		kin:       cfg.Kinematics,
		mirror:    mirror,
		gen:       gen,
		hold:      feedhold.New(),
		callbacks: cb,
	}
	c.rt = exec.NewRuntime(cfg.Kinematics, gen, mirror, eventSink{core: c})
	c.planner = planner.New(q, cfg.Kinematics, cfg.Axes, cfg.System, cfg.StartPosition)
	if cfg.StartPosition != nil {
		c.rt.SetPosition(cfg.StartPosition)
	}
	return c
}

// QueueLine is the planner's public input (spec.md §6): queue a Cartesian
// move at the given feed rate.
func (c *Core) QueueLine(target []float32, feedRate float32, jerkOverrides, workOffset []float32, minTime float32) error {
	return c.planner.QueueLine(target, feedRate, jerkOverrides, workOffset, minTime)
}

// QueueDwell queues an explicit dwell (e.g. a G4 pause) of the given
// duration in seconds, with no spatial component (spec.md §3 MoveType
// "dwell").
func (c *Core) QueueDwell(seconds float32) error {
	return c.planner.QueueDwell(seconds)
}

// QueueStart, QueueStop, QueueEnd and QueueCommand queue the remaining
// tagged-union block variants of spec.md §3/§9 ("line, dwell, start, stop,
// end, and command blocks"): each runs fn on the executor once it reaches
// the head of the queue, with no spatial or time component.
func (c *Core) QueueStart(fn func()) error   { return c.planner.QueueCommand(block.MoveStart, fn) }
func (c *Core) QueueStop(fn func()) error    { return c.planner.QueueCommand(block.MoveStop, fn) }
func (c *Core) QueueEnd(fn func()) error     { return c.planner.QueueCommand(block.MoveEnd, fn) }
func (c *Core) QueueCommand(fn func()) error { return c.planner.QueueCommand(block.MoveCommand, fn) }

// RequestFeedhold asks the feedhold controller to intercept motion at the
// next opportunity (spec.md §4.6 "Request at any time").
func (c *Core) RequestFeedhold() {
	c.hold.Request()
}

// ExitFeedhold resumes (or, with no runnable work, stops) after a hold.
func (c *Core) ExitFeedhold() bool {
	return c.hold.ExitHold(!c.q.Empty())
}

// InFeedhold reports whether the feedhold controller is intercepting
// motion.
func (c *Core) InFeedhold() bool {
	return c.hold.InHold()
}

// Kill immediately stops all motion and flushes the queue (spec.md §5
// "Cancellation"), reporting err through AssertionFailure so a kill
// triggered by an internal fault is visible to the host the same way a
// requested kill is.
func (c *Core) Kill(err error) {
	c.gen.Kill()
	c.q.Flush()
	c.running = false
	if err != nil {
		c.callbacks.assertionFailure(err)
	}
}

// TickExec is the LO-priority handler: it starts the next queued block
// when idle, steps the executor once, and services the feedhold state
// machine. Call it from the lowest-priority interrupt level (or a
// dedicated goroutine in tests).
func (c *Core) TickExec() error {
	if c.hold.InHold() && c.hold.State() != feedhold.StateSync {
		return c.tickFeedhold()
	}

	if !c.running {
		if !c.beginNextBlock() {
			return nil
		}
	}

	res, err := c.rt.Step()
	if err != nil {
		c.Kill(err)
		return err
	}

	if c.hold.State() == feedhold.StateSync {
		if blk := c.q.PeekRun(); blk != nil {
			c.hold.OnExecutorEntry(blk, c.segmentVelocitySnapshot(), c.rt.RemainingLength(), blk.Jerk)
		}
	}

	return c.completeIfDone(res)
}

// completeIfDone advances the queue past the running block once its
// runtime reports ResultDone. It is the single site that reacts to
// completion, whether or not a hold is in progress, so the feedhold state
// machine's decel-to-zero -> decel-end transition (spec.md §4.6) fires
// from the same tick that detects it instead of a branch the hold
// permanently bypasses.
func (c *Core) completeIfDone(res exec.Result) error {
	if res != exec.ResultDone {
		return nil
	}
	c.running = false

	switch c.hold.State() {
	case feedhold.StateDecelToZero:
		c.hold.OnExecutorStatOK()
		// Leave the block parked at the run pointer: decel-end still has
		// to recompute its remaining travel before it can be requeued.
		return nil
	case feedhold.StateDecelContinue:
		if blk := c.q.PeekRun(); blk != nil {
			c.decelContinueExit = blk.ExitVelocity
		}
	}

	done, advErr := c.q.AdvanceRun()
	if advErr != nil {
		c.Kill(advErr)
		return advErr
	}
	if done {
		c.callbacks.cycleEnd()
	}
	return nil
}

// segmentVelocitySnapshot approximates the executor's instantaneous
// segment velocity from its running block's cruise velocity; a full
// per-tick velocity readout would require exposing exec.Runtime
// internals the rest of the core has no other use for.
func (c *Core) segmentVelocitySnapshot() float32 {
	blk := c.q.PeekRun()
	if blk == nil {
		return 0
	}
	return blk.CruiseVelocity
}

func (c *Core) tickFeedhold() error {
	switch c.hold.State() {
	case feedhold.StateDecelContinue, feedhold.StateDecelToZero:
		return c.stepRunning()
	case feedhold.StateDecelEnd:
		if blk := c.q.PeekRun(); blk != nil {
			pos := c.rt.Position()
			restage := c.hold.OnDecelEnd(blk.Target[:blk.NumAxes], pos)
			c.restageBlock(blk, pos, restage)
		}
		return nil
	case feedhold.StatePending:
		c.hold.OnStepGeneratorIdle(c.gen.Ownership() == dda.OwnedByExec)
		return nil
	case feedhold.StateHold:
		return nil
	}
	return nil
}

// stepRunning steps the executor while a hold's decel tail is underway. In
// decel-continue, the tail spans a block boundary (spec.md §4.6
// "decel-continue across blocks"): once the previous block finishes, the
// freshly peeked block must have OnNextBlockEntry applied to it before
// rt.Start consumes its head/body/tail fields.
func (c *Core) stepRunning() error {
	if !c.running {
		blk := c.q.PeekRun()
		if blk == nil {
			return nil
		}
		if c.hold.State() == feedhold.StateDecelContinue {
			c.hold.OnNextBlockEntry(blk, c.decelContinueExit, blk.Length, blk.Jerk)
		}
		if !c.startBlock(blk) {
			return nil
		}
	}

	res, err := c.rt.Step()
	if err != nil {
		c.Kill(err)
		return err
	}
	return c.completeIfDone(res)
}

// restageBlock rewrites the block parked at the run pointer to cover the
// travel a hold's decel tail didn't reach (spec.md §4.6 "decel-end": mark
// the buffered block for re-run from its current position, pin its
// entry-vmax to zero), so the ordinary beginNextBlock/BeginRun flow picks
// it back up once the hold is exited. A restage with nothing left to cover
// just advances past the block instead.
func (c *Core) restageBlock(blk *block.Block, pos []float32, restage feedhold.RestagedBlock) {
	if restage.RemainingLength <= 0 {
		if _, advErr := c.q.AdvanceRun(); advErr != nil {
			c.Kill(advErr)
		}
		return
	}
	target := make([]float32, blk.NumAxes)
	copy(target, blk.Target[:blk.NumAxes])
	if err := c.planner.RestageBlock(blk, target, pos); err != nil {
		c.callbacks.assertionFailure(err)
		return
	}
	c.rt.SetPosition(pos)
	blk.State = block.StatePending
}

func (c *Core) beginNextBlock() bool {
	blk := c.q.PeekRun()
	if blk == nil {
		return false
	}
	return c.startBlock(blk)
}

// startBlock transitions blk from queued/pending to running: claims it via
// BeginRun and starts the executor on it.
func (c *Core) startBlock(blk *block.Block) bool {
	if err := c.q.BeginRun(); err != nil {
		c.Kill(err)
		return false
	}
	if err := c.rt.Start(blk); err != nil {
		c.callbacks.assertionFailure(err)
		if _, advErr := c.q.AdvanceRun(); advErr != nil {
			c.Kill(advErr)
		}
		return false
	}
	c.running = true
	return true
}

// TickLoad is the MED-priority handler (spec.md §4.5 "Load (C2)"): it
// transfers a prepared segment into the live DDA state when the loader
// owns the prep buffer.
func (c *Core) TickLoad() error {
	if c.gen.Ownership() != dda.OwnedByLoader {
		if c.running && c.gen.Ownership() == dda.OwnedByExec {
			// A block is running but the executor hasn't finished
			// preparing the next segment by the time the loader fires:
			// the real-time signal for a planner underrun (spec.md §7).
			c.reportQuality(exec.QualityPlannerUnderrun, "")
		}
		return nil
	}
	if err := c.gen.Load(); err != nil {
		c.callbacks.assertionFailure(err)
		return err
	}
	return nil
}

// TickDDA is the HI-priority handler (spec.md §4.5 "DDA tick (C1)"): it
// runs one step-generator tick and reports whether the loader should be
// invoked next. Following-error faults found via the encoder mirror are
// surfaced through FollowingErrorException from here since this is the
// only level that runs at the step rate.
func (c *Core) TickDDA() bool {
	done := c.gen.Tick()
	if done {
		for m := 0; m < c.mirror.NumMotors(); m++ {
			fe := c.rt.FollowingError(m)
			if fe > FollowingErrorLimitSteps || fe < -FollowingErrorLimitSteps {
				c.callbacks.followingError(m, fe)
			}
		}
	}
	return done
}

// Idle should be called periodically (e.g. once per TickExec when the
// queue is empty) to advance the motor-power timeout.
func (c *Core) Idle(dt float32) {
	c.gen.Idle(dt)
}

// Position returns the executor's current floating-point position.
func (c *Core) Position() []float32 {
	return c.rt.Position()
}

// Queue exposes the underlying planner queue for diagnostics/tests.
func (c *Core) Queue() *queue.Queue { return c.q }
