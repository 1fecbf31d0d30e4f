// Package dda implements the step generator and its loader (spec.md §4.5,
// components C1+C2): a Bresenham-style digital differential analyzer over
// substep-scaled counters, driven by a three-state ownership tag between
// the executor, the loader, and the DDA tick itself.
package dda

import (
	"errors"

	"github.com/orsinium-labs/tinymath"

	"tinygo.org/x/drivers/motion/encoder"
	"tinygo.org/x/drivers/motion/mathutil"
)

// Tunable constants that bind interface compatibility (spec.md §6).
const (
	// DefaultSubsteps is the substep accumulator resolution. The teacher's
	// sibling tmc5160 package already runs a 24-bit VMAX/TSTEP ramp
	// generator at similar internal precision; 32 matches the smaller of
	// spec.md §6's two named profiles (32 or 100000).
	DefaultSubsteps = 32

	NomSegmentUsec = 5000
	MinSegmentUsec = 2500

	// CorrectionFactor, CorrectionHoldoffSegments, MaxCorrectionSteps and
	// CorrectionThresholdSteps are the following-error "nudge" defaults of
	// spec.md §6.
	CorrectionFactor          = 0.3
	CorrectionHoldoffSegments = 5
	MaxCorrectionSteps        = 10
	CorrectionThresholdSteps  = 2
)

// MinSegmentTimeMin is MIN_SEGMENT_USEC expressed in minutes, matching
// spec.md §6's MIN_SEGMENT_TIME = MIN_SEGMENT_USEC / 60e6.
const MinSegmentTimeMin = float32(MinSegmentUsec) / 60_000_000

var (
	// ErrSegmentTimeInvalid is the fatal "segment-time-is-inf-or-nan"
	// assertion of spec.md §7.
	ErrSegmentTimeInvalid = errors.New("dda: segment time is inf or nan")
	// ErrPrepNotReady is the fatal "prep-not-ready" assertion of spec.md
	// §7: the loader fired but the prep buffer wasn't owned by the
	// loader.
	ErrPrepNotReady = errors.New("dda: prep buffer not owned by loader")
)

// Ownership is the three-state prep-buffer ownership tag of spec.md §4.5.
type Ownership uint8

const (
	OwnedByExec Ownership = iota
	OwnedByLoader
	OwnedByDDA
)

// PinDriver is the hardware boundary: setting step/direction/enable pins.
// The tinygo-tagged implementation in this package binds it to
// machine.Pin; tests use a fake.
type PinDriver interface {
	SetStep(motor int, high bool)
	SetDirection(motor int, forward bool)
	Enable(motor int, enabled bool)
}

// MotorPrep is one motor's prepared segment, computed by PrepLine.
type MotorPrep struct {
	Direction        bool // true = "forward" per polarity-adjusted sign
	StepSign         int32
	SubstepIncrement uint32
	CorrectedSteps   int32 // running total of nudge correction applied, as of this segment
}

// Prep is the output of PrepLine: one segment's worth of per-motor
// parameters plus the DDA tick/span bookkeeping (spec.md §4.5).
type Prep struct {
	DDATicks              uint32
	Span                  uint32 // dda_ticks * substeps
	Motors                []MotorPrep
	AccumulatorCorrection bool
	CorrectionRatio       float32
	IsDwell               bool
}

type motorState struct {
	accumulator    int32
	increment      uint32
	direction      bool
	prevDirection  bool
	stepSign       int32
	enabled        bool
	polarity       bool
	idleTicks      float32
	holdoffCounter int
	correctedSteps int32 // running total of nudge correction applied, spec.md §4.5
}

// Generator is the DDA + loader + prep state for a fixed set of motors.
type Generator struct {
	freqHz   float32
	substeps uint32
	motors   []motorState
	mirror   *encoder.Mirror
	pins     PinDriver

	ownership Ownership
	pending   *Prep
	live      *Prep

	// prepBufs is the pair of Prep buffers PrepLine cycles between, so the
	// LO-priority executor path never allocates a Prep or its Motors slice
	// on the hot path (spec.md §4.4/§5). At most one buffer is ever
	// pending and one live at a time; PrepLine picks whichever of the two
	// is currently neither.
	prepBufs [2]Prep

	span      uint32
	downcount uint32

	prevSegmentTime float32

	// PowerTimeoutSec is the motor-power timeout of spec.md §5, in seconds:
	// Idle de-energizes an enabled motor whose increment is zero once it has
	// been idle this long. The generator tracks no per-motor power mode, so
	// the timeout applies to every motor, not only to when-moving ones.
	PowerTimeoutSec float32
}

// NewGenerator builds a Generator for numMotors motors ticking at freqHz,
// with a substep resolution of substeps (pass 0 for DefaultSubsteps).
func NewGenerator(numMotors int, freqHz float32, substeps uint32, mirror *encoder.Mirror, pins PinDriver) *Generator {
	if substeps == 0 {
		substeps = DefaultSubsteps
	}
	motors := make([]motorState, numMotors)
	for i := range motors {
		motors[i].direction = true
		motors[i].prevDirection = true
	}
	g := &Generator{
		freqHz:    freqHz,
		substeps:  substeps,
		motors:    motors,
		mirror:    mirror,
		pins:      pins,
		ownership: OwnedByExec,
	}
	g.prepBufs[0].Motors = make([]MotorPrep, numMotors)
	g.prepBufs[1].Motors = make([]MotorPrep, numMotors)
	return g
}

// SetPolarity configures motor m's direction-pin polarity (0 or 1).
func (g *Generator) SetPolarity(motor int, polarity uint8) {
	if motor < 0 || motor >= len(g.motors) {
		return
	}
	g.motors[motor].polarity = polarity != 0
}

// PrepLine computes a Prep from travel steps, following error, and segment
// time (minutes), per spec.md §4.5. The caller (the executor) owns the
// buffer it builds into until it hands it to Load.
func (g *Generator) PrepLine(travelSteps []int32, followingError []int32, segmentTimeMin float32) (*Prep, error) {
	if segmentTimeMin != segmentTimeMin || isInf(segmentTimeMin) {
		return nil, ErrSegmentTimeInvalid
	}

	ddaTicks := uint32(segmentTimeMin * 60 * g.freqHz)
	if ddaTicks == 0 {
		ddaTicks = 1
	}
	span := ddaTicks * g.substeps

	// Pick whichever of the two prep buffers isn't currently pending or
	// live. Callers must release and load one prep before computing the
	// next; that's the only way both buffers are ever outstanding at
	// once.
	prep := &g.prepBufs[0]
	if prep == g.pending || prep == g.live {
		prep = &g.prepBufs[1]
	}
	prep.DDATicks = ddaTicks
	prep.Span = span
	prep.AccumulatorCorrection = false
	prep.CorrectionRatio = 0

	const epsilon = 1e-9
	if g.prevSegmentTime > 0 {
		delta := segmentTimeMin - g.prevSegmentTime
		if delta < 0 {
			delta = -delta
		}
		if delta > epsilon {
			prep.AccumulatorCorrection = true
			prep.CorrectionRatio = segmentTimeMin / g.prevSegmentTime
		}
	}
	g.prevSegmentTime = segmentTimeMin

	for m := range g.motors {
		ms := &g.motors[m]
		travel := int32(0)
		if m < len(travelSteps) {
			travel = travelSteps[m]
		}
		ferr := int32(0)
		if m < len(followingError) {
			ferr = followingError[m]
		}

		if ms.holdoffCounter > 0 {
			ms.holdoffCounter--
		}
		if absI32(ferr) > CorrectionThresholdSteps && ms.holdoffCounter == 0 {
			correction := float32(ferr) * CorrectionFactor
			maxC := float32(absI32(travel))
			if maxC > MaxCorrectionSteps {
				maxC = MaxCorrectionSteps
			}
			if correction > maxC {
				correction = maxC
			}
			if correction < -maxC {
				correction = -maxC
			}
			travel -= int32(correction)
			ms.correctedSteps += int32(correction)
			ms.holdoffCounter = CorrectionHoldoffSegments
		}

		sign := int32(mathutil.Sign32(float32(travel)))
		direction := travel >= 0
		if ms.polarity {
			direction = !direction
		}

		prep.Motors[m].Direction = direction
		prep.Motors[m].StepSign = sign
		prep.Motors[m].SubstepIncrement = uint32(tinymath.Round(tinymath.Abs(float32(travel)) * float32(g.substeps)))
		prep.Motors[m].CorrectedSteps = ms.correctedSteps
	}

	return prep, nil
}

// ReleasePrepToLoader marks prep as owned by the loader (the executor
// relinquishing it after PrepLine fills it in, per spec.md §4.5's
// ownership rule: "Each phase relinquishes on commit").
func (g *Generator) ReleasePrepToLoader(prep *Prep) {
	g.pending = prep
	g.ownership = OwnedByLoader
}

// Load fires at the end of the current segment's downcount (spec.md §4.5
// "Load (C2)"). It transfers the prepared fields into the live DDA state.
func (g *Generator) Load() error {
	if g.ownership != OwnedByLoader || g.pending == nil {
		return ErrPrepNotReady
	}
	prep := g.pending

	for m := range g.motors {
		ms := &g.motors[m]
		if m >= len(prep.Motors) {
			continue
		}
		mp := prep.Motors[m]

		if prep.AccumulatorCorrection && prep.CorrectionRatio > 0 {
			ms.accumulator = int32(float32(ms.accumulator) * prep.CorrectionRatio)
		}

		ms.prevDirection = ms.direction
		ms.direction = mp.Direction
		ms.increment = mp.SubstepIncrement
		ms.stepSign = mp.StepSign

		if ms.direction != ms.prevDirection {
			// Flip the accumulator about its midpoint so the next step
			// fires at the same phase (spec.md §4.5 "Load (C2)").
			ms.accumulator = -(int32(g.span) + ms.accumulator)
		}

		if mp.SubstepIncrement != 0 {
			ms.enabled = true
			ms.idleTicks = 0
			g.pins.Enable(m, true)
			g.pins.SetDirection(m, ms.direction)
		}
	}

	g.span = prep.Span
	g.downcount = prep.DDATicks
	g.live = prep
	g.pending = nil
	g.ownership = OwnedByDDA
	return nil
}

// Tick runs one high-rate DDA tick (spec.md §4.5 "DDA tick (C1)"). It
// returns true when the segment's downcount reaches zero (loader should be
// requested).
func (g *Generator) Tick() bool {
	for m := range g.motors {
		ms := &g.motors[m]
		if ms.increment == 0 {
			continue
		}
		ms.accumulator += int32(ms.increment)
		if ms.accumulator > 0 {
			g.pins.SetStep(m, true)
			ms.accumulator -= int32(g.span)
			if g.mirror != nil {
				g.mirror.Step(m, ms.stepSign)
			}
			g.pins.SetStep(m, false)
		}
	}

	if g.downcount == 0 {
		return true
	}
	g.downcount--
	if g.downcount == 0 {
		g.ownership = OwnedByExec
		return true
	}
	return false
}

// Ownership returns the current prep-buffer ownership state.
func (g *Generator) Ownership() Ownership { return g.ownership }

// CorrectedSteps returns motor m's running total of following-error nudge
// correction applied across every segment so far (spec.md §4.5).
func (g *Generator) CorrectedSteps(motor int) int32 {
	if motor < 0 || motor >= len(g.motors) {
		return 0
	}
	return g.motors[motor].correctedSteps
}

// Idle advances per-motor idle timers by dt seconds and de-energizes any
// motor that has been idle past PowerTimeoutSec while its increment is
// zero — the motor-power timeout of spec.md §5.
func (g *Generator) Idle(dt float32) {
	if g.PowerTimeoutSec <= 0 {
		return
	}
	for m := range g.motors {
		ms := &g.motors[m]
		if ms.increment != 0 || !ms.enabled {
			continue
		}
		ms.idleTicks += dt
		if ms.idleTicks >= g.PowerTimeoutSec {
			ms.enabled = false
			g.pins.Enable(m, false)
		}
	}
}

// Kill forces the DDA off immediately (spec.md §5 "Cancellation").
func (g *Generator) Kill() {
	for m := range g.motors {
		g.motors[m].increment = 0
		g.motors[m].enabled = false
		g.pins.Enable(m, false)
	}
	g.downcount = 0
	g.pending = nil
	g.live = nil
	g.ownership = OwnedByExec
}

// absI32 wraps tinymath.Abs for the int32 step/error counts PrepLine works
// with; every value passing through here is a small step count, well
// within float32's exact-integer range.
func absI32(v int32) int32 {
	return int32(tinymath.Abs(float32(v)))
}

func isInf(v float32) bool {
	return v > 3.4e38 || v < -3.4e38
}
