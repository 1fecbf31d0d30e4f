// Package exec implements the segment executor (spec.md §4.4, component
// C3): a periodic, interrupt-driven state machine that walks the active
// block's velocity curve one fixed-duration sub-segment at a time,
// producing prepared segments for the loader (motion/dda).
package exec

import (
	"errors"

	"github.com/orsinium-labs/tinymath"

	"tinygo.org/x/drivers/motion/bezier"
	"tinygo.org/x/drivers/motion/block"
	"tinygo.org/x/drivers/motion/dda"
	"tinygo.org/x/drivers/motion/encoder"
	"tinygo.org/x/drivers/motion/kinematics"
	"tinygo.org/x/drivers/motion/mathutil"
)

// NomSegmentUsec and MinSegmentUsec are spec.md §6's segment-partition
// constants.
const (
	NomSegmentUsec = 5000
	MinSegmentUsec = 2500
)

// NomSegmentTimeMin and MinSegmentTimeMin express those constants in
// minutes, the unit the planner and executor do all their time math in
// (spec.md §9 "Coordinate and unit conventions").
const (
	NomSegmentTimeMin = float32(NomSegmentUsec) / 60_000_000
	MinSegmentTimeMin = float32(MinSegmentUsec) / 60_000_000
)

// Section identifies which third of the velocity profile is active.
type Section uint8

const (
	SectionHead Section = iota
	SectionBody
	SectionTail
	SectionDwell
	SectionDone
)

// SectionState mirrors spec.md §3's section-state enum for the runtime
// singleton.
type SectionState uint8

const (
	StateNew SectionState = iota
	StateFirstHalf
	StateSecondHalf
	StateOff
)

// Result is returned by Step.
type Result uint8

const (
	ResultAgain Result = iota
	ResultDone
)

// ErrZeroLengthMove and ErrInfeasibleVelocity are the input errors of
// spec.md §7.
var (
	ErrZeroLengthMove     = errors.New("exec: zero-length move")
	ErrInfeasibleVelocity = errors.New("exec: infeasible velocity")
)

// QualityEvent is a non-fatal event counted/logged per spec.md §7.
type QualityEvent uint8

const (
	QualityMinimumTimeMove QualityEvent = iota
	QualityPlannerUnderrun
)

// EventSink receives quality events; nil-safe, matching the teacher's
// pattern of logging directly rather than requiring callers to wire a
// sink (tmc2209/tmc2209.go logs with the standard log package).
type EventSink interface {
	Event(e QualityEvent, detail string)
}

// Runtime is the segment executor's working state: a copy of the running
// block's profile, the current section/section-state, per-section
// waypoints, segment bookkeeping, and the five forward-difference
// accumulators (held inside the active bezier.Curve).
type Runtime struct {
	kin    kinematics.Kinematics
	mirror *encoder.Mirror
	gen    *dda.Generator

	numAxes   int
	numMotors int

	blk *block.Block

	section      Section
	sectionState SectionState
	curve        *bezier.Curve

	segments        int
	segmentCount    int
	segmentTime     float32
	segmentVelocity float32

	dwellSegmentCount int
	dwellSegmentTime  float32

	sectionStart []float32
	waypoint     []float32 // section-end snap target
	blockStart   []float32 // position when the running aline block began

	position       []float32
	target         []float32
	positionSteps  []int32
	targetSteps    []int32
	commandedSteps []int32
	followingError []int32
	encoderSteps   []int32 // Step's once-per-segment encoder snapshot buffer
	travelSteps    []int32 // Step/stepDwell's per-motor travel buffer

	events EventSink
}

// NewRuntime builds a Runtime bound to kin (the kinematics callback), gen
// (the step generator/loader it hands prepared segments to), and mirror
// (the encoder it samples for following error).
func NewRuntime(kin kinematics.Kinematics, gen *dda.Generator, mirror *encoder.Mirror, events EventSink) *Runtime {
	numAxes := len(kin.AxisNames())
	numMotors := mirror.NumMotors()
	return &Runtime{
		kin:            kin,
		mirror:         mirror,
		gen:            gen,
		numAxes:        numAxes,
		numMotors:      numMotors,
		section:        SectionDone,
		sectionState:   StateOff,
		sectionStart:   make([]float32, numAxes),
		waypoint:       make([]float32, numAxes),
		blockStart:     make([]float32, numAxes),
		position:       make([]float32, numAxes),
		target:         make([]float32, numAxes),
		positionSteps:  make([]int32, numMotors),
		targetSteps:    make([]int32, numMotors),
		commandedSteps: make([]int32, numMotors),
		followingError: make([]int32, numMotors),
		encoderSteps:   make([]int32, numMotors),
		travelSteps:    make([]int32, numMotors),
		events:         events,
	}
}

// Position returns the runtime's current floating-point position, the
// planner's own idea of where the toolhead is (spec.md §4.7: "a floating-
// point mirror that can drift").
func (r *Runtime) Position() []float32 {
	out := make([]float32, len(r.position))
	copy(out, r.position)
	return out
}

// RemainingLength returns how much of the running aline block's length is
// still ahead of the current position (spec.md §4.6: "the available length
// in the current block"), computed from the actual distance traveled since
// Start rather than from the block's static head/body/tail fields, which
// are never decremented as segments are consumed. Zero if no aline block is
// running.
func (r *Runtime) RemainingLength() float32 {
	if r.blk == nil || r.blk.MoveType != block.MoveAline {
		return 0
	}
	var sumSq float32
	for i := 0; i < r.numAxes; i++ {
		d := r.position[i] - r.blockStart[i]
		sumSq += d * d
	}
	traveled := tinymath.Sqrt(sumSq)
	remaining := r.blk.Length - traveled
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// SetPosition seeds the runtime's position (used at startup and after a
// feedhold re-stage).
func (r *Runtime) SetPosition(pos []float32) {
	copy(r.position, pos)
	steps, _ := r.kin.ToSteps(r.position)
	copy(r.positionSteps, steps)
	copy(r.targetSteps, steps)
	r.mirror.ResetAll(steps)
}

// Start begins executing b from the runtime's current position, dispatching
// on b.MoveType (spec.md §9 "Replacing function pointers on blocks": a
// tagged union over move-type with a small dispatch table at the
// executor's entry, rather than a function pointer carried on the block).
func (r *Runtime) Start(b *block.Block) error {
	r.blk = b
	switch b.MoveType {
	case block.MoveAline:
		if b.Length <= 0 {
			return ErrZeroLengthMove
		}
		copy(r.sectionStart, r.position)
		copy(r.blockStart, r.position)
		r.section = SectionHead
		r.sectionState = StateNew
		return r.enterSection()
	case block.MoveDwell:
		return r.enterDwell(b.DwellSeconds)
	case block.MoveStart, block.MoveStop, block.MoveEnd, block.MoveCommand:
		if b.CommandFn != nil {
			b.CommandFn()
		}
		r.section = SectionDone
		r.sectionState = StateOff
		return nil
	default:
		r.section = SectionDone
		r.sectionState = StateOff
		return nil
	}
}

// enterDwell computes the segment partition for a dwell (spec.md §4.5
// "Dwell"): a degenerate segment with only a time component, using the
// same downcount semantics as a motion segment but zero travel on every
// motor so the DDA tick never toggles a step pin.
func (r *Runtime) enterDwell(seconds float32) error {
	minutes := seconds / 60
	if minutes <= 0 {
		r.section = SectionDone
		r.sectionState = StateOff
		return nil
	}
	segments := int(ceilDiv(minutes, NomSegmentTimeMin))
	if segments < 1 {
		segments = 1
	}
	r.dwellSegmentCount = segments
	r.dwellSegmentTime = minutes / float32(segments)
	r.section = SectionDwell
	r.sectionState = StateNew
	return nil
}

func (r *Runtime) sectionLength() float32 {
	switch r.section {
	case SectionHead:
		return r.blk.HeadLength
	case SectionBody:
		return r.blk.BodyLength
	case SectionTail:
		return r.blk.TailLength
	}
	return 0
}

func (r *Runtime) sectionVelocities() (entry, exit float32) {
	switch r.section {
	case SectionHead:
		return r.blk.EntryVelocity, r.blk.CruiseVelocity
	case SectionBody:
		return r.blk.CruiseVelocity, r.blk.CruiseVelocity
	case SectionTail:
		return r.blk.CruiseVelocity, r.blk.ExitVelocity
	}
	return 0, 0
}

// enterSection computes the segment partition for the current section
// (spec.md §4.4 "Segment partition") and skips zero-length sections,
// advancing through head -> body -> tail -> done as needed.
func (r *Runtime) enterSection() error {
	for {
		length := r.sectionLength()
		if length <= 0 {
			if !r.advanceSection() {
				return nil
			}
			continue
		}

		entry, exit := r.sectionVelocities()
		avgVel := (entry + exit) / 2
		if avgVel <= 0 {
			avgVel = mathutil.Abs32(entry-exit) + 1
		}
		moveTime := length / avgVel

		segments := int(ceilDiv(moveTime, NomSegmentTimeMin))
		if segments < 1 {
			segments = 1
		}
		segmentTime := moveTime / float32(segments)

		if segmentTime < MinSegmentTimeMin {
			// Section collapses to a no-op: snap position straight to the
			// section waypoint and move on (spec.md §4.4, §8 S6).
			if r.events != nil {
				r.events.Event(QualityMinimumTimeMove, "")
			}
			r.snapToSectionEnd()
			if !r.advanceSection() {
				return nil
			}
			continue
		}

		r.segments = segments
		r.segmentCount = segments
		r.segmentTime = segmentTime

		for i := 0; i < r.numAxes; i++ {
			r.waypoint[i] = r.sectionStart[i] + unitAt(r.blk, i)*length
		}

		if r.section == SectionBody {
			r.curve = nil
			r.segmentVelocity = entry
		} else {
			r.curve = bezier.NewCurve(entry, exit, segments)
		}
		r.sectionState = StateFirstHalf
		return nil
	}
}

func (r *Runtime) snapToSectionEnd() {
	for i := 0; i < r.numAxes; i++ {
		r.position[i] = r.sectionStart[i] + unitAt(r.blk, i)*r.sectionLength()
	}
	for i := range r.sectionStart {
		r.sectionStart[i] = r.position[i]
	}
}

// advanceSection moves to the next section, or to Done; returns false when
// the move is complete (section == Done).
func (r *Runtime) advanceSection() bool {
	switch r.section {
	case SectionHead:
		r.section = SectionBody
	case SectionBody:
		r.section = SectionTail
	case SectionTail:
		r.section = SectionDone
	default:
		r.section = SectionDone
	}
	if r.section == SectionDone {
		r.sectionState = StateOff
		return false
	}
	copy(r.sectionStart, r.position)
	return true
}

func unitAt(b *block.Block, axis int) float32 {
	if axis < 0 || axis >= len(b.UnitVector) {
		return 0
	}
	return b.UnitVector[axis]
}

func ceilDiv(a, b float32) float32 {
	if b <= 0 {
		return 1
	}
	q := a / b
	iq := float32(int64(q))
	if iq < q {
		iq++
	}
	return iq
}

// Step produces exactly one sub-segment (spec.md §4.4 "Public contract"):
// it either prepares the next segment's step counts and returns
// ResultAgain, or reports ResultDone with the block finished. It never
// blocks; per-segment work uses only the buffers sized by NewRuntime, and
// the one allocation is the new bezier.Curve built when a head or tail
// section is entered.
func (r *Runtime) Step() (Result, error) {
	if r.section == SectionDone {
		return ResultDone, nil
	}
	if r.section == SectionDwell {
		return r.stepDwell()
	}

	var v float32
	if r.curve != nil {
		v = r.curve.Next()
	} else {
		v = r.segmentVelocity
	}

	segLength := v * r.segmentTime

	final := r.segmentCount == 1
	if final {
		copy(r.target, r.waypoint)
	} else {
		for i := 0; i < r.numAxes; i++ {
			r.target[i] = r.position[i] + unitAt(r.blk, i)*segLength
		}
	}

	copy(r.commandedSteps, r.positionSteps)
	copy(r.positionSteps, r.targetSteps)

	r.mirror.Snapshot(r.encoderSteps)
	for m := 0; m < r.numMotors; m++ {
		r.followingError[m] = r.encoderSteps[m] - r.commandedSteps[m]
	}

	newTargetSteps, err := r.kin.ToSteps(r.target)
	if err != nil {
		return ResultAgain, err
	}
	copy(r.targetSteps, newTargetSteps)

	for m := 0; m < r.numMotors; m++ {
		r.travelSteps[m] = r.targetSteps[m] - r.positionSteps[m]
	}

	prep, err := r.gen.PrepLine(r.travelSteps, r.followingError, r.segmentTime)
	if err != nil {
		return ResultAgain, err
	}
	r.gen.ReleasePrepToLoader(prep)

	copy(r.position, r.target)
	r.segmentCount--

	if r.segmentCount <= 0 {
		if !r.advanceSection() {
			return ResultDone, nil
		}
		return ResultAgain, r.enterSection()
	}

	return ResultAgain, nil
}

// stepDwell produces one dwell segment: zero travel on every motor (so the
// DDA emits no step pulses) but the same dda_ticks/downcount bookkeeping as
// a motion segment, per spec.md §4.5 "Dwell".
func (r *Runtime) stepDwell() (Result, error) {
	for m := 0; m < r.numMotors; m++ {
		r.travelSteps[m] = 0
	}
	prep, err := r.gen.PrepLine(r.travelSteps, r.followingError, r.dwellSegmentTime)
	if err != nil {
		return ResultAgain, err
	}
	r.gen.ReleasePrepToLoader(prep)

	r.dwellSegmentCount--
	if r.dwellSegmentCount <= 0 {
		r.section = SectionDone
		r.sectionState = StateOff
		return ResultDone, nil
	}
	return ResultAgain, nil
}

// Section returns the section currently executing.
func (r *Runtime) Section() Section { return r.section }

// FollowingError returns motor m's most recently sampled following error.
func (r *Runtime) FollowingError(motor int) int32 {
	if motor < 0 || motor >= len(r.followingError) {
		return 0
	}
	return r.followingError[motor]
}
