package exec

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"tinygo.org/x/drivers/motion/block"
	"tinygo.org/x/drivers/motion/dda"
	"tinygo.org/x/drivers/motion/encoder"
	"tinygo.org/x/drivers/motion/kinematics"
)

type fakePins struct{ steps []int }

func (f *fakePins) SetStep(motor int, high bool) {
	if high {
		f.steps[motor]++
	}
}
func (f *fakePins) SetDirection(int, bool) {}
func (f *fakePins) Enable(int, bool)       {}

type recordingEvents struct {
	events []QualityEvent
}

func (r *recordingEvents) Event(e QualityEvent, detail string) {
	r.events = append(r.events, e)
}

func newTestRuntime(numAxes int) (*Runtime, *dda.Generator) {
	kin := kinematics.NewIdentity([]string{"x", "y", "z"}[:numAxes], 80, 300)
	mirror := encoder.NewMirror(numAxes)
	gen := dda.NewGenerator(numAxes, 50_000, 0, mirror, &fakePins{steps: make([]int, numAxes)})
	rt := NewRuntime(kin, gen, mirror, nil)
	return rt, gen
}

func driveToCompletion(t *testing.T, rt *Runtime, gen *dda.Generator) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		res, err := rt.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if res == ResultDone {
			return
		}
		// Drive the DDA until it reports the segment done, exactly as the
		// MED/HI priority levels would between two LO-priority calls.
		gen.Load()
		for {
			if gen.Tick() {
				break
			}
		}
	}
	t.Fatal("did not complete within iteration budget")
}

// S1 — a 10mm move at feed 1000 with a huge jerk limit completes and
// leaves the runtime at the target.
func TestRuntime_CompletesShortMove(t *testing.T) {
	c := qt.New(t)

	rt, gen := newTestRuntime(1)
	b := &block.Block{
		State:          block.StateRunning,
		MoveType:       block.MoveAline,
		Length:         10,
		UnitVector:     [block.MaxAxes]float32{1},
		EntryVelocity:  0,
		CruiseVelocity: 900,
		ExitVelocity:   0,
		HeadLength:     5,
		TailLength:     5,
	}

	c.Assert(rt.Start(b), qt.IsNil)
	driveToCompletion(t, rt, gen)

	pos := rt.Position()
	diff := pos[0] - 10
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 0.01, qt.IsTrue)
}

// S6 — a 0.001mm block's segment time falls under MIN_SEGMENT_TIME; the
// executor must report the quality event, snap position to target, and
// never drive the DDA for that section.
func TestRuntime_MinimumTimeMove(t *testing.T) {
	c := qt.New(t)

	events := &recordingEvents{}
	kin := kinematics.NewIdentity([]string{"x"}, 80, 300)
	mirror := encoder.NewMirror(1)
	gen := dda.NewGenerator(1, 50_000, 0, mirror, &fakePins{steps: make([]int, 1)})
	rt := NewRuntime(kin, gen, mirror, events)

	b := &block.Block{
		State:          block.StateRunning,
		MoveType:       block.MoveAline,
		Length:         0.001,
		UnitVector:     [block.MaxAxes]float32{1},
		CruiseVelocity: 1000,
		HeadLength:     0.0005,
		TailLength:     0.0005,
	}

	c.Assert(rt.Start(b), qt.IsNil)

	found := false
	for _, e := range events.events {
		if e == QualityMinimumTimeMove {
			found = true
		}
	}
	c.Assert(found, qt.IsTrue)

	pos := rt.Position()
	diff := pos[0] - 0.001
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 1e-6, qt.IsTrue)
}

func TestRuntime_RejectsZeroLengthAline(t *testing.T) {
	c := qt.New(t)
	rt, _ := newTestRuntime(1)
	b := &block.Block{MoveType: block.MoveAline, Length: 0}
	c.Assert(rt.Start(b), qt.Equals, ErrZeroLengthMove)
}
