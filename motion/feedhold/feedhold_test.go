package feedhold

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"tinygo.org/x/drivers/motion/block"
	"tinygo.org/x/drivers/motion/trapezoid"
)

// S5 — feedhold requested mid-body of a 100mm block at cruise 6000: after
// decel, the tail length must equal the braking distance for
// (cruise, 0) when there's ample room.
func TestController_HoldDuringBody(t *testing.T) {
	c := qt.New(t)

	ctrl := New()
	ctrl.Request()
	c.Assert(ctrl.State(), qt.Equals, StateSync)

	jerk := float32(5_000_000_000)
	cruise := float32(6000)
	remaining := float32(60) // plenty of room ahead of the hold point

	blk := &block.Block{CruiseVelocity: cruise}
	ctrl.OnExecutorEntry(blk, cruise, remaining, jerk)

	c.Assert(ctrl.State(), qt.Equals, StateDecelToZero)
	c.Assert(blk.ExitVelocity, qt.Equals, float32(0))

	expectedBraking := trapezoid.Distance(cruise, 0, jerk)
	diff := blk.TailLength - expectedBraking
	if diff < 0 {
		diff = -diff
	}
	c.Assert(diff < 0.01, qt.IsTrue)
}

func TestController_HoldWithInsufficientRoomGoesDecelContinue(t *testing.T) {
	c := qt.New(t)

	ctrl := New()
	ctrl.Request()

	jerk := float32(5_000_000_000)
	cruise := float32(6000)
	brakingDistance := trapezoid.Distance(cruise, 0, jerk)
	remaining := brakingDistance / 4

	blk := &block.Block{CruiseVelocity: cruise}
	ctrl.OnExecutorEntry(blk, cruise, remaining, jerk)

	c.Assert(ctrl.State(), qt.Equals, StateDecelContinue)
	c.Assert(blk.ExitVelocity > 0, qt.IsTrue)
	c.Assert(blk.ExitVelocity < cruise, qt.IsTrue)
}

func TestController_FullLifecycleReachesHold(t *testing.T) {
	c := qt.New(t)

	ctrl := New()
	ctrl.Request()

	jerk := float32(5_000_000_000)
	blk := &block.Block{CruiseVelocity: 1000}
	ctrl.OnExecutorEntry(blk, 1000, 100, jerk)
	c.Assert(ctrl.State(), qt.Equals, StateDecelToZero)

	ctrl.OnExecutorStatOK()
	c.Assert(ctrl.State(), qt.Equals, StateDecelEnd)

	restage := ctrl.OnDecelEnd([]float32{50, 0, 0}, []float32{30, 0, 0})
	c.Assert(ctrl.State(), qt.Equals, StatePending)
	c.Assert(restage.RemainingLength, qt.Equals, float32(20))

	ctrl.OnStepGeneratorIdle(false)
	c.Assert(ctrl.State(), qt.Equals, StatePending)
	ctrl.OnStepGeneratorIdle(true)
	c.Assert(ctrl.State(), qt.Equals, StateHold)

	resumed := ctrl.ExitHold(true)
	c.Assert(resumed, qt.IsTrue)
	c.Assert(ctrl.State(), qt.Equals, StateOff)
}

func TestController_ExitHoldWithNoWorkStops(t *testing.T) {
	c := qt.New(t)
	ctrl := &Controller{state: StateHold}
	resumed := ctrl.ExitHold(false)
	c.Assert(resumed, qt.IsFalse)
	c.Assert(ctrl.State(), qt.Equals, StateOff)
}
