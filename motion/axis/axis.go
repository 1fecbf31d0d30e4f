// Package axis holds the per-axis and per-motor configuration consumed by
// the planner and step generator: travel limits, jerk limits, and the
// step-angle/microstep/travel-per-rev derivation of steps-per-unit.
package axis

import "tinygo.org/x/drivers/motion/mathutil"

// SwitchMode selects how a limit switch on this axis is wired/used.
type SwitchMode uint8

const (
	SwitchModeDisabled SwitchMode = iota
	SwitchModeHomingOnly
	SwitchModeHomingAndLimit
)

// PowerMode mirrors the per-motor power-mode values of spec.md §3.
type PowerMode uint8

const (
	PowerDisabled PowerMode = iota
	PowerAlways
	PowerInCycle
	PowerWhenMoving
)

// Microsteps enumerates the legal microstep settings; a TMC2209/TMC5160
// pair exposes the same set (see tmc5160.Step_1 .. Step_128 in the sibling
// stepper-driver packages).
type Microsteps uint8

const (
	Microstep1  Microsteps = 1
	Microstep2  Microsteps = 2
	Microstep4  Microsteps = 4
	Microstep8  Microsteps = 8
	Microstep16 Microsteps = 16
	Microstep32 Microsteps = 32
)

// Config is the per-axis configuration (one per logical axis X Y Z A B C).
//
// Invariant: FeedRateMax <= VelocityMax; JerkMax > 0.
type Config struct {
	Name              string
	TravelMax         float32 // mm (or deg for rotary axes)
	VelocityMax       float32 // units/min
	FeedRateMax       float32 // units/min
	JerkMax           float32 // units/min^3
	JunctionDeviation float32 // mm, typ. 0.01
	SwitchMode        SwitchMode
	HomingVelocity    float32
	HomingOffset      float32
	Radius            float32 // for rotary axes, 0 for linear
}

// NewDefaultConfig returns a Config with conservative defaults, used the
// way tmc5160.NewDefaultStepper seeds a Stepper for testing.
func NewDefaultConfig(name string) Config {
	return Config{
		Name:              name,
		TravelMax:         300,
		VelocityMax:       6000,
		FeedRateMax:       6000,
		JerkMax:           5_000_000_000,
		JunctionDeviation: 0.01,
		SwitchMode:        SwitchModeHomingOnly,
	}
}

// Valid reports whether the config satisfies spec.md §3's axis invariants.
func (c Config) Valid() bool {
	return c.FeedRateMax <= c.VelocityMax && c.JerkMax > 0
}

// Motor is the per-physical-motor configuration (one per motor, motors can
// outnumber axes on a gantry with dual-motor axes).
type Motor struct {
	AxisName     string
	StepAngle    float32 // degrees per full step
	TravelPerRev float32 // units per revolution
	Microsteps   Microsteps
	Polarity     uint8 // 0 or 1
	PowerMode    PowerMode
	PowerLevel   uint8
}

// NewDefaultMotor returns a Motor bound to axis with common NEMA-17 values.
func NewDefaultMotor(axisName string) Motor {
	return Motor{
		AxisName:     axisName,
		StepAngle:    1.8,
		TravelPerRev: 40,
		Microsteps:   Microstep16,
		PowerMode:    PowerWhenMoving,
	}
}

// StepsPerUnit is the derived steps-per-unit for this motor:
//
//	steps_per_unit = (360 / step_angle / travel_per_rev) * microsteps
func (m Motor) StepsPerUnit() float32 {
	if m.StepAngle <= 0 || m.TravelPerRev <= 0 {
		return 0
	}
	return (360 / m.StepAngle / m.TravelPerRev) * float32(m.Microsteps)
}

// System holds the per-system constants of spec.md §6.
type System struct {
	MotorPowerTimeoutSec float32
	JunctionAcceleration float32 // a_centripetal, default 200000 mm/min^2
	EnableAcceleration   bool
}

// NewDefaultSystem returns System defaults matching spec.md §4.2's default
// centripetal acceleration constant.
func NewDefaultSystem() System {
	return System{
		MotorPowerTimeoutSec: 2,
		JunctionAcceleration: 200_000,
		EnableAcceleration:   true,
	}
}

// ClampVelocity constrains v to [0, VelocityMax].
func (c Config) ClampVelocity(v float32) float32 {
	return mathutil.Constrain(v, 0, c.VelocityMax)
}
