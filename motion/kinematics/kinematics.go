// Package kinematics defines the pluggable forward/inverse-kinematics
// callback the core dispatches to at the segment boundary (spec.md §1
// Non-goals: "multi-axis kinematics beyond a pluggable forward/inverse-
// kinematics callback"). Coordinate transforms and arc interpolation
// upstream of this core are out of scope; this interface is only the
// Cartesian-target-to-motor-steps mapping used once per segment.
package kinematics

// Kinematics converts between Cartesian axis targets and per-motor step
// counts. Implementations must not block or allocate: ToSteps is called
// from the LO-priority executor path once per segment (spec.md §4.4 step
// 4).
type Kinematics interface {
	// AxisNames returns the ordered axis names this kinematics model
	// drives, defining the index mapping used by ToSteps/FromSteps.
	AxisNames() []string

	// ToSteps maps a Cartesian target (one value per axis, ordered as
	// AxisNames) to per-motor step counts (one per motor). The returned
	// slice may be a buffer owned by the implementation, valid only until
	// the next call to ToSteps or FromSteps; callers on the hot path copy
	// it out immediately.
	ToSteps(target []float32) ([]int32, error)

	// FromSteps is the forward map, used when re-synchronizing position
	// (e.g. on feedhold end-of-move re-stage, spec.md §4.6). Same
	// reused-buffer contract as ToSteps.
	FromSteps(steps []int32) ([]float32, error)

	// CheckLimits validates a Cartesian target against configured travel
	// limits, returning a non-nil error if it is out of bounds.
	CheckLimits(target []float32) error
}

// Identity is the trivial Kinematics: one motor per axis, steps = target *
// stepsPerUnit, no travel limit checking beyond simple bounds. It is the
// default for machines without coupled axes (e.g. a Cartesian 3-axis
// printer) and is what the test suite uses throughout.
type Identity struct {
	Names        []string
	StepsPerUnit []float32
	TravelMax    []float32

	stepsBuf []int32
	unitsBuf []float32
}

// NewIdentity builds an Identity kinematics model for the given axis names,
// with a uniform steps-per-unit and travel-max applied to every axis
// (callers needing per-axis values should set the fields directly).
func NewIdentity(names []string, stepsPerUnit, travelMax float32) *Identity {
	spu := make([]float32, len(names))
	tm := make([]float32, len(names))
	for i := range names {
		spu[i] = stepsPerUnit
		tm[i] = travelMax
	}
	return &Identity{
		Names:        names,
		StepsPerUnit: spu,
		TravelMax:    tm,
		stepsBuf:     make([]int32, len(names)),
		unitsBuf:     make([]float32, len(names)),
	}
}

// AxisNames implements Kinematics.
func (k *Identity) AxisNames() []string { return k.Names }

// ToSteps implements Kinematics.
func (k *Identity) ToSteps(target []float32) ([]int32, error) {
	for i := range k.Names {
		if i >= len(target) {
			k.stepsBuf[i] = 0
			continue
		}
		k.stepsBuf[i] = int32(round(target[i] * k.StepsPerUnit[i]))
	}
	return k.stepsBuf, nil
}

// FromSteps implements Kinematics.
func (k *Identity) FromSteps(steps []int32) ([]float32, error) {
	for i := range k.Names {
		if i >= len(steps) || k.StepsPerUnit[i] == 0 {
			k.unitsBuf[i] = 0
			continue
		}
		k.unitsBuf[i] = float32(steps[i]) / k.StepsPerUnit[i]
	}
	return k.unitsBuf, nil
}

// CheckLimits implements Kinematics.
func (k *Identity) CheckLimits(target []float32) error {
	for i, v := range target {
		if i >= len(k.TravelMax) || k.TravelMax[i] <= 0 {
			continue
		}
		if v < 0 || v > k.TravelMax[i] {
			return ErrOutOfTravel
		}
	}
	return nil
}

func round(v float32) float32 {
	if v >= 0 {
		return float32(int32(v + 0.5))
	}
	return float32(int32(v - 0.5))
}
