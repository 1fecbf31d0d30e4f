// Package encoder implements the per-motor step-count mirror maintained
// from within the step ISR (spec.md §4.7, component C8). It is the only
// "truth" of emitted position; the planner's own position is a floating-
// point mirror that can drift and is corrected by the following-error
// nudge (spec.md §4.5).
package encoder

// Mirror holds one signed step counter per motor.
type Mirror struct {
	counts []int32
}

// NewMirror allocates a Mirror for numMotors motors, all starting at zero.
func NewMirror(numMotors int) *Mirror {
	return &Mirror{counts: make([]int32, numMotors)}
}

// Step increments (or decrements) motor m's count by sign, which must be
// +1 or -1. Called from the DDA tick ISR on every emitted step (spec.md
// §4.5 "DDA tick").
func (m *Mirror) Step(motor int, sign int32) {
	if motor < 0 || motor >= len(m.counts) {
		return
	}
	m.counts[motor] += sign
}

// Get returns motor m's current count.
func (m *Mirror) Get(motor int) int32 {
	if motor < 0 || motor >= len(m.counts) {
		return 0
	}
	return m.counts[motor]
}

// Snapshot copies every motor's count into out (len(out) must be >=
// NumMotors), for the executor's once-per-segment sample (spec.md §4.4
// step 2).
func (m *Mirror) Snapshot(out []int32) {
	n := len(m.counts)
	if len(out) < n {
		n = len(out)
	}
	copy(out[:n], m.counts[:n])
}

// NumMotors returns the number of motors this mirror tracks.
func (m *Mirror) NumMotors() int { return len(m.counts) }

// Reset sets motor m's count to v. Used at cycle start; per spec.md §9's
// open question, this core resets directly from the step-position mirror
// rather than recomputing a kinematic round-trip.
func (m *Mirror) Reset(motor int, v int32) {
	if motor < 0 || motor >= len(m.counts) {
		return
	}
	m.counts[motor] = v
}

// ResetAll sets every motor's count from steps (len(steps) must be <=
// NumMotors).
func (m *Mirror) ResetAll(steps []int32) {
	n := len(m.counts)
	if len(steps) < n {
		n = len(steps)
	}
	copy(m.counts[:n], steps[:n])
}
