// Package mathutil holds the handful of small numeric helpers shared across
// the motion packages, so each one isn't redefining the same clamp.
package mathutil

import "golang.org/x/exp/constraints"

// Constrain limits value to the closed range [min, max].
func Constrain[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Abs32 returns the absolute value of a float32 without pulling in math.
func Abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Sign32 returns -1, 0 or 1 for the sign of v.
func Sign32(v float32) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// KahanAcc is a Kahan compensated-summation accumulator, used for the
// forward-difference running sums on the executor's hot path (spec §9:
// "choose once: use Kahan summation unconditionally on accumulators F1-F5
// and the running segment_velocity").
type KahanAcc struct {
	sum float32
	c   float32
}

// NewKahanAcc returns an accumulator seeded at v.
func NewKahanAcc(v float32) KahanAcc {
	return KahanAcc{sum: v}
}

// Add folds delta into the running sum with compensation and returns the
// new total.
func (k *KahanAcc) Add(delta float32) float32 {
	y := delta - k.c
	t := k.sum + y
	k.c = (t - k.sum) - y
	k.sum = t
	return k.sum
}

// Value returns the current compensated sum.
func (k *KahanAcc) Value() float32 {
	return k.sum
}
