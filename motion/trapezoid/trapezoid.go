// Package trapezoid implements the jerk-limited trapezoid planner (spec.md
// §4.3, component C5): given a block's length and entry/cruise-max/exit
// velocities, it produces head/body/tail lengths and the achieved cruise
// velocity.
package trapezoid

import "github.com/orsinium-labs/tinymath"

// maxIterations bounds the degraded-trapezoid bisection (spec.md §4.3 step
// 3: "iterate at most 10 times"). The solver is plain bisection; it takes
// no Newton steps.
const maxIterations = 10

// convergence is the relative error target for the degraded case (spec.md
// §4.3: "within 0.1% error").
const convergence = 0.001

// Profile is the result of planning one block.
type Profile struct {
	HeadLength     float32
	BodyLength     float32
	TailLength     float32
	CruiseVelocity float32
	// Infeasible is set when even the smallest head+tail ramp (V* collapsed
	// to the larger of entry/exit, CruiseVelocity then holds that value) cannot fit in the
	// available length — spec.md §4.3 step 4, "the block cannot reach the
	// requested exit velocity."
	Infeasible bool
}

// Distance returns the minimum distance needed to change velocity from v1
// to v2 under jerk j, using the constant-jerk-ramp identity from spec.md
// §4.3: d = (v1 + v2) * sqrt(|v2 - v1| / j).
func Distance(v1, v2, jerk float32) float32 {
	if jerk <= 0 {
		return 0
	}
	return DistanceRecip(v1, v2, 1/jerk)
}

// DistanceRecip is Distance expressed in terms of 1/jerk rather than jerk,
// for callers planning a block.Block that already carries jerk's cached
// reciprocal (block.Block.JerkRecip, spec.md §3) and so can turn every one
// of Plan's repeated Distance calls into a multiply instead of a divide.
func DistanceRecip(v1, v2, jerkRecip float32) float32 {
	dv := v2 - v1
	if dv < 0 {
		dv = -dv
	}
	return (v1 + v2) * tinymath.Sqrt(dv*jerkRecip)
}

// Plan computes the head/body/tail lengths and cruise velocity for a block
// of the given length, bounded by entry/cruiseVmax/exit velocities and
// jerk, following spec.md §4.3 steps 1-4.
func Plan(length, entry, cruiseVmax, exit, jerk float32) Profile {
	if jerk <= 0 {
		return PlanRecip(length, entry, cruiseVmax, exit, 0)
	}
	return PlanRecip(length, entry, cruiseVmax, exit, 1/jerk)
}

// PlanRecip is Plan expressed in terms of 1/jerk; pass block.Block.JerkRecip
// directly rather than re-dividing on every call (spec.md §3's "cached
// reciprocal... for speed").
func PlanRecip(length, entry, cruiseVmax, exit, jerkRecip float32) Profile {
	if length <= 0 {
		return Profile{CruiseVelocity: entry}
	}

	headNeeded := DistanceRecip(entry, cruiseVmax, jerkRecip)
	tailNeeded := DistanceRecip(cruiseVmax, exit, jerkRecip)

	if headNeeded+tailNeeded <= length {
		return Profile{
			HeadLength:     headNeeded,
			BodyLength:     length - headNeeded - tailNeeded,
			TailLength:     tailNeeded,
			CruiseVelocity: cruiseVmax,
		}
	}

	// Degraded trapezoid: solve for peak velocity V* such that
	// Distance(entry, V*) + Distance(V*, exit) == length.
	lo := maxOf(entry, exit)
	hi := cruiseVmax
	if hi < lo {
		hi = lo
	}

	feasibleLo := DistanceRecip(entry, lo, jerkRecip) + DistanceRecip(lo, exit, jerkRecip)
	if feasibleLo > length*(1+convergence) {
		// Even the smallest possible peak (collapsing to entry or exit,
		// whichever is larger) doesn't fit: the block cannot honor the
		// requested exit velocity in the available length.
		return Profile{Infeasible: true, CruiseVelocity: lo}
	}

	peak := bisect(entry, exit, jerkRecip, lo, hi, length)

	head := DistanceRecip(entry, peak, jerkRecip)
	tail := DistanceRecip(peak, exit, jerkRecip)
	body := length - head - tail
	if body < 0 {
		// Clamp drift from the last bisection step.
		scale := length / (head + tail)
		head *= scale
		tail *= scale
		body = 0
	}

	return Profile{
		HeadLength:     head,
		BodyLength:     body,
		TailLength:     tail,
		CruiseVelocity: peak,
	}
}

// bisect searches [lo, hi] for V* with Distance(entry,V*)+Distance(V*,exit)
// == length (spec.md §4.3 step 3). It returns as soon as a midpoint is
// within the 0.1% convergence target; otherwise it returns the midpoint
// left after maxIterations halvings, which may still be outside it.
func bisect(entry, exit, jerkRecip, lo, hi, length float32) float32 {
	for i := 0; i < maxIterations; i++ {
		mid := (lo + hi) / 2
		d := DistanceRecip(entry, mid, jerkRecip) + DistanceRecip(mid, exit, jerkRecip)
		if d == 0 {
			break
		}
		relErr := (d - length) / length
		if relErr < 0 {
			relErr = -relErr
		}
		if relErr <= convergence {
			return mid
		}
		if d > length {
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2
}

func maxOf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
