// Package backlash implements the per-axis S-curve backlash compensation
// ramp generator, ported from the reference implementation's
// motion-controller support code.
package backlash

// Axis holds one axis's backlash compensation state. MaxVelocity and
// MaxAcceleration are the axis's commanded-motion limits; the ramp itself
// runs at 1.05x those values (Headroom) so it can still catch up on the
// last step of a motion that itself consumed the full budget.
type Axis struct {
	Backlash        float64 // total backlash magnitude (always >= 0)
	MaxVelocity     float64
	MaxAcceleration float64

	BacklashCorr float64 // target offset, +/- half the backlash magnitude
	BacklashFilt float64 // ramped offset actually applied this cycle
	BacklashVel  float64 // ramp's own internal velocity state
}

// Headroom is the fractional overshoot allowance applied to MaxVelocity and
// MaxAcceleration when ramping backlash_filt toward backlash_corr. Raised
// from the original 50% to 105% so the filter can still "hit the last step
// target" even when the commanded motion alone consumes 100% of budget.
const Headroom = 1.05

// Reset zeroes all three ramp state variables, for use after an estop
// recovery or a home operation where prior ramp state is no longer
// meaningful.
func (a *Axis) Reset() {
	a.BacklashCorr = 0
	a.BacklashFilt = 0
	a.BacklashVel = 0
}

// Compute runs one cycle of the backlash ramp given the axis's current
// commanded velocity (velCmd) and the planner's cycle time. It updates
// BacklashCorr (the direction-dependent target) and ramps BacklashFilt
// toward it using a bounded three-phase (ramp up / constant / ramp down)
// velocity profile.
func Compute(a *Axis, velCmd, cycleTime float64) {
	switch {
	case velCmd > 0:
		a.BacklashCorr = 0.5 * a.Backlash
	case velCmd < 0:
		a.BacklashCorr = -0.5 * a.Backlash
	default:
		// not moving, keep whatever target was already set
	}

	vMax := Headroom * a.MaxVelocity
	aMax := Headroom * a.MaxAcceleration
	v := a.BacklashVel

	if a.BacklashCorr >= a.BacklashFilt {
		sToGo := a.BacklashCorr - a.BacklashFilt
		switch {
		case sToGo > 0:
			dsVel := v * cycleTime
			dvAcc := aMax * cycleTime
			dsStop := 0.5 * (v + dvAcc) * (v + dvAcc) / aMax
			if sToGo <= dsStop+dsVel {
				if v > dvAcc {
					dsAcc := 0.5 * dvAcc * cycleTime
					a.BacklashVel -= dvAcc
					a.BacklashFilt += dsVel - dsAcc
				} else {
					a.BacklashVel = 0
					a.BacklashFilt = a.BacklashCorr
				}
			} else {
				if v+dvAcc > vMax {
					dvAcc = vMax - v
				}
				dsAcc := 0.5 * dvAcc * cycleTime
				dsStop = 0.5 * (v + dvAcc) * (v + dvAcc) / aMax
				if sToGo > dsStop+dsVel+dsAcc {
					a.BacklashVel += dvAcc
					a.BacklashFilt += dsVel + dsAcc
				} else {
					a.BacklashFilt += dsVel
				}
			}
		case sToGo < 0:
			a.BacklashVel = 0
			a.BacklashFilt = a.BacklashCorr
		}
	} else {
		sToGo := a.BacklashFilt - a.BacklashCorr
		switch {
		case sToGo > 0:
			dsVel := -v * cycleTime
			dvAcc := aMax * cycleTime
			dsStop := 0.5 * (v - dvAcc) * (v - dvAcc) / aMax
			if sToGo <= dsStop+dsVel {
				if -v > dvAcc {
					dsAcc := 0.5 * dvAcc * cycleTime
					a.BacklashVel += dvAcc
					a.BacklashFilt -= dsVel - dsAcc
				} else {
					a.BacklashVel = 0
					a.BacklashFilt = a.BacklashCorr
				}
			} else {
				if -v+dvAcc > vMax {
					dvAcc = vMax + v
				}
				dsAcc := 0.5 * dvAcc * cycleTime
				dsStop = 0.5 * (v - dvAcc) * (v - dvAcc) / aMax
				if sToGo > dsStop+dsVel+dsAcc {
					a.BacklashVel -= dvAcc
					a.BacklashFilt -= dsVel + dsAcc
				} else {
					a.BacklashFilt -= dsVel
				}
			}
		case sToGo < 0:
			a.BacklashVel = 0
			a.BacklashFilt = a.BacklashCorr
		}
	}
}
