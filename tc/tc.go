package tc

import (
	"math"

	"github.com/rtstepper/rtstepperd/pose"
)

// Geometry is satisfied by pose.Line and pose.Circle: anything the planner
// can interpolate a scalar arc-length progress along.
type Geometry interface {
	Point(u float64) pose.Pose
	Length() float64
}

// Config holds the per-segment parameters a planner installs on a TC before
// it starts running. ScaleForABC toggles the disabled rescale-for-rotation
// branch from the reference implementation's tcSetLine (see DESIGN.md, Open
// Question 1); it defaults to false, matching the shipped behavior of using
// translation limits and interpolating rotation in lockstep.
type Config struct {
	CycleTime float64
	VMax      float64
	AMax      float64
	VLimit    float64

	ScaleForABC bool
}

// TC is one trajectory cycle: the planner state for a single queued motion
// segment (a line or a circular arc), updated one discriminate cycle at a
// time.
type TC struct {
	ID int

	Kind     Kind
	TermCond TermCond
	State    State

	Geom Geometry
	ABC  *pose.Line // companion rotary line, nil if the segment is pure translation

	CycleTime float64
	TargetPos float64 // arc length (translation) or rotation magnitude to travel

	VMax, AMax float64
	VScale     float64
	VRestore   float64
	PreVMax    float64 // velocity credit ceded to/from a blending neighbor
	PreAMax    float64 // accel credit ceded to/from a blending neighbor
	VLimit     float64

	CurrentPos   float64
	CurrentVel   float64
	CurrentAccel float64

	tmag    float64 // translational length of the companion scaling
	abcMag  float64 // rotary magnitude of the companion ABC line
	radius  float64 // nonzero only for circular segments

	scaleDecel bool // set when the last cycle's clamp was purely the vScale ceiling
}

// NewLine constructs a TC for a linear segment.
func NewLine(id int, cfg Config, term TermCond, line pose.Line) *TC {
	t := &TC{
		ID: id, Kind: KindLinear, TermCond: term, State: StateUnset,
		Geom: line, CycleTime: cfg.CycleTime,
		TargetPos: line.Length(),
		VMax:      cfg.VMax, AMax: cfg.AMax, VScale: 1, VLimit: cfg.VLimit,
		tmag: line.Length(),
	}
	return t
}

// NewCircle constructs a TC for a circular segment.
func NewCircle(id int, cfg Config, term TermCond, circle pose.Circle) *TC {
	t := &TC{
		ID: id, Kind: KindCircular, TermCond: term, State: StateUnset,
		Geom: circle, CycleTime: cfg.CycleTime,
		TargetPos: circle.Length(),
		VMax:      cfg.VMax, AMax: cfg.AMax, VScale: 1, VLimit: cfg.VLimit,
		tmag: circle.Length(), radius: circle.Radius(),
	}
	return t
}

// WithABC attaches a rotary companion line. abcMag is the magnitude of the
// rotation carried by this segment; it is interpolated in lockstep with
// translation ("currentPos * abcMag / tmag") whenever abcMag exceeds 1e-6,
// so translation and rotation reach their endpoints simultaneously.
func (t *TC) WithABC(line pose.Line, abcMag float64) *TC {
	t.ABC = &line
	t.abcMag = abcMag
	return t
}

// IsDone reports whether this TC has reached its target.
func (t *TC) IsDone() bool {
	return t.State == StateDone
}

// RunCycle advances the TC by one planner cycle using the discriminate
// velocity solve: solve for the maximum velocity consistent with reaching
// zero velocity exactly at TargetPos under AMax, then clamp by the scaled
// velocity ceiling, the absolute VLimit, and (for circular segments) the
// centripetal limit, before integrating position.
func (t *TC) RunCycle() {
	if t.TargetPos <= 0 {
		t.CurrentPos = t.TargetPos
		t.CurrentVel = 0
		t.CurrentAccel = 0
		t.State = StateDone
		return
	}
	if t.State == StateDone {
		t.CurrentVel = 0
		t.CurrentAccel = 0
		return
	}

	dt := t.CycleTime
	toGo := t.TargetPos - t.CurrentPos

	discr := 0.5*dt*t.CurrentVel - toGo
	var newVel float64
	if discr > 0 {
		newVel = 0
	} else {
		discr = 0.25*dt*dt - 2*discr/t.AMax
		if discr < 0 {
			discr = 0
		}
		newVel = -0.5*t.AMax*dt + t.AMax*math.Sqrt(discr)
	}

	if newVel <= 0 {
		t.CurrentPos = t.TargetPos
		t.CurrentVel = 0
		t.CurrentAccel = 0
		t.State = StateDone
		return
	}

	wasDecel := t.State == StateDecel

	scaledCeiling := (t.VMax - t.PreVMax) * t.VScale
	t.scaleDecel = false
	if newVel > scaledCeiling {
		newVel = scaledCeiling
		t.scaleDecel = true
	}

	if t.VLimit > 0 && newVel > t.VLimit {
		newVel = t.VLimit
		t.scaleDecel = false
	}

	if t.Kind == KindCircular && t.radius > 0 {
		centripetal := math.Sqrt(t.AMax * t.radius)
		if newVel > centripetal {
			newVel = centripetal
			t.scaleDecel = false
		}
	}

	newAccel := (newVel - t.CurrentVel) / dt
	maxAccel := t.AMax - t.PreAMax
	if newAccel > maxAccel {
		newAccel = maxAccel
	}
	if newAccel < -t.AMax {
		newAccel = -t.AMax
	}
	newVel = t.CurrentVel + newAccel*dt
	if newVel < 0 {
		newVel = 0
	}

	t.CurrentPos += 0.5 * (newVel + t.CurrentVel) * dt
	t.CurrentVel = newVel
	t.CurrentAccel = newAccel

	switch {
	case newAccel > 0:
		t.State = StateAccel
	case newAccel < 0 && (wasDecel || !t.scaleDecel):
		t.State = StateDecel
	case newVel < VelEpsilon && t.VScale < ScaleEpsilon:
		t.State = StatePaused
	default:
		t.State = StateConst
	}
}

// GetPos returns the composite pose at the TC's current progress: the
// translational geometry's point, plus the companion ABC interpolation when
// present and abcMag exceeds 1e-6.
func (t *TC) GetPos() pose.Pose {
	if t.TargetPos <= 0 {
		return t.StartPose()
	}
	p := t.Geom.Point(t.CurrentPos)
	if t.ABC != nil && t.abcMag > 1e-6 && t.tmag > 0 {
		companionU := t.CurrentPos * t.abcMag / t.tmag
		abcPose := t.ABC.Point(companionU)
		p = p.WithABC(abcPose.ABC())
	}
	return p
}

// StartPose returns the pose this segment's geometry begins at, used by the
// planner to anchor per-segment displacement during a blend overlap.
func (t *TC) StartPose() pose.Pose {
	switch g := t.Geom.(type) {
	case pose.Line:
		return g.Start
	case pose.Circle:
		return g.Start
	default:
		return pose.Pose{}
	}
}

// runPreCycle and forceCycle are ported from the reference implementation's
// tcRunPreCycle/tcForceCycle. They exist for TC-to-TC time synchronization
// but are not wired into the planner's RunCycle — see DESIGN.md, Open
// Question 3.

// runPreCycle previews the velocity RunCycle would choose without mutating
// CurrentPos/CurrentVel/State.
func (t *TC) runPreCycle() (previewVel float64) {
	if t.State == StateDone || t.TargetPos <= 0 {
		return 0
	}
	dt := t.CycleTime
	toGo := t.TargetPos - t.CurrentPos
	discr := 0.5*dt*t.CurrentVel - toGo
	if discr > 0 {
		return 0
	}
	discr = 0.25*dt*dt - 2*discr/t.AMax
	if discr < 0 {
		discr = 0
	}
	v := -0.5*t.AMax*dt + t.AMax*math.Sqrt(discr)
	if v < 0 {
		v = 0
	}
	return v
}

// forceCycle advances the TC using an explicitly supplied velocity rather
// than the discriminate solve, for synchronizing two TCs to the same
// instantaneous velocity during a blend.
func (t *TC) forceCycle(vel float64) {
	dt := t.CycleTime
	if vel < 0 {
		vel = 0
	}
	t.CurrentPos += 0.5 * (vel + t.CurrentVel) * dt
	t.CurrentAccel = (vel - t.CurrentVel) / dt
	t.CurrentVel = vel
	if t.CurrentPos >= t.TargetPos {
		t.CurrentPos = t.TargetPos
		t.CurrentVel = 0
		t.CurrentAccel = 0
		t.State = StateDone
	}
}
