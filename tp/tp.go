// Package tp implements the trajectory planner: the sequencer that owns a
// queue of trajectory cycles (tc.TC) and advances the one (or, during a
// blend, two) that are currently executing by one cycle per tick.
package tp

import (
	"github.com/rtstepper/rtstepperd/pose"
	"github.com/rtstepper/rtstepperd/tc"
)

// Defaults holds the planner-wide velocity/acceleration ceilings new
// segments inherit unless a caller overrides them with SetVmax/SetAmax.
type Defaults struct {
	CycleTime float64
	VMax      float64
	AMax      float64
	VLimit    float64
}

// TP is the trajectory planner sequencer.
type TP struct {
	defaults Defaults
	queue    *tc.Queue

	nextID   int
	execID   int
	termCond tc.TermCond

	vScale   float64
	vRestore float64

	nextVMax float64
	nextAMax float64

	active []*tc.TC // 1 normally, 2 while a BLEND overlap is in progress

	currentPos pose.Pose
	goalPos    pose.Pose

	aborting bool
	pausing  bool
}

// New constructs an empty planner with the given cycle time, queue
// capacity, and default velocity/acceleration ceilings.
func New(d Defaults, queueSize int) *TP {
	return &TP{
		defaults: d,
		queue:    tc.NewQueue(queueSize),
		termCond: tc.TermStop,
		vScale:   1,
		nextVMax: d.VMax,
		nextAMax: d.AMax,
	}
}

// SetVmax overrides the velocity ceiling used by the next AddLine/AddCircle.
// A zero or negative value leaves the default VMax in effect.
func (p *TP) SetVmax(v float64) { p.nextVMax = v }

// SetAmax overrides the acceleration ceiling used by the next
// AddLine/AddCircle. A zero or negative value leaves the default AMax in
// effect.
func (p *TP) SetAmax(a float64) { p.nextAMax = a }

// SetId sets the id to assign to the next AddLine/AddCircle.
func (p *TP) SetId(id int) { p.nextID = id }

// SetTermCond latches the termination condition (Stop or Blend) applied to
// subsequently added segments.
func (p *TP) SetTermCond(cond tc.TermCond) { p.termCond = cond }

// TermCondValue returns the termination condition currently latched by
// SetTermCond.
func (p *TP) TermCondValue() tc.TermCond { return p.termCond }

func (p *TP) cfg() tc.Config {
	vMax, aMax := p.nextVMax, p.nextAMax
	if vMax <= 0 {
		vMax = p.defaults.VMax
	}
	if aMax <= 0 {
		aMax = p.defaults.AMax
	}
	return tc.Config{CycleTime: p.defaults.CycleTime, VMax: vMax, AMax: aMax, VLimit: p.defaults.VLimit}
}

// AddLine queues a linear segment from the planner's current goal position
// to end. Returns tc.ErrQueueFull if the queue has reached capacity.
func (p *TP) AddLine(end pose.Pose) error {
	line := pose.NewLine(p.goalPos, end)
	t := tc.NewLine(p.nextID, p.cfg(), p.termCond, line)
	if err := p.queue.Put(t); err != nil {
		return err
	}
	p.goalPos = end
	return nil
}

// AddCircle queues a circular segment ending at end, about center with the
// given normal and additional full turns.
func (p *TP) AddCircle(end, center, normal pose.Vec3, turn int) error {
	start := p.goalPos
	endPose := start.WithTran(end)
	circle := pose.NewCircle(start, endPose, center, normal, turn)
	t := tc.NewCircle(p.nextID, p.cfg(), p.termCond, circle)
	if err := p.queue.Put(t); err != nil {
		return err
	}
	p.goalPos = endPose
	return nil
}

// IsDone reports whether the queue is empty and no segment is executing.
func (p *TP) IsDone() bool {
	return p.queue.Len() == 0 && len(p.active) == 0
}

// GetPos returns the composite commanded pose after the most recent
// RunCycle: the sum of every active segment's own displacement from its
// start pose, anchored at the first active segment's start pose. With one
// active segment this telescopes to that segment's own GetPos(); during a
// blend overlap it adds the newly-started segment's progress on top of the
// decelerating segment's own position, instead of jumping straight to the
// new segment's start pose.
func (p *TP) GetPos() pose.Pose {
	if len(p.active) == 0 {
		return p.currentPos
	}
	composite := p.active[0].StartPose()
	for _, t := range p.active {
		composite = composite.Add(t.GetPos().Sub(t.StartPose()))
	}
	return composite
}

// RunCycle advances the planner by one cycle: runs every active TC, starts
// the next queued TC immediately once the current one enters DECEL under a
// BLEND termination condition, retires completed TCs, and applies any
// pending pause/abort.
func (p *TP) RunCycle() {
	if len(p.active) == 0 {
		if p.queue.Len() == 0 {
			return
		}
		p.startNext()
	}

	for _, t := range p.active {
		if p.pausing {
			t.VScale = 0
		} else {
			t.VScale = p.vScale
		}
		t.RunCycle()
	}

	if len(p.active) == 1 {
		head := p.active[0]
		if head.TermCond == tc.TermBlend && head.State == tc.StateDecel && p.queue.Len() > 0 {
			p.startNext()
		}
	}

	p.currentPos = p.GetPos()
	p.retireDone()

	if p.aborting {
		if p.pausing {
			// an aborted segment is dropped once the pause has brought it to rest
			kept := p.active[:0]
			for _, t := range p.active {
				if t.CurrentVel > 0 {
					kept = append(kept, t)
				}
			}
			p.active = kept
		}
		if len(p.active) == 0 {
			p.aborting = false
		}
	}
}

func (p *TP) startNext() {
	next := p.queue.Get()
	if next == nil {
		return
	}
	p.execID = next.ID
	p.active = append(p.active, next)
}

func (p *TP) retireDone() {
	kept := p.active[:0]
	for _, t := range p.active {
		if !t.IsDone() {
			kept = append(kept, t)
		}
	}
	p.active = kept
}

// Pause decelerates all active segments to a stop by zeroing their
// effective velocity scale, remembering the prior scale so Resume can
// restore it.
func (p *TP) Pause() {
	if p.pausing {
		return
	}
	p.pausing = true
	p.vRestore = p.vScale
}

// Resume clears a prior Pause, restoring the velocity scale in effect
// before the pause.
func (p *TP) Resume() {
	if !p.pausing {
		return
	}
	p.pausing = false
	p.vScale = p.vRestore
}

// Abort flushes the queue and causes any in-flight motion to decelerate to
// zero (by pausing); IsDone() becomes true once that deceleration
// completes and RunCycle observes the queue and active list both empty.
func (p *TP) Abort() {
	p.aborting = true
	for p.queue.Len() > 0 {
		p.queue.Get()
	}
	p.Pause()
}

// SetVScale sets the user-adjustable speed multiplier applied to all active
// segments.
func (p *TP) SetVScale(scale float64) {
	p.vScale = scale
}

// VScale returns the current speed multiplier.
func (p *TP) VScale() float64 { return p.vScale }

// Queue exposes the underlying TC queue, primarily for tests and
// diagnostics.
func (p *TP) Queue() *tc.Queue { return p.queue }
