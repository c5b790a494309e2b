// Package session owns the per-connection aggregate that ties the
// trajectory planner, per-axis backlash state, the bit-plane encoder, and
// the USB streaming engine together into the single mutable object the
// dispatcher drives: the Go analogue of the reference daemon's global
// emc_session, but owned by a value instead of a process-wide global so a
// test (or, in principle, multiple dongles) can hold more than one.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/rtstepper/rtstepperd/backlash"
	"github.com/rtstepper/rtstepperd/config"
	"github.com/rtstepper/rtstepperd/encoder"
	"github.com/rtstepper/rtstepperd/pose"
	"github.com/rtstepper/rtstepperd/tc"
	"github.com/rtstepper/rtstepperd/tp"
	"github.com/rtstepper/rtstepperd/usbstream"
)

// Axis bundles one coordinate's configuration and the three pieces of
// per-cycle state that ride along with it: the backlash ramp, the
// step/direction encode state, and the commanded position/velocity for
// the cycle just run.
type Axis struct {
	Name string
	Cfg  config.Axis

	Backlash backlash.Axis
	Enc      *encoder.Axis

	PosCmd    float64
	oldPosCmd float64
	VelCmd    float64
}

// Session is the owned aggregate one dongle connection's state lives in.
type Session struct {
	mu sync.Mutex

	Axes      []*Axis // emc_axis order: X Y Z A B C U V W
	TP        *tp.TP
	Engine    *usbstream.Engine
	CycleTime float64
	CycleFreq float64

	stateBits uint32 // atomic; see usbstream Bit* constants

	SyncEnabled    bool
	SyncFeedPerSec float64
	StepClock      float64
	ICountPeriodAvg float64

	NextID int
}

// New builds a Session from daemon defaults and a loaded axis table. Axes
// absent from the table are still present in s.Axes (so indexing by
// config.AxisNames position always works) but have Enc.Wired() == false
// and are skipped by the encoder. A configured axis is wired only when both
// its StepPin and DirectionPin are DB25 data pins 2..9, which drive bits
// 0..7 of the encoded byte.
func New(d config.Daemon, axes config.AxisTable) *Session {
	s := &Session{
		CycleTime: d.CycleTime,
		CycleFreq: 1.0 / d.CycleTime,
	}
	for _, name := range config.AxisNames {
		cfg := axes[name]
		a := &Axis{
			Name: name,
			Cfg:  cfg,
			Backlash: backlash.Axis{
				Backlash:        cfg.Backlash,
				MaxVelocity:     cfg.MaxVelocity,
				MaxAcceleration: cfg.MaxAcceleration,
			},
			Enc: encoder.NewAxis(name),
		}
		stepBit, dirBit := cfg.StepPin-2, cfg.DirectionPin-2
		if cfg.StepsPerUnit != 0 && stepBit >= 0 && stepBit <= 7 && dirBit >= 0 && dirBit <= 7 {
			a.Enc.StepBit = stepBit
			a.Enc.DirBit = dirBit
			a.Enc.StepActiveHigh = cfg.StepActiveHigh
			a.Enc.DirActiveHigh = cfg.DirActiveHigh
			a.Enc.StepsPerUnit = cfg.StepsPerUnit
			a.Enc.MinPosLimit = cfg.MinPosLimit
			a.Enc.MaxPosLimit = cfg.MaxPosLimit
		}
		s.Axes = append(s.Axes, a)
	}
	s.TP = tp.New(tp.Defaults{CycleTime: d.CycleTime, VMax: d.VMax, AMax: d.AMax, VLimit: d.VLimit}, d.QueueSize)
	return s
}

// StateBits returns the current user+dongle status word.
func (s *Session) StateBits() uint32 { return atomic.LoadUint32(&s.stateBits) }

func (s *Session) setBit(bit uint32, set bool) {
	for {
		old := atomic.LoadUint32(&s.stateBits)
		var next uint32
		if set {
			next = old | bit
		} else {
			next = old &^ bit
		}
		if atomic.CompareAndSwapUint32(&s.stateBits, old, next) {
			return
		}
	}
}

// Estop sets the ESTOP and CANCEL bits, aborts the planner, and resets
// every axis's backlash ramp state, matching dsp_estop's "compensation
// variables can be in a bad state" reset.
func (s *Session) Estop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBit(usbstream.BitEstop, true)
	s.setBit(usbstream.BitCancel, true)
	s.TP.Abort()
	if s.Engine != nil {
		s.Engine.Estop()
	}
	for _, a := range s.Axes {
		a.Backlash.Reset()
	}
}

// EstopReset clears ESTOP and CANCEL without touching backlash state: a
// home operation (or the dongle's own xfr_cancel recovery) is responsible
// for re-establishing a known position before backlash compensation is
// meaningful again.
func (s *Session) EstopReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBit(usbstream.BitEstop, false)
	s.setBit(usbstream.BitCancel, false)
	if s.Engine != nil {
		s.Engine.ResetEstop()
	}
}

// Pause/Resume/Homed/CancelSet/CancelClear mirror the user-level state
// bits the reference session tracks alongside ESTOP.
func (s *Session) Pause()       { s.TP.Pause(); s.setBit(usbstream.BitPaused, true) }
func (s *Session) Resume()      { s.TP.Resume(); s.setBit(usbstream.BitPaused, false) }
func (s *Session) SetHomed()    { s.setBit(usbstream.BitHomed, true) }
func (s *Session) CancelSet()   { s.setBit(usbstream.BitCancel, true) }
func (s *Session) CancelClear() { s.setBit(usbstream.BitCancel, false) }
func (s *Session) IsCanceled() bool {
	return s.StateBits()&usbstream.BitCancel != 0
}
func (s *Session) IsEstopped() bool {
	return s.StateBits()&usbstream.BitEstop != 0
}

// axisByCoordinate returns the scalar component of p that corresponds to
// name ("x".."w"), the one-to-one coordinate mapping used when more than
// one physical axis sharing a coordinate (e.g. a dual-Z gantry) is not
// configured.
func axisByCoordinate(name string, p pose.Pose) float64 {
	switch name {
	case "x":
		return p.X
	case "y":
		return p.Y
	case "z":
		return p.Z
	case "a":
		return p.A
	case "b":
		return p.B
	case "c":
		return p.C
	case "u":
		return p.U
	case "v":
		return p.V
	case "w":
		return p.W
	}
	return 0
}

// RunTP drives the trajectory planner to completion for whatever has just
// been queued, running backlash compensation and the bit-plane encoder
// once per planner cycle, appending the resulting bytes to req.
func (s *Session) RunTP(req *encoder.Request) {
	encAxes := make([]*encoder.Axis, len(s.Axes))
	for i, a := range s.Axes {
		encAxes[i] = a.Enc
	}
	cmdPos := make([]float64, len(s.Axes))

	for !s.TP.IsDone() {
		s.TP.RunCycle()
		pos := s.TP.GetPos()

		for _, a := range s.Axes {
			a.oldPosCmd = a.PosCmd
			a.PosCmd = axisByCoordinate(a.Name, pos)
			a.VelCmd = (a.PosCmd - a.oldPosCmd) * s.CycleFreq
			backlash.Compute(&a.Backlash, a.VelCmd, s.CycleTime)
		}
		for i, a := range s.Axes {
			cmdPos[i] = a.PosCmd + a.Backlash.BacklashFilt
		}
		encoder.EncodeCycle(encAxes, cmdPos, req)
	}
}

// Finalize stretches any outstanding encoded pulses in req to their 50%
// duty-cycle midpoint, call this once a command's RunTP calls are done and
// before handing req off for transfer.
func (s *Session) Finalize(req *encoder.Request) {
	encAxes := make([]*encoder.Axis, len(s.Axes))
	for i, a := range s.Axes {
		encAxes[i] = a.Enc
	}
	encoder.FinalizePulses(encAxes, req)
}

// Position returns the planner's current commanded pose.
func (s *Session) Position() pose.Pose { return s.TP.GetPos() }

// Submit hands req's encoded bytes to the USB streaming engine, if one is
// attached; with no engine attached (e.g. in tests that only exercise
// encoding) it is a no-op.
func (s *Session) Submit(req *encoder.Request) error {
	if s.Engine == nil {
		return nil
	}
	return s.Engine.Submit(req.Buf[:req.Len])
}

// AddLine queues a linear move with the given velocity/acceleration
// overrides and term condition. A Stop-terminated move runs the planner to
// completion immediately, encoding into req; a Blend-terminated move is
// left queued undrained so a following AddLine/AddCircle call can overlap
// with it before the caller eventually drains the chain.
func (s *Session) AddLine(id int, end pose.Pose, vel, accel float64, term tc.TermCond, req *encoder.Request) error {
	s.TP.SetId(id)
	s.TP.SetVmax(vel)
	s.TP.SetAmax(accel)
	s.TP.SetTermCond(term)
	if err := s.TP.AddLine(end); err != nil {
		return err
	}
	if term == tc.TermStop {
		s.RunTP(req)
	}
	return nil
}

// AddCircle queues a circular move with the same Stop/Blend drain behavior
// as AddLine.
func (s *Session) AddCircle(id int, end, center, normal pose.Vec3, turn int, vel, accel float64, term tc.TermCond, req *encoder.Request) error {
	s.TP.SetId(id)
	s.TP.SetVmax(vel)
	s.TP.SetAmax(accel)
	s.TP.SetTermCond(term)
	if err := s.TP.AddCircle(end, center, normal, turn); err != nil {
		return err
	}
	if term == tc.TermStop {
		s.RunTP(req)
	}
	return nil
}
