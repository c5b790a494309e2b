// Package dispatch drives a stream of gcode.Command values through one
// session.Session, the Go counterpart of the reference daemon's
// _dsp_interp_cmd switch: each command kind queues motion (or performs a
// housekeeping action), runs the trajectory planner to completion, and
// hands the resulting bytes to the USB streaming engine.
package dispatch

import (
	"time"

	"github.com/rtstepper/rtstepperd/encoder"
	"github.com/rtstepper/rtstepperd/gcode"
	"github.com/rtstepper/rtstepperd/result"
	"github.com/rtstepper/rtstepperd/session"
	"github.com/rtstepper/rtstepperd/tc"
)

// Plugin is the out-of-process M-code hook. System commands (every M-code
// gcode.ParseMDI does not treat as a pause or program end, i.e. anything
// other than M0/M1/M2/M30) are handed to it; a nil Plugin makes them a
// no-op success, matching the
// fact that user plugins are an external collaborator, not something this
// package implements.
type Plugin func(mcode int, p, q float64) (result.Code, error)

// Dispatcher sequences Commands against a Session.
type Dispatcher struct {
	Sess   *session.Session
	Plugin Plugin

	nextID int

	// pendingReq accumulates the encoded bytes for a run of consecutive
	// Blend-terminated moves: AddLine/AddCircle only queue a Blend segment
	// without draining the planner, so several of them can overlap in the
	// TP before the chain is finally drained (by a Stop-terminated move or
	// by a non-move command that must see the motion finished first).
	pendingReq *encoder.Request
}

// New constructs a Dispatcher over sess.
func New(sess *session.Session) *Dispatcher {
	return &Dispatcher{Sess: sess}
}

// Dispatch runs one command to completion and returns its result code.
func (d *Dispatcher) Dispatch(cmd gcode.Command) (result.Code, error) {
	d.nextID++
	id := d.nextID

	switch cmd.Kind {
	case gcode.KindLinearMove:
		return d.dispatchLinear(id, cmd)
	case gcode.KindCircularMove:
		return d.dispatchCircular(id, cmd)
	case gcode.KindSetTermCond:
		d.Sess.TP.SetTermCond(cmd.TermCond)
		return result.OK, nil
	case gcode.KindPause:
		if err := d.drainPending(); err != nil {
			return result.IOError, err
		}
		if !d.Sess.IsCanceled() {
			return result.ProgramPaused, nil
		}
		return result.OK, nil
	case gcode.KindDelay:
		if err := d.drainPending(); err != nil {
			return result.IOError, err
		}
		d.delay(cmd.Delay)
		return result.OK, nil
	case gcode.KindSystemCmd:
		if err := d.drainPending(); err != nil {
			return result.IOError, err
		}
		if d.Sess.IsCanceled() {
			return result.OK, nil
		}
		if d.Plugin == nil {
			return result.OK, nil
		}
		return d.Plugin(cmd.MCode, cmd.PNumber, cmd.QNumber)
	case gcode.KindEnd:
		if err := d.drainPending(); err != nil {
			return result.IOError, err
		}
		return result.ProgramEnd, nil
	case gcode.KindStartSpeedFeedSynch:
		if err := d.drainPending(); err != nil {
			return result.IOError, err
		}
		d.startSpeedFeedSynch(cmd)
		return result.OK, nil
	case gcode.KindStopSpeedFeedSynch:
		d.Sess.SyncEnabled = false
		return result.OK, nil
	}
	return result.Error, nil
}

func (d *Dispatcher) dispatchLinear(id int, cmd gcode.Command) (result.Code, error) {
	vel := cmd.Vel
	if d.Sess.SyncEnabled {
		vel = d.Sess.SyncFeedPerSec
		if vel > cmd.MaxVel && cmd.MaxVel > 0 {
			vel = cmd.MaxVel
		}
	}
	term := d.Sess.TP.TermCondValue()
	if d.pendingReq == nil {
		d.pendingReq = &encoder.Request{}
	}
	if err := d.Sess.AddLine(id, cmd.End, vel, cmd.Accel, term, d.pendingReq); err != nil {
		return result.Error, err
	}
	if term == tc.TermBlend {
		return result.OK, nil
	}
	return d.flushPending()
}

func (d *Dispatcher) dispatchCircular(id int, cmd gcode.Command) (result.Code, error) {
	term := d.Sess.TP.TermCondValue()
	if d.pendingReq == nil {
		d.pendingReq = &encoder.Request{}
	}
	if err := d.Sess.AddCircle(id, cmd.End.Tran(), cmd.Center, cmd.Normal, cmd.Turn, cmd.Vel, cmd.Accel, term, d.pendingReq); err != nil {
		return result.Error, err
	}
	if term == tc.TermBlend {
		return result.OK, nil
	}
	return d.flushPending()
}

// flushPending finalizes and submits a request whose motion the session has
// already run to completion (a Stop-terminated move drains the planner
// inside AddLine/AddCircle itself).
func (d *Dispatcher) flushPending() (result.Code, error) {
	req := d.pendingReq
	d.pendingReq = nil
	d.Sess.Finalize(req)
	if err := d.Sess.Submit(req); err != nil {
		return result.IOError, err
	}
	return result.OK, nil
}

// drainPending forces any Blend-terminated moves left queued undrained by
// AddLine/AddCircle to run to completion, so a non-move command never
// observes motion still pending in the planner.
func (d *Dispatcher) drainPending() error {
	if d.pendingReq == nil {
		return nil
	}
	req := d.pendingReq
	d.pendingReq = nil
	d.Sess.RunTP(req)
	d.Sess.Finalize(req)
	return d.Sess.Submit(req)
}

// delay sleeps for seconds, in one-second increments so an estop or cancel
// raised mid-delay cuts it short, mirroring the reference loop's
// responsiveness to those two bits.
func (d *Dispatcher) delay(seconds float64) {
	const step = 1.0
	remaining := seconds
	for remaining > 0 {
		if d.Sess.IsEstopped() || d.Sess.IsCanceled() {
			return
		}
		dur := step
		if remaining < step {
			dur = remaining
		}
		time.Sleep(time.Duration(dur * float64(time.Second)))
		remaining -= step
	}
}

func (d *Dispatcher) startSpeedFeedSynch(cmd gcode.Command) {
	if d.Sess.IsCanceled() {
		return
	}
	if d.Sess.StepClock <= 0 || d.Sess.ICountPeriodAvg <= 0 {
		return
	}
	d.Sess.SyncFeedPerSec = d.Sess.StepClock / d.Sess.ICountPeriodAvg * cmd.FeedPerRev
	d.Sess.SyncEnabled = true
}

// MDI parses and dispatches a single manual-data-input line.
func (d *Dispatcher) MDI(line string) (result.Code, error) {
	cmd, err := gcode.ParseMDI(line)
	if err != nil {
		return result.InvalidGcodeFile, err
	}
	return d.Dispatch(cmd)
}

// Auto runs cmds in order, stopping early on a program end, a pause (the
// caller is expected to resume and call Auto again with the remaining
// slice), or a canceled session.
func (d *Dispatcher) Auto(cmds []gcode.Command) (result.Code, int, error) {
	for i, cmd := range cmds {
		if d.Sess.IsCanceled() {
			return result.OK, i, nil
		}
		code, err := d.Dispatch(cmd)
		if err != nil {
			return code, i, err
		}
		if code == result.ProgramEnd || code == result.ProgramPaused {
			return code, i + 1, nil
		}
	}
	return result.OK, len(cmds), nil
}
