package session

import (
	"math"
	"testing"

	"github.com/rtstepper/rtstepperd/config"
	"github.com/rtstepper/rtstepperd/encoder"
	"github.com/rtstepper/rtstepperd/pose"
	"github.com/rtstepper/rtstepperd/tc"
)

func testDaemon() config.Daemon {
	d := config.DefaultDaemon()
	d.CycleTime = 1.0 / 1000
	d.VMax = 1.0
	d.AMax = 10.0
	d.QueueSize = 64
	return d
}

func testAxes() config.AxisTable {
	return config.AxisTable{
		"x": {StepPin: 2, DirectionPin: 3, StepActiveHigh: true, DirActiveHigh: true, StepsPerUnit: 1000, MaxVelocity: 1, MaxAcceleration: 10, MaxPosLimit: 100, MinPosLimit: -100, Backlash: 0.01},
		"z": {StepPin: 4, DirectionPin: 5, StepActiveHigh: true, DirActiveHigh: true, StepsPerUnit: 1000, MaxVelocity: 1, MaxAcceleration: 10, MaxPosLimit: 100, MinPosLimit: -100},
	}
}

func TestAddLineMovesAxisAndEncodesSteps(t *testing.T) {
	s := New(testDaemon(), testAxes())
	req := &encoder.Request{}

	if err := s.AddLine(1, pose.Pose{X: 1.0}, 1.0, 10.0, tc.TermStop, req); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if !s.TP.IsDone() {
		t.Fatal("planner should be done after RunTP")
	}

	x := s.Axes[0]
	if x.Name != "x" {
		t.Fatalf("Axes[0].Name = %q, want x", x.Name)
	}
	// x carries 0.01 of backlash: after a positive move BacklashFilt settles
	// at +0.005, which is added to the commanded position before encoding.
	wantSteps := int(math.Round((1.0 + 0.5*0.01) * 1000))
	if x.Enc.MasterIndex < wantSteps-2 || x.Enc.MasterIndex > wantSteps+2 {
		t.Fatalf("MasterIndex = %d, want close to %d", x.Enc.MasterIndex, wantSteps)
	}
	if req.Len == 0 {
		t.Fatal("expected encoded bytes in the request")
	}
}

func TestUnwiredAxisNeverAccumulatesSteps(t *testing.T) {
	s := New(testDaemon(), testAxes())
	req := &encoder.Request{}
	if err := s.AddLine(1, pose.Pose{Y: 1.0}, 1.0, 10.0, tc.TermStop, req); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	for _, a := range s.Axes {
		if a.Name == "y" && a.Enc.MasterIndex != 0 {
			t.Fatalf("unwired y axis accumulated %d steps", a.Enc.MasterIndex)
		}
	}
}

func TestBlendTerminatedAddLineLeavesPlannerUndrained(t *testing.T) {
	s := New(testDaemon(), testAxes())
	req := &encoder.Request{}

	if err := s.AddLine(1, pose.Pose{X: 1.0}, 1.0, 10.0, tc.TermBlend, req); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if s.TP.IsDone() {
		t.Fatal("a Blend-terminated move must stay queued, not run to completion immediately")
	}
	if req.Len != 0 {
		t.Fatal("no bytes should be encoded until the chain is drained")
	}

	if err := s.AddLine(2, pose.Pose{X: 2.0}, 1.0, 10.0, tc.TermStop, req); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if !s.TP.IsDone() {
		t.Fatal("a Stop-terminated move must drain the whole accumulated chain")
	}
	if req.Len == 0 {
		t.Fatal("expected encoded bytes once the chain drained")
	}
}

func TestEstopAbortsAndResetsBacklash(t *testing.T) {
	s := New(testDaemon(), testAxes())
	s.Axes[0].Backlash.BacklashFilt = 0.005
	s.Axes[0].Backlash.BacklashCorr = 0.005

	s.Estop()

	if !s.IsEstopped() {
		t.Fatal("IsEstopped() = false after Estop()")
	}
	if s.Axes[0].Backlash.BacklashFilt != 0 || s.Axes[0].Backlash.BacklashCorr != 0 {
		t.Fatal("Estop did not reset backlash state")
	}
}

func TestEstopResetClearsEstopAndCancel(t *testing.T) {
	s := New(testDaemon(), testAxes())
	s.Estop()
	s.EstopReset()
	if s.IsEstopped() {
		t.Fatal("IsEstopped() = true after EstopReset()")
	}
	if s.IsCanceled() {
		t.Fatal("IsCanceled() = true after EstopReset()")
	}
}

func TestPauseResumeTogglesStateBit(t *testing.T) {
	s := New(testDaemon(), testAxes())
	s.Pause()
	if s.StateBits()&0x020000 == 0 {
		t.Fatal("Paused bit not set after Pause()")
	}
	s.Resume()
	if s.StateBits()&0x020000 != 0 {
		t.Fatal("Paused bit still set after Resume()")
	}
}
