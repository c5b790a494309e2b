package gcode

import (
	"testing"

	"github.com/rtstepper/rtstepperd/tc"
)

func TestParseMDILinearMove(t *testing.T) {
	cmd, err := ParseMDI("g1 x1.5 z-0.25 f2.0")
	if err != nil {
		t.Fatalf("ParseMDI: %v", err)
	}
	if cmd.Kind != KindLinearMove {
		t.Fatalf("Kind = %v, want KindLinearMove", cmd.Kind)
	}
	if cmd.End.X != 1.5 || cmd.End.Z != -0.25 {
		t.Fatalf("End = %+v, want X=1.5 Z=-0.25", cmd.End)
	}
	if cmd.Vel != 2.0 {
		t.Fatalf("Vel = %v, want 2.0", cmd.Vel)
	}
}

func TestParseMDIBlendWithTolerance(t *testing.T) {
	cmd, err := ParseMDI("G64 P0.01")
	if err != nil {
		t.Fatalf("ParseMDI: %v", err)
	}
	if cmd.Kind != KindSetTermCond || cmd.TermCond != tc.TermBlend {
		t.Fatalf("got %+v, want blend term cond", cmd)
	}
	if cmd.Tolerance != 0.01 {
		t.Fatalf("Tolerance = %v, want 0.01", cmd.Tolerance)
	}
}

func TestParseMDIDelay(t *testing.T) {
	cmd, err := ParseMDI("G4 P1.5")
	if err != nil {
		t.Fatalf("ParseMDI: %v", err)
	}
	if cmd.Kind != KindDelay || cmd.Delay != 1.5 {
		t.Fatalf("got %+v, want delay 1.5", cmd)
	}
}

func TestParseMDIProgramEnd(t *testing.T) {
	cmd, err := ParseMDI("M30")
	if err != nil {
		t.Fatalf("ParseMDI: %v", err)
	}
	if cmd.Kind != KindEnd {
		t.Fatalf("Kind = %v, want KindEnd", cmd.Kind)
	}
}

func TestParseMDISystemCmd(t *testing.T) {
	cmd, err := ParseMDI("M101 P3.0 Q7.0")
	if err != nil {
		t.Fatalf("ParseMDI: %v", err)
	}
	if cmd.Kind != KindSystemCmd || cmd.MCode != 101 {
		t.Fatalf("got %+v, want system cmd 101", cmd)
	}
	if cmd.PNumber != 3.0 || cmd.QNumber != 7.0 {
		t.Fatalf("P/Q = %v/%v, want 3.0/7.0", cmd.PNumber, cmd.QNumber)
	}
}

func TestParseMDIRejectsUnknown(t *testing.T) {
	if _, err := ParseMDI("G200"); err == nil {
		t.Fatal("expected an error for an unrecognized command")
	}
}

func TestParseMDIRejectsEmpty(t *testing.T) {
	if _, err := ParseMDI("   "); err == nil {
		t.Fatal("expected an error for an empty line")
	}
}
