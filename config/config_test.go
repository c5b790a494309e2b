package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDaemonMissingFileFallsBackToDefaults(t *testing.T) {
	got, err := LoadDaemon(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}
	want := DefaultDaemon()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDaemonThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtstepperd.yml")
	d := DefaultDaemon()
	d.Addr = ":9090"
	d.CycleTime = 1.0 / 62500.0
	d.VMax = 2.5

	if err := WriteDaemon(path, d); err != nil {
		t.Fatalf("WriteDaemon: %v", err)
	}
	got, err := LoadDaemon(path)
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}
	if diff := cmp.Diff(d, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAxesSkipsUnwiredAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool.ini")
	contents := `
[AXIS_X]
STEP_PIN = 2
DIRECTION_PIN = 3
STEP_ACTIVE_HIGH = true
DIRECTION_ACTIVE_HIGH = true
INPUT_SCALE = 20000
MAX_VELOCITY = 1.0
MAX_ACCELERATION = 10.0
MAX_LIMIT = 8.0
MIN_LIMIT = 0.0
BACKLASH = 0.01
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadAxes(path)
	if err != nil {
		t.Fatalf("LoadAxes: %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("got %d axes, want 1 (only X has a section)", len(table))
	}
	x, ok := table["x"]
	if !ok {
		t.Fatal("expected axis \"x\" in table")
	}
	if x.StepPin != 2 || x.DirectionPin != 3 {
		t.Fatalf("pin assignment = %+v, want step=2 dir=3", x)
	}
	if x.StepsPerUnit != 20000 {
		t.Fatalf("StepsPerUnit = %v, want 20000", x.StepsPerUnit)
	}
}

func TestWriteAxesThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool.ini")
	table := AxisTable{
		"x": {StepPin: 2, DirectionPin: 3, StepActiveHigh: true, StepsPerUnit: 20000, MaxVelocity: 1, MaxAcceleration: 10, MaxPosLimit: 8, Backlash: 0.01},
		"z": {StepPin: 6, DirectionPin: 7, DirActiveHigh: true, StepsPerUnit: 20000, MaxVelocity: 0.5, MaxAcceleration: 5},
	}
	if err := WriteAxes(path, table); err != nil {
		t.Fatalf("WriteAxes: %v", err)
	}
	got, err := LoadAxes(path)
	if err != nil {
		t.Fatalf("LoadAxes: %v", err)
	}
	if diff := cmp.Diff(table, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got["y"]; ok {
		t.Fatal("unwired axis y should not appear in the round-tripped table")
	}
}
