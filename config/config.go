// Package config loads the daemon's YAML-based runtime configuration
// (listen address, dongle identification, default motion limits) and the
// traditional per-axis .ini tool configuration, the same two-file split
// the reference motion controller used: one file an operator tunes rarely
// (wiring, scaling), one a machine profile switches between jobs.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	ini "gopkg.in/ini.v1"
	yml "gopkg.in/yaml.v2"
)

// AxisNames lists the nine supported axis letters in emc_axis ordinal
// order (X, Y, Z, A, B, C, U, V, W).
var AxisNames = []string{"x", "y", "z", "a", "b", "c", "u", "v", "w"}

// Axis is one axis's wiring and scaling, the fields an operator sets once
// per machine profile in the .ini tool file.
type Axis struct {
	StepPin         int     `ini:"STEP_PIN" koanf:"step_pin"`
	DirectionPin    int     `ini:"DIRECTION_PIN" koanf:"direction_pin"`
	StepActiveHigh  bool    `ini:"STEP_ACTIVE_HIGH" koanf:"step_active_high"`
	DirActiveHigh   bool    `ini:"DIRECTION_ACTIVE_HIGH" koanf:"direction_active_high"`
	StepsPerUnit    float64 `ini:"INPUT_SCALE" koanf:"steps_per_unit"`
	MaxVelocity     float64 `ini:"MAX_VELOCITY" koanf:"max_velocity"`
	MaxAcceleration float64 `ini:"MAX_ACCELERATION" koanf:"max_acceleration"`
	MaxPosLimit     float64 `ini:"MAX_LIMIT" koanf:"max_pos_limit"`
	MinPosLimit     float64 `ini:"MIN_LIMIT" koanf:"min_pos_limit"`
	Backlash        float64 `ini:"BACKLASH" koanf:"backlash"`
	Home            float64 `ini:"HOME" koanf:"home"`
}

// Daemon is the YAML-loaded daemon configuration: how to listen for HTTP
// requests and how to reach the dongle, plus defaults the trajectory
// planner applies absent a per-move override.
type Daemon struct {
	Addr string `koanf:"addr" yaml:"addr"`

	VendorID  uint16 `koanf:"vendor_id" yaml:"vendor_id"`
	ProductID uint16 `koanf:"product_id" yaml:"product_id"`

	CycleTime float64 `koanf:"cycle_time" yaml:"cycle_time"`
	VMax      float64 `koanf:"v_max" yaml:"v_max"`
	AMax      float64 `koanf:"a_max" yaml:"a_max"`
	VLimit    float64 `koanf:"v_limit" yaml:"v_limit"`

	QueueSize int `koanf:"queue_size" yaml:"queue_size"`

	ToolFile string `koanf:"tool_file" yaml:"tool_file"`

	// InputNAbortEnabled gates the supervisor's low->high edge watch on
	// the dongle's four undifferentiated digital inputs: only a rising
	// edge on an enabled input raises estop, matching inputN_abort_enabled
	// in the reference dongle_thread.
	Input0AbortEnabled bool `koanf:"input0_abort_enabled" yaml:"input0_abort_enabled"`
	Input1AbortEnabled bool `koanf:"input1_abort_enabled" yaml:"input1_abort_enabled"`
	Input2AbortEnabled bool `koanf:"input2_abort_enabled" yaml:"input2_abort_enabled"`
	Input3AbortEnabled bool `koanf:"input3_abort_enabled" yaml:"input3_abort_enabled"`
}

// DefaultDaemon returns the configuration used when no YAML file is
// present: a trajectory cycle of two ticks of the PIC dongle's 46875Hz step
// clock (one encoded byte per tick) and a generous queue.
func DefaultDaemon() Daemon {
	return Daemon{
		Addr:      ":8080",
		VendorID:  0x04d8,
		ProductID: 0xff45,
		CycleTime: 2.0 / 46875.0,
		VMax:      1.0,
		AMax:      10.0,
		QueueSize: 2000,
		ToolFile:  "tool.ini",
	}
}

// LoadDaemon reads path as YAML over top of DefaultDaemon's values. A
// missing file is not an error: the defaults are used as-is, matching the
// reference daemon's "no config, use compiled-in defaults" behavior.
func LoadDaemon(path string) (Daemon, error) {
	k := koanf.New(".")
	d := DefaultDaemon()
	if err := k.Load(structs.Provider(d, "koanf"), nil); err != nil {
		return d, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "no such") {
			return d, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}
	var out Daemon
	if err := k.Unmarshal("", &out); err != nil {
		return d, err
	}
	return out, nil
}

// WriteDaemon writes d to path as YAML, for the mkconf CLI subcommand.
func WriteDaemon(path string, d Daemon) error {
	b, err := yml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// AxisTable is the nine-axis set loaded from a tool .ini file, indexed in
// AxisNames order.
type AxisTable map[string]Axis

// LoadAxes reads a tool .ini file with one section per wired axis (e.g.
// [AXIS_X], [AXIS_Z]). Axes with no section are left absent from the
// returned table, the same "skip if no pins assigned" rule the reference
// implementation applies.
func LoadAxes(path string) (AxisTable, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	table := AxisTable{}
	for _, name := range AxisNames {
		section := "AXIS_" + strings.ToUpper(name)
		if !cfg.HasSection(section) {
			continue
		}
		var a Axis
		if err := cfg.Section(section).MapTo(&a); err != nil {
			return nil, fmt.Errorf("config: section %s: %w", section, err)
		}
		table[name] = a
	}
	return table, nil
}

// WriteAxes writes table back out as a tool .ini file, one [AXIS_*]
// section per entry, for the mkconf CLI subcommand.
func WriteAxes(path string, table AxisTable) error {
	cfg := ini.Empty()
	for _, name := range AxisNames {
		a, ok := table[name]
		if !ok {
			continue
		}
		section, err := cfg.NewSection("AXIS_" + strings.ToUpper(name))
		if err != nil {
			return err
		}
		if err := section.ReflectFrom(&a); err != nil {
			return err
		}
	}
	return cfg.SaveTo(path)
}
