// Package gcode defines the closed set of motion commands the dispatcher
// consumes. A full G-code interpreter is out of scope here; callers either
// build a []Command directly or go through ParseMDI for the single-line
// "manual data input" subset an operator types interactively.
package gcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rtstepper/rtstepperd/pose"
	"github.com/rtstepper/rtstepperd/tc"
)

// Kind identifies which concrete Command a value holds.
type Kind int

const (
	KindLinearMove Kind = iota
	KindCircularMove
	KindSetTermCond
	KindPause
	KindDelay
	KindSystemCmd
	KindEnd
	KindStartSpeedFeedSynch
	KindStopSpeedFeedSynch
)

// Command is a closed sum type over the command kinds the reference
// interpreter's command stream carries across to the motion pipeline.
// Only the fields relevant to Kind are meaningful on any given value.
type Command struct {
	Kind Kind

	// KindLinearMove / KindCircularMove
	End    pose.Pose
	Center pose.Vec3
	Normal pose.Vec3
	Turn   int
	Vel    float64
	MaxVel float64
	Accel  float64

	// KindSetTermCond
	TermCond  tc.TermCond
	Tolerance float64

	// KindDelay
	Delay float64

	// KindSystemCmd
	MCode   int
	PNumber float64
	QNumber float64

	// KindStartSpeedFeedSynch
	FeedPerRev   float64
	VelocityMode int
}

// ParseMDI parses a single manual-data-input line into a Command. It
// understands the small subset an operator jogging a machine actually
// types by hand: linear moves (G0/G1 with any of X/Y/Z/A/B/C/U/V/W),
// dwell (G4 P<seconds>), exact-stop/blend termination condition (G61/G64),
// and program pause/end (M0/M2/M30).
func ParseMDI(line string) (Command, error) {
	line = strings.TrimSpace(strings.ToUpper(line))
	if line == "" {
		return Command{}, fmt.Errorf("gcode: empty MDI line")
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("gcode: empty MDI line")
	}

	switch fields[0] {
	case "G0", "G00", "G1", "G01":
		return parseLinearMove(fields[1:])
	case "G4", "G04":
		return parseDelay(fields[1:])
	case "G61":
		return Command{Kind: KindSetTermCond, TermCond: tc.TermStop}, nil
	case "G64":
		return parseBlend(fields[1:])
	case "M0", "M00", "M1", "M01":
		return Command{Kind: KindPause}, nil
	case "M2", "M02", "M30":
		return Command{Kind: KindEnd}, nil
	}

	if strings.HasPrefix(fields[0], "M") {
		return parseSystemCmd(fields)
	}

	return Command{}, fmt.Errorf("gcode: unrecognized MDI command %q", fields[0])
}

func parseLinearMove(args []string) (Command, error) {
	p := pose.Pose{}
	cmd := Command{Kind: KindLinearMove}
	for _, a := range args {
		if len(a) < 2 {
			continue
		}
		axis, val, err := splitAxisWord(a)
		if err != nil {
			continue // words like F/S handled below
		}
		switch axis {
		case 'X':
			p.X = val
		case 'Y':
			p.Y = val
		case 'Z':
			p.Z = val
		case 'A':
			p.A = val
		case 'B':
			p.B = val
		case 'C':
			p.C = val
		case 'U':
			p.U = val
		case 'V':
			p.V = val
		case 'W':
			p.W = val
		case 'F':
			cmd.Vel = val
		}
	}
	cmd.End = p
	return cmd, nil
}

func parseBlend(args []string) (Command, error) {
	cmd := Command{Kind: KindSetTermCond, TermCond: tc.TermBlend}
	for _, a := range args {
		if strings.HasPrefix(a, "P") {
			v, err := strconv.ParseFloat(a[1:], 64)
			if err != nil {
				return Command{}, fmt.Errorf("gcode: invalid blend tolerance %q: %w", a, err)
			}
			cmd.Tolerance = v
		}
	}
	return cmd, nil
}

func parseDelay(args []string) (Command, error) {
	for _, a := range args {
		if strings.HasPrefix(a, "P") {
			v, err := strconv.ParseFloat(a[1:], 64)
			if err != nil {
				return Command{}, fmt.Errorf("gcode: invalid delay %q: %w", a, err)
			}
			return Command{Kind: KindDelay, Delay: v}, nil
		}
	}
	return Command{}, fmt.Errorf("gcode: G4 requires a P<seconds> word")
}

func parseSystemCmd(fields []string) (Command, error) {
	n, err := strconv.Atoi(fields[0][1:])
	if err != nil {
		return Command{}, fmt.Errorf("gcode: invalid M-code %q: %w", fields[0], err)
	}
	cmd := Command{Kind: KindSystemCmd, MCode: n}
	for _, a := range fields[1:] {
		if len(a) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(a[1:], 64)
		if err != nil {
			continue
		}
		switch a[0] {
		case 'P':
			cmd.PNumber = v
		case 'Q':
			cmd.QNumber = v
		}
	}
	return cmd, nil
}

func splitAxisWord(word string) (byte, float64, error) {
	v, err := strconv.ParseFloat(word[1:], 64)
	if err != nil {
		return 0, 0, err
	}
	return word[0], v, nil
}
