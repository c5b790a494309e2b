package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/rtstepper/rtstepperd/config"
	"github.com/rtstepper/rtstepperd/gcode"
	"github.com/rtstepper/rtstepperd/session"
	"github.com/rtstepper/rtstepperd/usbdongle"
	"github.com/rtstepper/rtstepperd/usbstream"
)

func newEngineFor(d *usbdongle.Dongle, sess *session.Session, cfg config.Daemon) *usbstream.Engine {
	const icountWindow = 16
	e := usbstream.New(d, d, icountWindow)
	e.SetEstopCallback(sess.Estop)
	e.SetInputAbortEnable(inputAbortMask(cfg))
	return e
}

// inputAbortMask builds the supervisor's estop-worthy input bitmask from
// the daemon config's per-input enable flags.
func inputAbortMask(d config.Daemon) uint32 {
	var mask uint32
	if d.Input0AbortEnabled {
		mask |= usbstream.BitInput0
	}
	if d.Input1AbortEnabled {
		mask |= usbstream.BitInput1
	}
	if d.Input2AbortEnabled {
		mask |= usbstream.BitInput2
	}
	if d.Input3AbortEnabled {
		mask |= usbstream.BitInput3
	}
	return mask
}

// readLines reads path and returns its non-blank, non-comment lines.
// Lines starting with ';' or '(' are skipped whole as comments.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "(") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func parseLines(lines []string) ([]gcode.Command, error) {
	cmds := make([]gcode.Command, 0, len(lines))
	for _, line := range lines {
		cmd, err := gcode.ParseMDI(line)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
