// Package result defines the daemon's single result-code error taxonomy,
// shared by every layer of the motion pipeline instead of ad hoc error
// values, so a caller at the HTTP surface can always recover a stable code
// from a deeply wrapped error.
package result

import (
	"errors"
	"fmt"
)

// Code is a result code. Negative values are errors; zero and positive
// values are non-error outcomes a caller may still want to distinguish
// (e.g. a program ended vs. paused).
type Code int

const (
	InvalidGcodeFile      Code = -11
	InterpreterError      Code = -10
	IOTimedOut            Code = -9
	DeviceUnavailable     Code = -8
	RequestError          Code = -7
	MallocError           Code = -6
	IOError               Code = -5
	InvalidConfigKey      Code = -4
	InvalidConfigFile     Code = -3
	Timeout               Code = -2
	Error                 Code = -1
	OK                    Code = 0
	InputTrue             Code = 1
	InputFalse            Code = 2
	ProgramPaused         Code = 3
	ProgramEnd            Code = 4
	IOCanceled            Code = 5
)

var names = map[Code]string{
	InvalidGcodeFile:  "invalid gcode file",
	InterpreterError:  "interpreter error",
	IOTimedOut:        "io timed out",
	DeviceUnavailable: "device unavailable",
	RequestError:      "request error",
	MallocError:       "allocation error",
	IOError:           "io error",
	InvalidConfigKey:  "invalid config key",
	InvalidConfigFile: "invalid config file",
	Timeout:           "timeout",
	Error:             "error",
	OK:                "ok",
	InputTrue:         "input true",
	InputFalse:        "input false",
	ProgramPaused:     "program paused",
	ProgramEnd:        "program end",
	IOCanceled:        "io canceled",
}

// String renders the code's symbolic name, falling back to its numeric
// value if unrecognized.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("result.Code(%d)", int(c))
}

// IsError reports whether c represents a failure (strictly negative).
func (c Code) IsError() bool { return c < 0 }

// Err wraps a Code as an error. Use Err(OK) sparingly; most call sites
// should just return nil for the success case.
type Err struct {
	Code Code
	// Msg is an optional human-readable detail appended to the code's name.
	Msg string
}

func (e *Err) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New constructs an *Err from a code and an optional formatted detail.
func New(code Code, format string, args ...interface{}) error {
	return &Err{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Err, and otherwise returns Error for any non-nil err and OK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Code
	}
	return Error
}
