// Package encoder implements the bit-plane step/direction encoder: mapping
// per-axis commanded positions to DB25 pin bits in the byte stream bulk
// transferred to the dongle, with pulse-width stretching for ~50% duty
// cycle and a bounded count of "step exceeded 1" diagnostics.
package encoder

import (
	"github.com/rtstepper/rtstepperd/util"
)

// GrowChunk is the buffer growth increment: the request's byte buffer is
// grown by this many bytes whenever fewer than 2 bytes remain free.
const GrowChunk = 16 * 1024

// maxOversizeWarnings bounds how many "step exceeded 1" diagnostics an
// Encoder will surface before going silent, so a persistently
// misconfigured axis cannot flood the log.
const maxOversizeWarnings = 5

// Axis is one axis's pin assignment and persistent encode state. Unlike
// backlash.Axis and tc.TC, an Axis's MasterIndex and Direction persist
// across I/O requests for the lifetime of the session: they track the
// dongle's absolute step position, not any one motion.
type Axis struct {
	Name string

	StepBit, DirBit int // bit index (0-7) within the combined DB25 byte; -1 if unassigned
	StepActiveHigh  bool
	DirActiveHigh   bool

	StepsPerUnit           float64
	MinPosLimit, MaxPosLimit float64

	MasterIndex int // signed step count since origin
	Direction   int // last nonzero step sign, -1/0/+1

	clkTail int // byte offset of the outstanding pulse's first half within the current Request; -1 = none
}

// Wired reports whether this axis has a step pin assigned at all.
func (a *Axis) Wired() bool { return a.StepBit >= 0 }

// Request is one I/O request's byte buffer: the bit-plane sample stream
// for one motion, grown in GrowChunk increments and filled one cycle (two
// bytes) at a time.
type Request struct {
	Buf []byte
	Len int
}

// ensureFree grows Buf by GrowChunk if fewer than n bytes remain past Len.
func (r *Request) ensureFree(n int) {
	if len(r.Buf)-r.Len >= n {
		return
	}
	grown := make([]byte, len(r.Buf)+GrowChunk)
	copy(grown, r.Buf[:r.Len])
	r.Buf = grown
}

func (r *Request) idleByte(axes []*Axis) byte {
	var b byte
	for _, a := range axes {
		if !a.Wired() {
			continue
		}
		b = util.SetBit(b, uint(a.StepBit), !a.StepActiveHigh) // step bit idle level: inactive
		dirHigh := a.Direction < 0 // active level marks negative direction, per rtstepper_encode
		if !a.DirActiveHigh {
			dirHigh = !dirHigh
		}
		b = util.SetBit(b, uint(a.DirBit), dirHigh)
	}
	return b
}

// Overflows counts, across the lifetime of the process, how many times an
// axis's per-cycle step delta exceeded +/-1 and was forced to zero, up to
// maxOversizeWarnings: later oversize steps are still forced to zero but
// are no longer counted. It is
// package-level because the condition indicates a systemic configuration
// problem (TP cycle time too coarse for the axis's steps-per-unit), not a
// per-request one.
var Overflows int

// EncodeCycle appends one cycle's two-byte sample to req for every wired
// axis in axes, given each axis's already-computed PosCmd+BacklashFilt sum
// (cmdPos), which EncodeCycle itself clips to the axis's MinPosLimit/
// MaxPosLimit soft limits before converting it to steps. cmdPos is indexed
// in the same order as axes.
func EncodeCycle(axes []*Axis, cmdPos []float64, req *Request) {
	req.ensureFree(2)
	total := req.Len

	b0 := req.idleByte(axes)
	b1 := b0

	for i, a := range axes {
		if !a.Wired() {
			continue
		}
		clipped := cmdPos[i]
		if clipped > a.MaxPosLimit {
			clipped = a.MaxPosLimit
		}
		if clipped < a.MinPosLimit {
			clipped = a.MinPosLimit
		}

		target := int(roundHalfAwayFromZero(clipped * a.StepsPerUnit))
		step := target - a.MasterIndex

		if step > 1 || step < -1 {
			if Overflows < maxOversizeWarnings {
				Overflows++
			}
			step = 0
		}

		if step != 0 {
			if a.clkTail >= 0 {
				mid := a.clkTail + (total-a.clkTail)/2
				for k := a.clkTail; k < mid; k++ {
					setStepBit(req.Buf, k, a, true)
				}
			}
			a.clkTail = total
			a.Direction = step

			activeLevel := a.StepActiveHigh
			b0 = util.SetBit(b0, uint(a.StepBit), activeLevel)

			dirHigh := step < 0 // active level marks negative direction, per rtstepper_encode
			if !a.DirActiveHigh {
				dirHigh = !dirHigh
			}
			b0 = util.SetBit(b0, uint(a.DirBit), dirHigh)
			b1 = util.SetBit(b1, uint(a.DirBit), dirHigh)
		}

		a.MasterIndex += step
	}

	req.Buf[total] = b0
	req.Buf[total+1] = b1
	req.Len += 2
}

func setStepBit(buf []byte, idx int, a *Axis, active bool) {
	level := a.StepActiveHigh
	if !active {
		level = !a.StepActiveHigh
	}
	buf[idx] = util.SetBit(buf[idx], uint(a.StepBit), level)
}

// FinalizePulses stretches every axis's outstanding pulse (clkTail != -1)
// to its 50% duty-cycle midpoint against the request's final length, then
// clears clkTail, since no further step will arrive in this request to
// trigger the usual retro-write. Call this when the request is about to be
// enqueued for transfer.
func FinalizePulses(axes []*Axis, req *Request) {
	total := req.Len
	for _, a := range axes {
		if a.clkTail < 0 {
			continue
		}
		mid := a.clkTail + (total-a.clkTail)/2
		for k := a.clkTail; k < mid; k++ {
			setStepBit(req.Buf, k, a, true)
		}
		a.clkTail = -1
	}
}

// NewAxis returns an Axis with no pins wired (clkTail cleared) and
// MasterIndex/Direction reset to zero, as at boot.
func NewAxis(name string) *Axis {
	return &Axis{Name: name, StepBit: -1, DirBit: -1, clkTail: -1}
}

func roundHalfAwayFromZero(x float64) float64 {
	if x >= 0 {
		return float64(int64(x + 0.5))
	}
	return float64(int64(x - 0.5))
}
