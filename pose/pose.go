// Package pose implements the Cartesian/rotary pose type and the parametric
// line and circle geometry the trajectory planner interpolates along.
package pose

import "math"

// Pose is a machine position: three translational axes, three rotary axes,
// and three additional translational axes (U, V, W) carried for ganged or
// auxiliary coordinates.
type Pose struct {
	X, Y, Z float64
	A, B, C float64
	U, V, W float64
}

// Tran returns the translational (X, Y, Z) component as a 3-vector.
func (p Pose) Tran() Vec3 {
	return Vec3{p.X, p.Y, p.Z}
}

// ABC returns the rotary (A, B, C) component as a 3-vector.
func (p Pose) ABC() Vec3 {
	return Vec3{p.A, p.B, p.C}
}

// WithTran returns p with its translational component replaced.
func (p Pose) WithTran(v Vec3) Pose {
	p.X, p.Y, p.Z = v.X, v.Y, v.Z
	return p
}

// WithABC returns p with its rotary component replaced.
func (p Pose) WithABC(v Vec3) Pose {
	p.A, p.B, p.C = v.X, v.Y, v.Z
	return p
}

// Add returns the element-wise sum of two poses.
func (p Pose) Add(o Pose) Pose {
	return Pose{
		X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z,
		A: p.A + o.A, B: p.B + o.B, C: p.C + o.C,
		U: p.U + o.U, V: p.V + o.V, W: p.W + o.W,
	}
}

// Sub returns the element-wise difference p - o.
func (p Pose) Sub(o Pose) Pose {
	return Pose{
		X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z,
		A: p.A - o.A, B: p.B - o.B, C: p.C - o.C,
		U: p.U - o.U, V: p.V - o.V, W: p.W - o.W,
	}
}

// Vec3 is a 3-element Cartesian vector, used for both translation and
// for the rotary ABC component treated as a second, companion line.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Mag returns the Euclidean length of v.
func (v Vec3) Mag() float64 {
	return math.Sqrt(v.Dot(v))
}

// Line is a parametric straight-line segment between two poses, used both
// for the translational component of a motion and for its rotary (ABC)
// companion.
type Line struct {
	Start, End Pose
	uVec       Vec3 // unit direction, translational
	length     float64
}

// NewLine builds a Line from start and end poses, precomputing its unit
// direction and length.
func NewLine(start, end Pose) Line {
	d := end.Tran().Sub(start.Tran())
	length := d.Mag()
	u := Vec3{}
	if length > 0 {
		u = d.Scale(1 / length)
	}
	return Line{Start: start, End: end, uVec: u, length: length}
}

// Length returns the translational arc length of the line.
func (l Line) Length() float64 {
	return l.length
}

// UnitVec returns the translational unit direction vector.
func (l Line) UnitVec() Vec3 {
	return l.uVec
}

// Point returns the translational pose at arc-length progress u along
// [0, Length()]. u is not clamped; callers are expected to keep it in range.
func (l Line) Point(u float64) Pose {
	if l.length <= 0 {
		return l.Start
	}
	return l.Start.WithTran(l.Start.Tran().Add(l.uVec.Scale(u)))
}

// Circle is a parametric circular arc in 3-space, defined by a center,
// normal, start/end pose, and a signed swept angle (allowing full turns).
type Circle struct {
	Center, Normal Vec3
	Start, End     Pose
	radius         float64
	angle          float64 // signed, may exceed +/-2*pi for multi-turn arcs
	xHat, yHat     Vec3    // orthonormal basis spanning the circle's plane
}

// NewCircle builds a Circle given its center, normal, start/end pose, and
// the number of additional full turns (turn=0 is a single arc from start
// to end; turn>0 adds that many extra full revolutions in the arc's
// direction).
func NewCircle(start, end Pose, center, normal Vec3, turn int) Circle {
	n := normal
	if m := n.Mag(); m > 0 {
		n = n.Scale(1 / m)
	}
	rStart := start.Tran().Sub(center)
	radius := rStart.Mag()

	xHat := Vec3{}
	if radius > 0 {
		xHat = rStart.Scale(1 / radius)
	}
	yHat := n.Cross(xHat)

	rEnd := end.Tran().Sub(center)
	var angle float64
	if radius > 0 {
		cx := rEnd.Dot(xHat)
		cy := rEnd.Dot(yHat)
		angle = math.Atan2(cy, cx)
		if angle < 0 {
			angle += 2 * math.Pi
		}
	}
	angle += 2 * math.Pi * float64(turn)

	return Circle{
		Center: center, Normal: n, Start: start, End: end,
		radius: radius, angle: angle, xHat: xHat, yHat: yHat,
	}
}

// Radius returns the circle's radius.
func (c Circle) Radius() float64 {
	return c.radius
}

// Length returns the swept arc length (radius * |angle|).
func (c Circle) Length() float64 {
	return c.radius * math.Abs(c.angle)
}

// Point returns the translational pose at arc-length progress u along
// [0, Length()].
func (c Circle) Point(u float64) Pose {
	if c.radius <= 0 || c.angle == 0 {
		return c.Start
	}
	theta := u / c.radius
	if c.angle < 0 {
		theta = -theta
	}
	offset := c.xHat.Scale(c.radius * math.Cos(theta)).Add(c.yHat.Scale(c.radius * math.Sin(theta)))
	return c.Start.WithTran(c.Center.Add(offset))
}
