// Package mobility places nodes in space and moves them over simulated time.
package mobility

import "math"

// Vector is a position in meters.
type Vector struct {
	X, Y, Z float64
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Norm returns the Euclidean length of the vector.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vector) DistanceTo(o Vector) float64 {
	return v.Sub(o).Norm()
}

// Rectangle bounds movement on the XY plane.
type Rectangle struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Contains reports whether the point lies in the rectangle.
func (r Rectangle) Contains(p Vector) bool {
	return p.X >= r.XMin && p.X <= r.XMax && p.Y >= r.YMin && p.Y <= r.YMax
}

// reflect folds x into [lo, hi] as if it bounced off the edges.
func reflect(x, lo, hi float64) float64 {
	w := hi - lo
	if w <= 0 {
		return lo
	}

	t := math.Mod(x-lo, 2*w)
	if t < 0 {
		t += 2 * w
	}

	if t > w {
		t = 2*w - t
	}

	return lo + t
}
