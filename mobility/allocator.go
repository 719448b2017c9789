package mobility

import (
	"math"

	"github.com/sarchlab/wifisim/sim/rng"
)

// An Allocator hands out initial positions, one per call.
type Allocator interface {
	Next() Vector
}

// ListAllocator returns the listed positions in order and wraps around.
type ListAllocator struct {
	Positions []Vector

	next int
}

// Next returns the next position in the list.
func (a *ListAllocator) Next() Vector {
	if len(a.Positions) == 0 {
		return Vector{}
	}

	p := a.Positions[a.next%len(a.Positions)]
	a.next++

	return p
}

// RandomDiscAllocator draws positions around Center with a radius uniform in
// [0, MaxRho] and a uniform angle. Points are therefore denser near the
// center.
type RandomDiscAllocator struct {
	Center Vector
	MaxRho float64
	Rand   rng.Source
}

// Next returns a random position in the disc.
func (a *RandomDiscAllocator) Next() Vector {
	theta := a.Rand.Float64() * 2 * math.Pi
	rho := a.Rand.Float64() * a.MaxRho

	return Vector{
		X: a.Center.X + rho*math.Cos(theta),
		Y: a.Center.Y + rho*math.Sin(theta),
		Z: a.Center.Z,
	}
}
