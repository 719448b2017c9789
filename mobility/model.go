package mobility

import (
	"fmt"
	"math"

	"github.com/sarchlab/wifisim/sim/rng"
	"github.com/sarchlab/wifisim/sim/timing"
)

// Model tells where something is at a given simulated time.
type Model interface {
	Position(now timing.VTimeInSec) Vector
}

// ConstantPosition never moves.
type ConstantPosition struct {
	At Vector
}

// Position returns the fixed position.
func (m ConstantPosition) Position(timing.VTimeInSec) Vector {
	return m.At
}

// RandomWalk2D moves at a constant speed in a direction that is redrawn
// uniformly every Interval, bouncing off the bounds. Z stays constant.
//
// The walk is advanced lazily when Position is queried, so queries must not
// go back in time further than the current leg.
type RandomWalk2D struct {
	speed    float64
	interval timing.VTimeInSec
	bounds   Rectangle
	rand     rng.Source

	legStart    timing.VTimeInSec
	legOrigin   Vector
	legVelocity Vector
}

// NewRandomWalk2D creates a walk that starts at origin at time zero.
func NewRandomWalk2D(
	origin Vector,
	speed float64,
	interval timing.VTimeInSec,
	bounds Rectangle,
	source rng.Source,
) *RandomWalk2D {
	if interval <= 0 {
		panic(fmt.Sprintf("random walk interval must be positive, got %v",
			interval))
	}

	m := &RandomWalk2D{
		speed:    speed,
		interval: interval,
		bounds:   bounds,
		rand:     source,
	}

	m.legOrigin = Vector{
		X: reflect(origin.X, bounds.XMin, bounds.XMax),
		Y: reflect(origin.Y, bounds.YMin, bounds.YMax),
		Z: origin.Z,
	}
	m.drawVelocity()

	return m
}

// Position returns the position at the given time.
func (m *RandomWalk2D) Position(now timing.VTimeInSec) Vector {
	for now >= m.legStart+m.interval {
		end := m.legStart + m.interval
		m.legOrigin = m.at(end)
		m.legStart = end
		m.drawVelocity()
	}

	return m.at(now)
}

func (m *RandomWalk2D) at(t timing.VTimeInSec) Vector {
	dt := t - m.legStart
	if dt < 0 {
		dt = 0
	}

	return Vector{
		X: reflect(m.legOrigin.X+m.legVelocity.X*dt,
			m.bounds.XMin, m.bounds.XMax),
		Y: reflect(m.legOrigin.Y+m.legVelocity.Y*dt,
			m.bounds.YMin, m.bounds.YMax),
		Z: m.legOrigin.Z,
	}
}

func (m *RandomWalk2D) drawVelocity() {
	theta := m.rand.Float64() * 2 * math.Pi
	m.legVelocity = Vector{
		X: m.speed * math.Cos(theta),
		Y: m.speed * math.Sin(theta),
	}
}
