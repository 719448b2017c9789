package network

import (
	"math"

	"github.com/sarchlab/wifisim/sim/rng"
	"github.com/sarchlab/wifisim/sim/timing"
)

// A LossModel decides whether a transmission fails to reach a recipient.
type LossModel interface {
	Lost(from, to *Device, p Packet) bool
}

// A DelayModel tells how long a transmission takes to reach a recipient.
type DelayModel interface {
	Delay(from, to *Device, p Packet) timing.VTimeInSec
}

// NoLoss delivers everything.
type NoLoss struct{}

// Lost always returns false.
func (NoLoss) Lost(_, _ *Device, _ Packet) bool {
	return false
}

// FixedLoss drops each transmission independently with a fixed probability.
type FixedLoss struct {
	Probability float64
	Rand        rng.Source
}

// Lost draws against the loss probability. Probabilities of 0 and 1 do not
// consume random numbers.
func (l FixedLoss) Lost(_, _ *Device, _ Packet) bool {
	return bernoulli(l.Probability, l.Rand)
}

func bernoulli(p float64, r rng.Source) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	default:
		return r.Float64() < p
	}
}

// RangeLoss drops transmissions to recipients farther than MaxRange meters.
type RangeLoss struct {
	MaxRange float64
}

// Lost compares the current distance between the devices with the range.
func (l RangeLoss) Lost(from, to *Device, _ Packet) bool {
	return from.Position().DistanceTo(to.Position()) > l.MaxRange
}

type nodePair struct {
	from, to string
}

// MatrixLoss has a loss probability per ordered pair of nodes and a default
// for the others. It can model hidden terminals.
type MatrixLoss struct {
	Default float64
	Rand    rng.Source

	pairs map[nodePair]float64
}

// NewMatrixLoss creates a MatrixLoss with the default probability.
func NewMatrixLoss(defaultProbability float64, r rng.Source) *MatrixLoss {
	return &MatrixLoss{
		Default: defaultProbability,
		Rand:    r,
		pairs:   make(map[nodePair]float64),
	}
}

// SetLoss sets the probability from node a to node b, and back if symmetric.
func (l *MatrixLoss) SetLoss(a, b *Node, probability float64, symmetric bool) {
	l.pairs[nodePair{a.Name(), b.Name()}] = probability
	if symmetric {
		l.pairs[nodePair{b.Name(), a.Name()}] = probability
	}
}

// Probability returns the loss probability between two nodes.
func (l *MatrixLoss) Probability(from, to *Node) float64 {
	if p, ok := l.pairs[nodePair{from.Name(), to.Name()}]; ok {
		return p
	}

	return l.Default
}

// Lost draws against the pair's probability.
func (l *MatrixLoss) Lost(from, to *Device, _ Packet) bool {
	return bernoulli(l.Probability(from.Node(), to.Node()), l.Rand)
}

// ConstantDelay delays every transmission by the same amount.
type ConstantDelay struct {
	Latency timing.VTimeInSec
}

// Delay returns the constant latency.
func (d ConstantDelay) Delay(_, _ *Device, _ Packet) timing.VTimeInSec {
	return d.Latency
}

// SpeedOfLight in meters per second.
const SpeedOfLight = 299792458.0

// ConstantSpeedDelay delays by the distance between the devices divided by a
// propagation speed. A zero Speed means the speed of light.
type ConstantSpeedDelay struct {
	Speed float64
}

// Delay returns distance / speed.
func (d ConstantSpeedDelay) Delay(from, to *Device, _ Packet) timing.VTimeInSec {
	speed := d.Speed
	if speed <= 0 {
		speed = SpeedOfLight
	}

	return from.Position().DistanceTo(to.Position()) / speed
}

// UniformDelay draws the delay uniformly from [Min, Max).
type UniformDelay struct {
	Min, Max timing.VTimeInSec
	Rand     rng.Source
}

// Delay returns a random delay in range.
func (d UniformDelay) Delay(_, _ *Device, _ Packet) timing.VTimeInSec {
	width := math.Max(0, d.Max-d.Min)
	if width == 0 {
		return d.Min
	}

	return d.Min + d.Rand.Float64()*width
}
