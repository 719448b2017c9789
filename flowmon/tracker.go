// Package flowmon keeps per-flow packet statistics.
package flowmon

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/timing"
)

// A Tracker counts packets per flow. Flows appear on their first observed
// packet. Taking a snapshot finalizes the tracker; later updates are
// ignored.
type Tracker struct {
	flows     map[network.FlowKey]*FlowStats
	order     []network.FlowKey
	finalized bool

	delayBinWidth  float64
	jitterBinWidth float64

	logger      logrus.FieldLogger
	lateUpdates uint64
}

// Builder can build trackers.
type Builder struct {
	delayBinWidth  float64
	jitterBinWidth float64
	logger         logrus.FieldLogger
}

// MakeBuilder returns a Builder with 1 ms histogram bins.
func MakeBuilder() Builder {
	return Builder{
		delayBinWidth:  timing.Millisecond,
		jitterBinWidth: timing.Millisecond,
		logger:         logrus.StandardLogger(),
	}
}

// WithDelayBinWidth sets the delay histogram bin width in seconds.
func (b Builder) WithDelayBinWidth(w float64) Builder {
	b.delayBinWidth = w
	return b
}

// WithJitterBinWidth sets the jitter histogram bin width in seconds.
func (b Builder) WithJitterBinWidth(w float64) Builder {
	b.jitterBinWidth = w
	return b
}

// WithLogger sets where late updates are reported.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.logger = l
	return b
}

// Build creates a tracker.
func (b Builder) Build() *Tracker {
	return &Tracker{
		flows:          make(map[network.FlowKey]*FlowStats),
		delayBinWidth:  b.delayBinWidth,
		jitterBinWidth: b.jitterBinWidth,
		logger:         b.logger,
	}
}

// NewTracker creates a tracker with default settings.
func NewTracker() *Tracker {
	return MakeBuilder().Build()
}

func (t *Tracker) lookup(key network.FlowKey, p network.Packet) *FlowStats {
	s, ok := t.flows[key]
	if ok {
		return s
	}

	s = &FlowStats{
		Key:             key,
		Purpose:         p.Purpose,
		State:           StateActive,
		Drops:           make(map[network.DropReason]uint64),
		DelayHistogram:  NewHistogram(t.delayBinWidth),
		JitterHistogram: NewHistogram(t.jitterBinWidth),
	}
	t.flows[key] = s
	t.order = append(t.order, key)

	return s
}

func (t *Tracker) rejectLate(what string, key network.FlowKey) bool {
	if !t.finalized {
		return false
	}

	t.lateUpdates++
	if t.lateUpdates == 1 {
		t.logger.WithFields(logrus.Fields{
			"update": what,
			"flow":   key.String(),
		}).Warn("flow tracker is finalized, ignoring updates")
	}

	return true
}

// OnTx records a packet leaving its source. The packet carries its send
// timestamp.
func (t *Tracker) OnTx(key network.FlowKey, p network.Packet) {
	if t.rejectLate("tx", key) {
		return
	}

	s := t.lookup(key, p)
	if s.TxPackets == 0 {
		s.TimeFirstTx = p.SentAt
	}

	s.TxPackets++
	s.TxBytes += uint64(p.Size)
	s.TimeLastTx = p.SentAt
}

// OnRx records a packet arriving at its destination at time now.
func (t *Tracker) OnRx(
	key network.FlowKey,
	p network.Packet,
	now timing.VTimeInSec,
) {
	if t.rejectLate("rx", key) {
		return
	}

	s := t.lookup(key, p)
	delay := now - p.SentAt

	if s.RxPackets > 0 {
		jitter := math.Abs(delay - s.LastDelay)
		s.JitterSum += jitter
		s.JitterHistogram.AddValue(jitter)
	} else {
		s.TimeFirstRx = now
	}

	s.DelayHistogram.AddValue(delay)
	s.DelaySum += delay
	s.LastDelay = delay
	s.RxPackets++
	s.RxBytes += uint64(p.Size)
	s.HopSum += uint64(p.Hops)
	s.TimeLastRx = now
}

// OnForward records that an intermediate node relayed a packet.
func (t *Tracker) OnForward(key network.FlowKey, p network.Packet) {
	if t.rejectLate("forward", key) {
		return
	}

	t.lookup(key, p).TimesForwarded++
}

// OnDrop records why a packet was discarded.
func (t *Tracker) OnDrop(
	key network.FlowKey,
	p network.Packet,
	reason network.DropReason,
) {
	if t.rejectLate("drop", key) {
		return
	}

	t.lookup(key, p).Drops[reason]++
}

// Finalize freezes the tracker.
func (t *Tracker) Finalize() {
	if t.finalized {
		return
	}

	t.finalized = true
	for _, s := range t.flows {
		s.State = StateFinalized
	}
}

// Finalized tells if the tracker accepts no more updates.
func (t *Tracker) Finalized() bool {
	return t.finalized
}

// LateUpdates returns how many updates arrived after finalization.
func (t *Tracker) LateUpdates() uint64 {
	return t.lateUpdates
}

// State returns the life cycle stage of a flow.
func (t *Tracker) State(key network.FlowKey) State {
	s, ok := t.flows[key]
	if !ok {
		return StateUnseen
	}

	return s.State
}

// Keys returns the flows in the order they were first observed.
func (t *Tracker) Keys() []network.FlowKey {
	return append([]network.FlowKey(nil), t.order...)
}

// Stats returns a copy of the stats of one flow without finalizing.
func (t *Tracker) Stats(key network.FlowKey) (FlowStats, error) {
	s, ok := t.flows[key]
	if !ok {
		return FlowStats{}, fmt.Errorf("%w: %s", ErrUnknownFlow, key)
	}

	return t.export(s), nil
}

// Live returns a copy of every flow without finalizing.
func (t *Tracker) Live() map[network.FlowKey]FlowStats {
	out := make(map[network.FlowKey]FlowStats, len(t.flows))
	for k, s := range t.flows {
		out[k] = t.export(s)
	}

	return out
}

// Snapshot finalizes the tracker and returns the stats of every flow.
func (t *Tracker) Snapshot() map[network.FlowKey]FlowStats {
	t.Finalize()
	return t.Live()
}

func (t *Tracker) export(s *FlowStats) FlowStats {
	c := s.clone()

	c.LostPackets = 0
	if c.TxPackets > c.RxPackets {
		c.LostPackets = c.TxPackets - c.RxPackets
	}

	return c
}
