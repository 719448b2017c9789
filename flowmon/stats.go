package flowmon

import (
	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/timing"
)

// State is the life cycle stage of a flow.
type State int

// Flow states.
const (
	StateUnseen State = iota
	StateActive
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StateActive:
		return "active"
	case StateFinalized:
		return "finalized"
	default:
		return "invalid"
	}
}

// FlowStats holds the counters of one flow.
type FlowStats struct {
	Key     network.FlowKey
	Purpose network.Purpose
	State   State

	TxPackets uint64
	TxBytes   uint64
	RxPackets uint64
	RxBytes   uint64

	// LostPackets is TxPackets - RxPackets at the time the stats were taken.
	LostPackets uint64

	DelaySum  timing.VTimeInSec
	JitterSum timing.VTimeInSec
	LastDelay timing.VTimeInSec

	// HopSum adds up the hop count of every received packet.
	HopSum uint64

	// TimesForwarded counts relays observed on intermediate nodes.
	TimesForwarded uint64

	Drops map[network.DropReason]uint64

	TimeFirstTx timing.VTimeInSec
	TimeLastTx  timing.VTimeInSec
	TimeFirstRx timing.VTimeInSec
	TimeLastRx  timing.VTimeInSec

	DelayHistogram  *Histogram
	JitterHistogram *Histogram
}

// MeanDelay is DelaySum / RxPackets.
func (s FlowStats) MeanDelay() Mean {
	return meanOf(s.DelaySum, s.RxPackets)
}

// MeanJitter is JitterSum / (RxPackets - 1), as the first packet has no
// predecessor.
func (s FlowStats) MeanJitter() Mean {
	if s.RxPackets < 2 {
		return Undefined
	}

	return meanOf(s.JitterSum, s.RxPackets-1)
}

// MeanHopCount is the average number of hops of the received packets. A
// packet that was never forwarded travels one hop.
func (s FlowStats) MeanHopCount() Mean {
	m := meanOf(float64(s.HopSum), s.RxPackets)
	if !m.Defined {
		return m
	}

	return Mean{Value: m.Value + 1, Defined: true}
}

// LossRatio is LostPackets / TxPackets.
func (s FlowStats) LossRatio() Mean {
	return meanOf(float64(s.LostPackets), s.TxPackets)
}

// MeanPacketSize is RxBytes / RxPackets.
func (s FlowStats) MeanPacketSize() Mean {
	return meanOf(float64(s.RxBytes), s.RxPackets)
}

// RxThroughput is the received bits per second between the first and the
// last arrival.
func (s FlowStats) RxThroughput() Mean {
	return rate(s.RxBytes, s.TimeLastRx-s.TimeFirstRx)
}

// TxOfferedLoad is the transmitted bits per second between the first and
// the last transmission.
func (s FlowStats) TxOfferedLoad() Mean {
	return rate(s.TxBytes, s.TimeLastTx-s.TimeFirstTx)
}

func rate(bytes uint64, duration timing.VTimeInSec) Mean {
	if duration <= 0 {
		return Undefined
	}

	return Mean{Value: float64(bytes*8) / duration, Defined: true}
}

func (s FlowStats) clone() FlowStats {
	c := s

	c.Drops = make(map[network.DropReason]uint64, len(s.Drops))
	for k, v := range s.Drops {
		c.Drops[k] = v
	}

	c.DelayHistogram = s.DelayHistogram.Clone()
	c.JitterHistogram = s.JitterHistogram.Clone()

	return c
}
