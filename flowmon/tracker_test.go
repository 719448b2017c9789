package flowmon

import (
	"io"
	"math"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/timing"
)

var testKey = network.FlowKey{
	Src:      netip.MustParseAddr("10.0.0.1"),
	Dst:      netip.MustParseAddr("10.0.0.2"),
	Protocol: network.ProtocolUDP,
	SrcPort:  49153,
	DstPort:  9,
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

func packetAt(sentAt timing.VTimeInSec) network.Packet {
	return network.Packet{
		Src:      testKey.Src,
		Dst:      testKey.Dst,
		Protocol: testKey.Protocol,
		SrcPort:  testKey.SrcPort,
		DstPort:  testKey.DstPort,
		Size:     100,
		SentAt:   sentAt,
	}
}

var _ = Describe("Tracker", func() {
	var tracker *Tracker

	BeforeEach(func() {
		tracker = MakeBuilder().WithLogger(quietLogger()).Build()
	})

	It("should report unknown flows", func() {
		_, err := tracker.Stats(testKey)
		Expect(err).To(MatchError(ErrUnknownFlow))
		Expect(tracker.State(testKey)).To(Equal(StateUnseen))
	})

	It("should count lost packets at snapshot time", func() {
		for i := 0; i < 10; i++ {
			tracker.OnTx(testKey, packetAt(timing.VTimeInSec(i)))
		}

		for i := 0; i < 8; i++ {
			tracker.OnRx(testKey, packetAt(timing.VTimeInSec(i)),
				timing.VTimeInSec(i)+0.002)
		}

		live, err := tracker.Stats(testKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(live.State).To(Equal(StateActive))

		stats := tracker.Snapshot()[testKey]
		Expect(stats.TxPackets).To(Equal(uint64(10)))
		Expect(stats.RxPackets).To(Equal(uint64(8)))
		Expect(stats.LostPackets).To(Equal(uint64(2)))
		Expect(stats.TxBytes).To(Equal(uint64(1000)))
		Expect(stats.RxBytes).To(Equal(uint64(800)))
		Expect(stats.MeanDelay().Defined).To(BeTrue())
		Expect(stats.MeanDelay().Value).To(BeNumerically("~", 0.002, 1e-12))
		Expect(stats.LossRatio().Value).To(BeNumerically("~", 0.2, 1e-12))
		Expect(stats.MeanHopCount().Value).To(Equal(1.0))
		Expect(stats.State).To(Equal(StateFinalized))
	})

	It("should report undefined means without receptions", func() {
		tracker.OnTx(testKey, packetAt(1))

		stats := tracker.Snapshot()[testKey]
		Expect(stats.RxPackets).To(BeZero())
		Expect(stats.LostPackets).To(Equal(uint64(1)))
		Expect(stats.MeanDelay()).To(Equal(Undefined))
		Expect(stats.MeanJitter()).To(Equal(Undefined))
		Expect(stats.MeanHopCount()).To(Equal(Undefined))
		Expect(stats.RxThroughput()).To(Equal(Undefined))
		Expect(stats.MeanDelay().String()).To(Equal("undefined"))

		_, err := Divide(stats.DelaySum, stats.RxPackets)
		Expect(err).To(MatchError(ErrDivisionUndefined))
	})

	It("should sum the difference between consecutive delays", func() {
		delays := []timing.VTimeInSec{0.010, 0.012, 0.009, 0.009}
		for i, d := range delays {
			sent := timing.VTimeInSec(i)
			tracker.OnTx(testKey, packetAt(sent))
			tracker.OnRx(testKey, packetAt(sent), sent+d)
		}

		stats, err := tracker.Stats(testKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.JitterSum).To(BeNumerically("~", 0.005, 1e-9))
		Expect(stats.MeanJitter().Value).To(BeNumerically("~", 0.005/3, 1e-9))
		Expect(stats.LastDelay).To(BeNumerically("~", 0.009, 1e-9))
		Expect(stats.DelayHistogram.Total()).To(Equal(uint64(4)))
		Expect(stats.JitterHistogram.Total()).To(Equal(uint64(3)))
	})

	It("should average hop counts of forwarded packets", func() {
		p := packetAt(0)
		tracker.OnTx(testKey, p)
		tracker.OnTx(testKey, p)

		p.Hops = 1
		tracker.OnForward(testKey, p)
		tracker.OnForward(testKey, p)
		tracker.OnRx(testKey, p, 0.01)
		tracker.OnRx(testKey, packetAt(0), 0.01)

		stats, _ := tracker.Stats(testKey)
		Expect(stats.TimesForwarded).To(Equal(uint64(2)))
		Expect(stats.MeanHopCount().Value).To(BeNumerically("~", 1.5, 1e-12))
	})

	It("should count drops by reason", func() {
		tracker.OnDrop(testKey, packetAt(0), network.DropChannelLoss)
		tracker.OnDrop(testKey, packetAt(0), network.DropChannelLoss)
		tracker.OnDrop(testKey, packetAt(0), network.DropQueueFull)

		stats, _ := tracker.Stats(testKey)
		Expect(stats.Drops[network.DropChannelLoss]).To(Equal(uint64(2)))
		Expect(stats.Drops[network.DropQueueFull]).To(Equal(uint64(1)))
	})

	It("should ignore updates after the snapshot", func() {
		tracker.OnTx(testKey, packetAt(0))
		first := tracker.Snapshot()

		tracker.OnTx(testKey, packetAt(1))
		tracker.OnRx(testKey, packetAt(1), 1.5)

		Expect(tracker.Finalized()).To(BeTrue())
		Expect(tracker.LateUpdates()).To(Equal(uint64(2)))
		Expect(tracker.Snapshot()).To(Equal(first))
	})

	It("should not let snapshots alias the tracker", func() {
		tracker.OnTx(testKey, packetAt(0))
		tracker.OnDrop(testKey, packetAt(0), network.DropNoRoute)

		live := tracker.Live()
		s := live[testKey]
		s.Drops[network.DropNoRoute] = 100

		again, _ := tracker.Stats(testKey)
		Expect(again.Drops[network.DropNoRoute]).To(Equal(uint64(1)))
	})

	It("should keep the order of first appearance", func() {
		other := testKey.Reverse()
		tracker.OnRx(other, packetAt(0), 1)
		tracker.OnTx(testKey, packetAt(0))

		Expect(tracker.Keys()).To(Equal([]network.FlowKey{other, testKey}))
	})

	It("should measure throughput over the arrival span", func() {
		for i := 0; i < 11; i++ {
			t := timing.VTimeInSec(i) * 0.1
			tracker.OnTx(testKey, packetAt(t))
			tracker.OnRx(testKey, packetAt(t), t+0.01)
		}

		stats, _ := tracker.Stats(testKey)
		Expect(stats.RxThroughput().Value).To(BeNumerically("~", 8800, 1e-6))
		Expect(stats.TxOfferedLoad().Value).To(BeNumerically("~", 8800, 1e-6))
	})
})

var _ = Describe("Histogram", func() {
	It("should bin samples", func() {
		h := NewHistogram(0.001)
		h.AddValue(0.0005)
		h.AddValue(0.0015)
		h.AddValue(0.0016)
		h.AddValue(-1)

		Expect(h.NBins()).To(Equal(2))
		Expect(h.Counts).To(Equal([]uint64{2, 2}))
		Expect(h.BinCenter(1)).To(BeNumerically("~", 0.0015, 1e-12))
	})

	It("should clamp samples past the last bin", func() {
		h := NewHistogram(0.5)
		h.AddValue(1e6)
		h.AddValue(math.Inf(1))
		h.AddValue(0.5 * (MaxBins - 2))

		Expect(h.NBins()).To(Equal(MaxBins))
		Expect(h.Counts[MaxBins-1]).To(Equal(uint64(2)))
		Expect(h.Counts[MaxBins-2]).To(Equal(uint64(1)))
		Expect(h.Overflow).To(Equal(uint64(2)))
		Expect(h.Total()).To(Equal(uint64(3)))
		Expect(h.Clone().Overflow).To(Equal(uint64(2)))
	})

	It("should compute quantiles", func() {
		h := NewHistogram(1)
		for i := 0; i < 10; i++ {
			h.AddValue(float64(i))
		}

		Expect(h.Quantile(0.5).Value).To(BeNumerically("~", 4.5, 1e-12))
		Expect(h.Quantile(1).Value).To(BeNumerically("~", 9.5, 1e-12))
		Expect(h.StdDev().Defined).To(BeTrue())
		Expect(NewHistogram(1).Quantile(0.5)).To(Equal(Undefined))
	})
})
