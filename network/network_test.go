package network

import (
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/wifisim/sim/hooking"
	"github.com/sarchlab/wifisim/sim/timing"
)

type arrival struct {
	packet Packet
	at     timing.VTimeInSec
}

type sink struct {
	arrivals []arrival
}

func (s *sink) Receive(p Packet, now timing.VTimeInSec) error {
	s.arrivals = append(s.arrivals, arrival{packet: p, at: now})
	return nil
}

type hookRecorder struct {
	ctxs []hooking.HookCtx
}

func (h *hookRecorder) Func(ctx hooking.HookCtx) {
	h.ctxs = append(h.ctxs, ctx)
}

func (h *hookRecorder) count(pos *hooking.HookPos) int {
	n := 0
	for _, c := range h.ctxs {
		if c.Pos == pos {
			n++
		}
	}

	return n
}

func buildHost(
	engine timing.EventScheduler,
	name, prefix string,
	rate float64,
) *Node {
	return MakeNodeBuilder().
		WithEngine(engine).
		WithDevice(DeviceSpec{
			Name:     "Wifi",
			Prefix:   netip.MustParsePrefix(prefix),
			DataRate: rate,
		}).
		Build(name)
}

func sendAt(
	engine *timing.SerialEngine,
	t timing.VTimeInSec,
	n *Node,
	p Packet,
) {
	_, err := engine.ScheduleFunc(t, func(timing.VTimeInSec) error {
		return n.Send(p)
	})
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Channel", func() {
	var (
		engine  *timing.SerialEngine
		a, b, c *Node
		sinkB   *sink
		sinkC   *sink
	)

	build := func(loss LossModel, delay DelayModel, rate float64) *Channel {
		a = buildHost(engine, "A", "10.0.0.1/24", rate)
		b = buildHost(engine, "B", "10.0.0.2/24", rate)
		c = buildHost(engine, "C", "10.0.0.3/24", rate)

		ch := MakeChannelBuilder().
			WithEngine(engine).
			WithLossModel(loss).
			WithDelayModel(delay).
			Build("Medium")
		ch.Attach(a.Device(0))
		ch.Attach(b.Device(0))
		ch.Attach(c.Device(0))

		sinkB = &sink{}
		sinkC = &sink{}
		Expect(b.Bind(9, sinkB)).To(Succeed())
		Expect(c.Bind(9, sinkC)).To(Succeed())

		return ch
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
	})

	It("should deliver to every other device exactly once", func() {
		build(NoLoss{}, ConstantDelay{Latency: 0.01}, 0)

		sendAt(engine, 1, a, Packet{Dst: Broadcast, DstPort: 9, Size: 100})
		sendAt(engine, 2, a, Packet{Dst: Broadcast, DstPort: 9, Size: 100})

		Expect(engine.Run()).To(Succeed())

		for _, s := range []*sink{sinkB, sinkC} {
			Expect(s.arrivals).To(HaveLen(2))
			Expect(s.arrivals[0].at).To(BeNumerically("~", 1.01, 1e-12))
			Expect(s.arrivals[1].at).To(BeNumerically("~", 2.01, 1e-12))
			Expect(s.arrivals[0].packet.SentAt).To(Equal(timing.VTimeInSec(1)))
		}
	})

	It("should filter frames addressed to another device", func() {
		build(NoLoss{}, ConstantDelay{Latency: 0.01}, 0)

		sendAt(engine, 1, a, Packet{
			Dst:     netip.MustParseAddr("10.0.0.2"),
			DstPort: 9,
			Size:    100,
		})

		Expect(engine.Run()).To(Succeed())
		Expect(sinkB.arrivals).To(HaveLen(1))
		Expect(sinkB.arrivals[0].packet.Src).
			To(Equal(netip.MustParseAddr("10.0.0.1")))
		Expect(sinkC.arrivals).To(BeEmpty())
	})

	It("should deliver nothing with loss probability one", func() {
		ch := build(FixedLoss{Probability: 1}, ConstantDelay{Latency: 0.01}, 0)

		hooks := &hookRecorder{}
		a.Device(0).AcceptHook(hooks)

		for i := 1; i <= 4; i++ {
			sendAt(engine, timing.VTimeInSec(i), a, Packet{
				Dst:     netip.MustParseAddr("10.0.0.2"),
				DstPort: 9,
			})
		}

		Expect(engine.Run()).To(Succeed())
		Expect(sinkB.arrivals).To(BeEmpty())
		Expect(sinkC.arrivals).To(BeEmpty())
		Expect(hooks.count(HookPosDeviceTx)).To(Equal(4))
		Expect(hooks.count(HookPosDeviceDrop)).To(Equal(4))
		Expect(ch.Transmissions()).To(Equal(uint64(4)))
		Expect(ch.Losses()).To(Equal(uint64(8)))
	})

	It("should add the transmission time to the arrival", func() {
		build(NoLoss{}, ConstantDelay{Latency: 0.01}, 8000)

		sendAt(engine, 1, a, Packet{Dst: Broadcast, DstPort: 9, Size: 100})

		Expect(engine.Run()).To(Succeed())
		Expect(sinkB.arrivals).To(HaveLen(1))
		Expect(sinkB.arrivals[0].at).To(BeNumerically("~", 1.11, 1e-12))
	})

	It("should ask the models about every recipient", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		loss := NewMockLossModel(mockCtrl)
		delay := NewMockDelayModel(mockCtrl)
		ch := build(loss, delay, 0)

		loss.EXPECT().Lost(a.Device(0), b.Device(0), gomock.Any()).Return(false)
		loss.EXPECT().Lost(a.Device(0), c.Device(0), gomock.Any()).Return(true)
		delay.EXPECT().Delay(a.Device(0), b.Device(0), gomock.Any()).Return(0.5)

		deliveries := ch.Propagate(a.Device(0), Packet{Dst: Broadcast, DstPort: 9})

		Expect(deliveries).To(HaveLen(2))
		Expect(deliveries[0]).To(Equal(Delivery{
			To: b.Device(0), Delay: 0.5, Delivered: true,
		}))
		Expect(deliveries[1]).To(Equal(Delivery{To: c.Device(0)}))

		Expect(engine.Run()).To(Succeed())
		Expect(sinkB.arrivals).To(HaveLen(1))
		Expect(sinkB.arrivals[0].at).To(BeNumerically("~", 0.5, 1e-12))
	})

	It("should refuse to attach a device twice", func() {
		ch := build(NoLoss{}, ConstantDelay{}, 0)

		Expect(func() { ch.Attach(a.Device(0)) }).To(Panic())
	})
})

var _ = Describe("Device", func() {
	var (
		engine *timing.SerialEngine
		a, b   *Node
		sinkB  *sink
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		a = MakeNodeBuilder().
			WithEngine(engine).
			WithDevice(DeviceSpec{
				Name:          "Wifi",
				Prefix:        netip.MustParsePrefix("10.0.0.1/24"),
				DataRate:      8000,
				QueueCapacity: 1,
			}).
			Build("A")
		b = buildHost(engine, "B", "10.0.0.2/24", 8000)

		ch := MakeChannelBuilder().WithEngine(engine).Build("Medium")
		ch.Attach(a.Device(0))
		ch.Attach(b.Device(0))

		sinkB = &sink{}
		Expect(b.Bind(9, sinkB)).To(Succeed())
	})

	It("should fail the second send while busy", func() {
		dst := netip.MustParseAddr("10.0.0.2")
		p := Packet{Dst: dst, DstPort: 9, Size: 100}

		_, err := engine.ScheduleFunc(1, func(timing.VTimeInSec) error {
			Expect(a.Send(p)).To(Succeed())
			Expect(a.Device(0).IsBusy()).To(BeTrue())
			Expect(a.Send(p)).To(MatchError(ErrChannelBusy))
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.ScheduleFunc(1.2, func(timing.VTimeInSec) error {
			return a.Send(p)
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
		Expect(sinkB.arrivals).To(HaveLen(2))
	})

	It("should not be busy with an unlimited rate", func() {
		c := buildHost(engine, "C", "10.0.1.1/24", 0)
		ch := MakeChannelBuilder().WithEngine(engine).Build("Other")
		ch.Attach(c.Device(0))

		p := Packet{Dst: Broadcast, DstPort: 9, Size: 1500}
		Expect(c.Send(p)).To(Succeed())
		Expect(c.Send(p)).To(Succeed())
	})

	It("should fail when not attached", func() {
		c := buildHost(engine, "C", "10.0.1.1/24", 0)

		err := c.Send(Packet{Dst: Broadcast})
		Expect(err).To(MatchError(ErrNotAttached))
	})

	It("should queue behind the current transmission", func() {
		dev := a.Device(0)
		hooks := &hookRecorder{}
		dev.AcceptHook(hooks)

		dst := netip.MustParseAddr("10.0.0.2")
		p := Packet{Src: dev.Addr(), Dst: dst, NextHop: dst, DstPort: 9, Size: 100}

		Expect(dev.Enqueue(p)).To(Succeed())
		Expect(dev.Enqueue(p)).To(Succeed())
		Expect(dev.QueueLen()).To(Equal(1))
		Expect(dev.Enqueue(p)).To(MatchError(ErrQueueFull))
		Expect(hooks.count(HookPosDeviceDrop)).To(Equal(1))

		Expect(engine.Run()).To(Succeed())
		Expect(sinkB.arrivals).To(HaveLen(2))
		Expect(sinkB.arrivals[0].at).To(BeNumerically("~", 0.1, 1e-12))
		Expect(sinkB.arrivals[1].at).To(BeNumerically("~", 0.2, 1e-12))
		Expect(dev.QueueLen()).To(Equal(0))
	})

	It("should report packets without a receiver", func() {
		hooks := &hookRecorder{}
		b.Device(0).AcceptHook(hooks)

		Expect(a.Send(Packet{
			Dst:     netip.MustParseAddr("10.0.0.2"),
			DstPort: 77,
		})).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(hooks.count(HookPosDeviceDrop)).To(Equal(1))
		detail := hooks.ctxs[0].Detail.(HookDetail)
		Expect(detail.Reason).To(Equal(DropNoReceiver))
	})

	It("should pass receiver errors to the engine", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		r := NewMockReceiver(mockCtrl)
		Expect(b.Bind(10, r)).To(Succeed())

		boom := errorString("boom")
		r.EXPECT().Receive(gomock.Any(), gomock.Any()).Return(boom)

		Expect(a.Send(Packet{
			Dst:     netip.MustParseAddr("10.0.0.2"),
			DstPort: 10,
		})).To(Succeed())
		Expect(engine.Run()).To(MatchError(boom))
	})
})

type errorString string

func (e errorString) Error() string { return string(e) }

var _ = Describe("Node", func() {
	var (
		engine        *timing.SerialEngine
		sta, ap, host *Node
		sinkHost      *sink
		sinkSta       *sink
		apHooks       *hookRecorder
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()

		sta = buildHost(engine, "Sta", "10.1.1.2/24", 0)
		ap = MakeNodeBuilder().
			WithEngine(engine).
			WithForwarding(true).
			WithDevice(DeviceSpec{
				Name:   "Wifi",
				Prefix: netip.MustParsePrefix("10.1.1.1/24"),
			}).
			WithDevice(DeviceSpec{
				Name:          "P2P",
				Prefix:        netip.MustParsePrefix("10.2.2.1/24"),
				DataRate:      1e9,
				QueueCapacity: 100,
			}).
			Build("Ap")
		host = MakeNodeBuilder().
			WithEngine(engine).
			WithDevice(DeviceSpec{
				Name:   "P2P",
				Prefix: netip.MustParsePrefix("10.2.2.2/24"),
			}).
			Build("Host")

		wifi := MakeChannelBuilder().
			WithEngine(engine).
			WithDelayModel(ConstantDelay{Latency: 0.001}).
			Build("Wifi")
		wifi.Attach(sta.Device(0))
		wifi.Attach(ap.Device(0))

		p2p := MakeChannelBuilder().
			WithEngine(engine).
			WithDelayModel(ConstantDelay{Latency: 0.01}).
			Build("Backhaul")
		p2p.Attach(ap.Device(1))
		p2p.Attach(host.Device(0))

		sta.AddDefaultRoute(sta.Device(0), netip.MustParseAddr("10.1.1.1"))
		host.AddDefaultRoute(host.Device(0), netip.MustParseAddr("10.2.2.1"))

		sinkHost = &sink{}
		sinkSta = &sink{}
		Expect(host.Bind(9, sinkHost)).To(Succeed())
		Expect(sta.Bind(9, sinkSta)).To(Succeed())

		apHooks = &hookRecorder{}
		ap.Device(0).AcceptHook(apHooks)
	})

	It("should pick the longest matching prefix", func() {
		r, ok := ap.Lookup(netip.MustParseAddr("10.2.2.9"))
		Expect(ok).To(BeTrue())
		Expect(r.Device).To(BeIdenticalTo(ap.Device(1)))

		r, ok = sta.Lookup(netip.MustParseAddr("10.1.1.7"))
		Expect(ok).To(BeTrue())
		Expect(r.NextHop.IsValid()).To(BeFalse())

		r, ok = sta.Lookup(netip.MustParseAddr("8.8.8.8"))
		Expect(ok).To(BeTrue())
		Expect(r.NextHop).To(Equal(netip.MustParseAddr("10.1.1.1")))
	})

	It("should forward through the access point", func() {
		sendAt(engine, 1, sta, Packet{
			Dst:     host.Addr(),
			DstPort: 9,
			Size:    125,
		})

		Expect(engine.Run()).To(Succeed())

		Expect(sinkHost.arrivals).To(HaveLen(1))
		got := sinkHost.arrivals[0]
		Expect(got.packet.Hops).To(Equal(1))
		Expect(got.packet.Src).To(Equal(sta.Addr()))
		Expect(got.packet.SentAt).To(Equal(timing.VTimeInSec(1)))
		Expect(got.at).To(BeNumerically("~", 1+0.001+1e-6+0.01, 1e-12))
		Expect(apHooks.count(HookPosDeviceForward)).To(Equal(1))
	})

	It("should forward in the other direction", func() {
		sendAt(engine, 1, host, Packet{Dst: sta.Addr(), DstPort: 9})

		Expect(engine.Run()).To(Succeed())
		Expect(sinkSta.arrivals).To(HaveLen(1))
		Expect(sinkSta.arrivals[0].packet.Hops).To(Equal(1))
	})

	It("should fail without a route", func() {
		err := host.Send(Packet{Dst: netip.MustParseAddr("fd00::1")})
		Expect(err).To(MatchError(ErrNoRoute))
	})

	It("should drop forwarded packets without a route", func() {
		sta.AddRoute(netip.MustParsePrefix("192.168.0.0/16"),
			sta.Device(0), netip.MustParseAddr("10.1.1.1"))

		sendAt(engine, 1, sta, Packet{
			Dst:     netip.MustParseAddr("192.168.1.1"),
			DstPort: 9,
		})

		Expect(engine.Run()).To(Succeed())
		Expect(apHooks.count(HookPosDeviceDrop)).To(Equal(1))
	})

	It("should refuse a port twice", func() {
		Expect(host.Bind(9, &sink{})).To(MatchError(ErrPortInUse))
		host.Unbind(9)
		Expect(host.Bind(9, &sink{})).To(Succeed())
	})

	It("should refuse a route over a foreign device", func() {
		Expect(func() {
			sta.AddRoute(netip.MustParsePrefix("0.0.0.0/0"), ap.Device(0),
				netip.Addr{})
		}).To(Panic())
	})
})
