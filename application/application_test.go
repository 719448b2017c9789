package application

import (
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/timing"
)

var _ = Describe("Applications", func() {
	var (
		engine *timing.SerialEngine
		a, b   *network.Node
	)

	build := func(rate float64) {
		engine = timing.NewSerialEngine()

		host := func(name, prefix string) *network.Node {
			return network.MakeNodeBuilder().
				WithEngine(engine).
				WithDevice(network.DeviceSpec{
					Name:     "Wifi",
					Prefix:   netip.MustParsePrefix(prefix),
					DataRate: rate,
				}).
				Build(name)
		}

		a = host("A", "10.0.0.1/24")
		b = host("B", "10.0.0.2/24")

		ch := network.MakeChannelBuilder().
			WithEngine(engine).
			WithDelayModel(network.ConstantDelay{Latency: 0.01}).
			Build("Medium")
		ch.Attach(a.Device(0))
		ch.Attach(b.Device(0))
	}

	install := func(apps ...Application) {
		for _, app := range apps {
			Expect(app.Install()).To(Succeed())
		}
	}

	It("should send at a constant bit rate", func() {
		build(0)

		server := NewUDPServer("Sink", b, 9)
		source, err := NewOnOffSource("Cbr", a, OnOffConfig{
			Window:     Window{Start: 1, Stop: 2},
			Remote:     b.Addr(),
			RemotePort: 9,
			PacketSize: 100,
			DataRate:   8000,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(source.Interval()).To(BeNumerically("~", 0.1, 1e-12))
		install(server, source)

		Expect(engine.Run()).To(Succeed())
		Expect(source.Stats().Sent).To(Equal(uint64(10)))
		Expect(source.Stats().Bytes).To(Equal(uint64(1000)))
		Expect(server.Received()).To(Equal(uint64(10)))
		Expect(server.ReceivedBytes()).To(Equal(uint64(1000)))
		Expect(server.Lost()).To(BeZero())
	})

	It("should pause during off periods", func() {
		build(0)

		server := NewUDPServer("Sink", b, 9)
		source, err := NewOnOffSource("Cbr", a, OnOffConfig{
			Window:     Window{Start: 0, Stop: 2},
			Remote:     b.Addr(),
			RemotePort: 9,
			PacketSize: 100,
			DataRate:   8000,
			OnTime:     0.5,
			OffTime:    0.5,
		})
		Expect(err).NotTo(HaveOccurred())
		install(server, source)

		Expect(engine.Run()).To(Succeed())
		Expect(server.Received()).To(Equal(uint64(10)))
	})

	It("should stop after the maximum number of packets", func() {
		build(0)

		server := NewUDPServer("Sink", b, 9)
		client, err := NewUDPClient("Client", a, UDPClientConfig{
			Window:     Window{Start: 1},
			Remote:     b.Addr(),
			RemotePort: 9,
			MaxPackets: 5,
			Interval:   1,
			PacketSize: 100,
		})
		Expect(err).NotTo(HaveOccurred())
		install(server, client)

		Expect(engine.Run()).To(Succeed())
		Expect(client.Stats().Sent).To(Equal(uint64(5)))
		Expect(server.Received()).To(Equal(uint64(5)))
		Expect(engine.CurrentTime()).To(BeNumerically("~", 5.01, 1e-9))
	})

	It("should retry when the device is busy", func() {
		build(8000)

		server := NewUDPServer("Sink", b, 9)
		cfg := UDPClientConfig{
			Window:     Window{Start: 1},
			Remote:     b.Addr(),
			RemotePort: 9,
			MaxPackets: 1,
			Interval:   1,
			PacketSize: 1000,
		}
		first, err := NewUDPClient("First", a, cfg)
		Expect(err).NotTo(HaveOccurred())
		second, err := NewUDPClient("Second", a, cfg)
		Expect(err).NotTo(HaveOccurred())
		install(server, first, second)

		Expect(engine.Run()).To(Succeed())
		Expect(first.Stats().Retries).To(BeZero())
		Expect(second.Stats().Retries).To(Equal(uint64(1)))
		Expect(second.Stats().Sent).To(Equal(uint64(1)))
		Expect(server.Received()).To(Equal(uint64(2)))
		Expect(engine.CurrentTime()).To(BeNumerically("~", 3.01, 1e-9))
	})

	It("should infer losses from sequence gaps", func() {
		build(0)
		server := NewUDPServer("Sink", b, 9)

		for _, seq := range []uint64{0, 1, 3, 6} {
			Expect(server.Receive(network.Packet{Seq: seq, Size: 10}, 0)).
				To(Succeed())
		}

		Expect(server.Received()).To(Equal(uint64(4)))
		Expect(server.Lost()).To(Equal(uint64(3)))
	})

	It("should measure echo round trips", func() {
		build(0)

		server := NewEchoServer("Echo", b, 9)
		client, err := NewEchoClient("Ping", a, EchoClientConfig{
			Window:     Window{Start: 0.001},
			Remote:     b.Addr(),
			RemotePort: 9,
			MaxPackets: 2,
			Interval:   0.5,
			PacketSize: 10,
		})
		Expect(err).NotTo(HaveOccurred())
		install(server, client)

		Expect(engine.Run()).To(Succeed())
		Expect(server.Echoed()).To(Equal(uint64(2)))

		rtts := client.RoundTrips()
		Expect(rtts).To(HaveLen(2))
		for _, rtt := range rtts {
			Expect(rtt).To(BeNumerically("~", 0.02, 1e-9))
		}
	})

	It("should reject invalid configurations", func() {
		build(0)

		_, err := NewOnOffSource("Cbr", a, OnOffConfig{PacketSize: 100})
		Expect(err).To(HaveOccurred())

		_, err = NewUDPClient("Client", a, UDPClientConfig{
			Window:     Window{Start: 2, Stop: 1},
			Interval:   1,
			PacketSize: 10,
		})
		Expect(err).To(HaveOccurred())

		_, err = NewEchoClient("Ping", a, EchoClientConfig{PacketSize: 10})
		Expect(err).To(HaveOccurred())
	})

	It("should give every source its own port", func() {
		build(0)

		cfg := UDPClientConfig{Interval: 1, PacketSize: 10}
		c1, err := NewUDPClient("One", a, cfg)
		Expect(err).NotTo(HaveOccurred())
		c2, err := NewUDPClient("Two", a, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(c1.cfg.LocalPort).To(Equal(network.FirstEphemeralPort))
		Expect(c2.cfg.LocalPort).To(Equal(network.FirstEphemeralPort + 1))
	})
})
