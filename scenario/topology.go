package scenario

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/wifisim/application"
	"github.com/sarchlab/wifisim/flowmon"
	"github.com/sarchlab/wifisim/mobility"
	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/naming"
	"github.com/sarchlab/wifisim/sim/rng"
	"github.com/sarchlab/wifisim/sim/timing"
)

// Topology is a built scenario: access points sharing one wireless channel
// with the stations, and an optional remote host wired to the first access
// point.
type Topology struct {
	Engine  *timing.SerialEngine
	RNG     *rng.Partitioned
	Tracker *flowmon.Tracker

	Wifi     *network.Channel
	Backhaul *network.Channel

	APs      []*network.Node
	Stations []*network.Node
	Remote   *network.Node

	Apps    []application.Application
	Servers []*application.UDPServer

	matrix *network.MatrixLoss
}

// Nodes returns every node of the topology.
func (t *Topology) Nodes() []*network.Node {
	nodes := make([]*network.Node, 0, len(t.APs)+len(t.Stations)+1)
	nodes = append(nodes, t.APs...)
	nodes = append(nodes, t.Stations...)

	if t.Remote != nil {
		nodes = append(nodes, t.Remote)
	}

	return nodes
}

// Channels returns every channel of the topology.
func (t *Topology) Channels() []*network.Channel {
	if t.Backhaul == nil {
		return []*network.Channel{t.Wifi}
	}

	return []*network.Channel{t.Wifi, t.Backhaul}
}

// Build creates the nodes, channels, routes and applications of the
// configuration. Nothing is scheduled until the applications are installed.
func Build(cfg *Config, logger logrus.FieldLogger) (*Topology, error) {
	wifiPrefix, err := netip.ParsePrefix(cfg.Wifi.Subnet)
	if err != nil {
		return nil, fmt.Errorf("wifi.subnet: %w", err)
	}

	t := &Topology{
		Engine: timing.NewSerialEngine(),
		RNG:    rng.NewPartitioned(cfg.Seed),
	}

	t.Tracker = flowmon.MakeBuilder().WithLogger(logger).Build()

	t.Wifi = network.MakeChannelBuilder().
		WithEngine(t.Engine).
		WithLossModel(t.lossModel(cfg.Channel.Loss)).
		WithDelayModel(t.delayModel(cfg.Channel.Delay)).
		Build("Wifi")

	if err := t.buildWireless(cfg, wifiPrefix); err != nil {
		return nil, err
	}

	if cfg.RemoteHost != nil {
		if err := t.buildRemote(cfg); err != nil {
			return nil, err
		}
	}

	if err := t.setLinkLosses(cfg.Channel.Loss.Links); err != nil {
		return nil, err
	}

	flowmon.MonitorNodes(t.Tracker, t.Nodes()...)

	for i, spec := range cfg.Traffic {
		if err := t.buildTraffic(i, spec); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Topology) lossModel(s LossSpec) network.LossModel {
	switch s.Model {
	case "fixed":
		return network.FixedLoss{
			Probability: s.Probability,
			Rand:        t.RNG.Stream(rng.StreamLoss),
		}
	case "range":
		return network.RangeLoss{MaxRange: s.MaxRange}
	case "matrix":
		t.matrix = network.NewMatrixLoss(s.Probability, t.RNG.Stream(rng.StreamLoss))
		return t.matrix
	default:
		return network.NoLoss{}
	}
}

// setLinkLosses resolves the node names of the matrix links.
func (t *Topology) setLinkLosses(links []LinkLossSpec) error {
	if len(links) == 0 {
		return nil
	}
	if t.matrix == nil {
		return fmt.Errorf("channel.loss.links needs the matrix model")
	}

	byName := make(map[string]*network.Node)
	for _, n := range t.Nodes() {
		byName[n.Name()] = n
	}

	for i, l := range links {
		from, ok := byName[l.From]
		if !ok {
			return fmt.Errorf("channel.loss.links[%d]: unknown node %q", i, l.From)
		}

		to, ok := byName[l.To]
		if !ok {
			return fmt.Errorf("channel.loss.links[%d]: unknown node %q", i, l.To)
		}

		t.matrix.SetLoss(from, to, l.Probability, l.Symmetric)
	}

	return nil
}

func (t *Topology) delayModel(s DelaySpec) network.DelayModel {
	switch s.Model {
	case "constant-speed":
		return network.ConstantSpeedDelay{Speed: s.Speed}
	case "uniform":
		return network.UniformDelay{
			Min:  s.Min,
			Max:  s.Max,
			Rand: t.RNG.Stream(rng.StreamDelay),
		}
	default:
		return network.ConstantDelay{Latency: s.Latency}
	}
}

func (t *Topology) allocator(p PlacementSpec, stream string) mobility.Allocator {
	switch p.Allocator {
	case "disc":
		return &mobility.RandomDiscAllocator{
			Center: toVector(p.Center),
			MaxRho: p.Rho,
			Rand:   t.RNG.Stream(stream),
		}
	default:
		positions := make([]mobility.Vector, 0, len(p.Positions))
		for _, pos := range p.Positions {
			positions = append(positions, toVector(pos))
		}

		return &mobility.ListAllocator{Positions: positions}
	}
}

func toVector(p Position) mobility.Vector {
	return mobility.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// hostAddr returns the n-th host address of the prefix, counting from one.
func hostAddr(prefix netip.Prefix, n int) (netip.Prefix, error) {
	a := prefix.Masked().Addr()
	for i := 0; i < n; i++ {
		a = a.Next()
	}

	if !prefix.Contains(a) {
		return netip.Prefix{}, fmt.Errorf("%s has no host %d", prefix, n)
	}

	return netip.PrefixFrom(a, prefix.Bits()), nil
}

func (t *Topology) buildWireless(cfg *Config, prefix netip.Prefix) error {
	staAlloc := t.allocator(cfg.Stations.Placement, rng.StreamPosition)
	apAlloc := t.allocator(cfg.AccessPoints.Placement, rng.StreamPosition+"_ap")

	// Stations are numbered first, then access points.
	for u := 0; u < cfg.Stations.Count; u++ {
		addr, err := hostAddr(prefix, u+1)
		if err != nil {
			return err
		}

		name := naming.BuildNameWithIndex("", "Sta", u)
		sta := network.MakeNodeBuilder().
			WithEngine(t.Engine).
			WithMobility(t.stationMobility(cfg.Stations.Mobility, name, staAlloc.Next())).
			WithDevice(network.DeviceSpec{
				Name:          "Wifi",
				Prefix:        addr,
				DataRate:      cfg.Wifi.DataRate,
				QueueCapacity: cfg.Wifi.QueueCapacity,
			}).
			Build(name)

		t.Wifi.Attach(sta.Device(0))
		t.Stations = append(t.Stations, sta)
	}

	for i := 0; i < cfg.AccessPoints.Count; i++ {
		addr, err := hostAddr(prefix, cfg.Stations.Count+i+1)
		if err != nil {
			return err
		}

		b := network.MakeNodeBuilder().
			WithEngine(t.Engine).
			WithForwarding(true).
			WithMobility(mobility.ConstantPosition{At: apAlloc.Next()}).
			WithDevice(network.DeviceSpec{
				Name:          "Wifi",
				Prefix:        addr,
				DataRate:      cfg.Wifi.DataRate,
				QueueCapacity: cfg.Wifi.QueueCapacity,
			})

		if cfg.RemoteHost != nil && i == 0 {
			backhaul, err := remotePrefix(cfg, 1)
			if err != nil {
				return err
			}

			b = b.WithDevice(network.DeviceSpec{
				Name:          "Backhaul",
				Prefix:        backhaul,
				DataRate:      cfg.RemoteHost.DataRate,
				QueueCapacity: cfg.Wifi.QueueCapacity,
			})
		}

		ap := b.Build(naming.BuildNameWithIndex("", "AP", i))
		t.Wifi.Attach(ap.Device(0))
		t.APs = append(t.APs, ap)
	}

	for u, sta := range t.Stations {
		sta.AddDefaultRoute(sta.Device(0), t.gateway(u).Addr())
	}

	return nil
}

func remotePrefix(cfg *Config, n int) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(cfg.RemoteHost.Subnet)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("remote_host.subnet: %w", err)
	}

	return hostAddr(prefix, n)
}

// gateway is the access point that serves station u.
func (t *Topology) gateway(u int) *network.Node {
	return t.APs[u%len(t.APs)]
}

func (t *Topology) stationMobility(
	m MobilitySpec,
	name string,
	origin mobility.Vector,
) mobility.Model {
	if m.Model != "random-walk" {
		return mobility.ConstantPosition{At: origin}
	}

	return mobility.NewRandomWalk2D(
		origin,
		m.Speed,
		m.Interval,
		mobility.Rectangle{
			XMin: m.Bounds.XMin, XMax: m.Bounds.XMax,
			YMin: m.Bounds.YMin, YMax: m.Bounds.YMax,
		},
		t.RNG.Stream(rng.StreamMobility+"_"+name),
	)
}

func (t *Topology) buildRemote(cfg *Config) error {
	addr, err := remotePrefix(cfg, 2)
	if err != nil {
		return err
	}

	alloc := t.allocator(cfg.RemoteHost.Placement, rng.StreamPosition+"_remote")

	t.Remote = network.MakeNodeBuilder().
		WithEngine(t.Engine).
		WithMobility(mobility.ConstantPosition{At: alloc.Next()}).
		WithDevice(network.DeviceSpec{
			Name:          "Backhaul",
			Prefix:        addr,
			DataRate:      cfg.RemoteHost.DataRate,
			QueueCapacity: cfg.Wifi.QueueCapacity,
		}).
		Build("RemoteHost")

	ap := t.APs[0]
	apBackhaul := ap.Device(1)

	t.Backhaul = network.MakeChannelBuilder().
		WithEngine(t.Engine).
		WithDelayModel(network.ConstantDelay{Latency: cfg.RemoteHost.Latency}).
		Build("Backhaul")
	t.Backhaul.Attach(apBackhaul)
	t.Backhaul.Attach(t.Remote.Device(0))

	// Only the first access point is wired, so everything on the wireless
	// side is reached through it.
	t.Remote.AddDefaultRoute(t.Remote.Device(0), apBackhaul.Addr())

	for _, other := range t.APs[1:] {
		other.AddRoute(addr.Masked(), other.Device(0), ap.Addr())
	}

	return nil
}

// endpoints returns the source and destination of traffic for station u.
func (t *Topology) endpoints(direction string, u int) (src, dst *network.Node) {
	sta := t.Stations[u]

	far := t.Remote
	if far == nil {
		far = t.gateway(u)
	}

	switch direction {
	case "uplink":
		return sta, far
	case "peer":
		return sta, t.Stations[(u+1)%len(t.Stations)]
	default:
		return far, sta
	}
}

func (t *Topology) buildTraffic(i int, s TrafficSpec) error {
	if s.Direction == "peer" && len(t.Stations) < 2 {
		return nil
	}

	for u := range t.Stations {
		src, dst := t.endpoints(s.Direction, u)

		port := s.Port
		if s.Direction != "downlink" {
			port = s.Port + 1 + uint16(u)
		}

		if err := t.installPair(i, u, s, src, dst, port); err != nil {
			return err
		}
	}

	return nil
}

func (t *Topology) installPair(
	i, u int,
	s TrafficSpec,
	src, dst *network.Node,
	port uint16,
) error {
	window := application.Window{Start: s.Start, Stop: s.Stop}
	clientName := naming.BuildNameWithIndex(src.Name(), "Traffic", i*len(t.Stations)+u)
	serverName := naming.BuildNameWithIndex(dst.Name(), "Sink", i*len(t.Stations)+u)

	var client, server application.Application

	switch s.Kind {
	case "echo":
		server = application.NewEchoServer(serverName, dst, port)

		c, err := application.NewEchoClient(clientName, src, application.EchoClientConfig{
			Window:     window,
			Remote:     dst.Addr(),
			RemotePort: port,
			MaxPackets: s.MaxPackets,
			Interval:   s.Interval,
			PacketSize: s.PacketSize,
		})
		if err != nil {
			return err
		}
		client = c

	case "onoff":
		sink := application.NewUDPServer(serverName, dst, port)
		t.Servers = append(t.Servers, sink)
		server = sink

		c, err := application.NewOnOffSource(clientName, src, application.OnOffConfig{
			Window:     window,
			Remote:     dst.Addr(),
			RemotePort: port,
			PacketSize: s.PacketSize,
			DataRate:   s.DataRate,
			OnTime:     s.OnTime,
			OffTime:    s.OffTime,
			Purpose:    network.PurposeData,
		})
		if err != nil {
			return err
		}
		client = c

	default:
		sink := application.NewUDPServer(serverName, dst, port)
		t.Servers = append(t.Servers, sink)
		server = sink

		c, err := application.NewUDPClient(clientName, src, application.UDPClientConfig{
			Window:     window,
			Remote:     dst.Addr(),
			RemotePort: port,
			MaxPackets: s.MaxPackets,
			Interval:   s.Interval,
			PacketSize: s.PacketSize,
			Purpose:    network.PurposeData,
		})
		if err != nil {
			return err
		}
		client = c
	}

	t.Apps = append(t.Apps, server, client)

	return nil
}

// Install installs every application, servers before their clients.
func (t *Topology) Install() error {
	for _, app := range t.Apps {
		if err := app.Install(); err != nil {
			return fmt.Errorf("installing %s: %w", app.Name(), err)
		}
	}

	return nil
}
