package network

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/wifisim/mobility"
	"github.com/sarchlab/wifisim/sim/naming"
	"github.com/sarchlab/wifisim/sim/timing"
)

// A Receiver consumes packets delivered to a bound port.
type Receiver interface {
	Receive(p Packet, now timing.VTimeInSec) error
}

// Route sends packets for Prefix out of Device. A zero NextHop means the
// destination is on the device's link.
type Route struct {
	Prefix  netip.Prefix
	Device  *Device
	NextHop netip.Addr
}

// A Node is a host, access point or router. Its devices are fixed when it is
// built.
type Node struct {
	naming.NamedBase

	engine     timing.EventScheduler
	devices    []*Device
	routes     []Route
	forwarding bool
	mobility   mobility.Model
	receivers  map[uint16]Receiver
	nextPort   uint16
}

// FirstEphemeralPort is the first port handed out by AllocatePort.
const FirstEphemeralPort uint16 = 49153

// NodeBuilder can build nodes.
type NodeBuilder struct {
	engine     timing.EventScheduler
	devices    []DeviceSpec
	forwarding bool
	mobility   mobility.Model
}

// MakeNodeBuilder returns a NodeBuilder with default parameters.
func MakeNodeBuilder() NodeBuilder {
	return NodeBuilder{
		mobility: mobility.ConstantPosition{},
	}
}

// WithEngine sets the engine that the nodes use.
func (b NodeBuilder) WithEngine(e timing.EventScheduler) NodeBuilder {
	b.engine = e
	return b
}

// WithDevice adds a device to the node.
func (b NodeBuilder) WithDevice(spec DeviceSpec) NodeBuilder {
	b.devices = append(append([]DeviceSpec(nil), b.devices...), spec)
	return b
}

// WithForwarding lets the node relay packets that are not addressed to it.
func (b NodeBuilder) WithForwarding(on bool) NodeBuilder {
	b.forwarding = on
	return b
}

// WithMobility sets how the node moves.
func (b NodeBuilder) WithMobility(m mobility.Model) NodeBuilder {
	b.mobility = m
	return b
}

// Build creates a node with the given name. A connected route is installed
// for every device.
func (b NodeBuilder) Build(name string) *Node {
	if b.engine == nil {
		panic("node " + name + " needs an engine")
	}

	n := &Node{
		NamedBase:  naming.MakeNamedBase(name),
		engine:     b.engine,
		forwarding: b.forwarding,
		mobility:   b.mobility,
		receivers:  make(map[uint16]Receiver),
		nextPort:   FirstEphemeralPort,
	}

	for _, spec := range b.devices {
		d := newDevice(n, spec, b.engine)
		n.devices = append(n.devices, d)
		n.routes = append(n.routes, Route{
			Prefix: spec.Prefix.Masked(),
			Device: d,
		})
	}

	return n
}

// Devices returns the devices of the node.
func (n *Node) Devices() []*Device {
	return n.devices
}

// Device returns the i-th device.
func (n *Node) Device(i int) *Device {
	return n.devices[i]
}

// Addr returns the address of the first device.
func (n *Node) Addr() netip.Addr {
	if len(n.devices) == 0 {
		return netip.Addr{}
	}

	return n.devices[0].Addr()
}

// Position returns where the node is at the given time.
func (n *Node) Position(now timing.VTimeInSec) mobility.Vector {
	return n.mobility.Position(now)
}

// Mobility returns the mobility model of the node.
func (n *Node) Mobility() mobility.Model {
	return n.mobility
}

// Engine returns the scheduler used by the node.
func (n *Node) Engine() timing.EventScheduler {
	return n.engine
}

// AddRoute installs a static route. The device must belong to the node.
func (n *Node) AddRoute(prefix netip.Prefix, dev *Device, nextHop netip.Addr) {
	if dev.node != n {
		panic(fmt.Sprintf("device %s does not belong to %s",
			dev.Name(), n.Name()))
	}

	n.routes = append(n.routes, Route{
		Prefix:  prefix.Masked(),
		Device:  dev,
		NextHop: nextHop,
	})
}

// AddDefaultRoute sends everything without a more specific route to nextHop.
func (n *Node) AddDefaultRoute(dev *Device, nextHop netip.Addr) {
	unspecified := netip.IPv4Unspecified()
	if nextHop.Is6() {
		unspecified = netip.IPv6Unspecified()
	}

	n.AddRoute(netip.PrefixFrom(unspecified, 0), dev, nextHop)
}

// Lookup returns the longest-prefix route to dst.
func (n *Node) Lookup(dst netip.Addr) (Route, bool) {
	best := -1
	var found Route

	for _, r := range n.routes {
		if !r.Prefix.Contains(dst) {
			continue
		}

		if r.Prefix.Bits() > best {
			best = r.Prefix.Bits()
			found = r
		}
	}

	return found, best >= 0
}

// Bind registers the receiver of packets addressed to the port.
func (n *Node) Bind(port uint16, r Receiver) error {
	if _, taken := n.receivers[port]; taken {
		return fmt.Errorf("%w: %s port %d", ErrPortInUse, n.Name(), port)
	}

	n.receivers[port] = r

	return nil
}

// AllocatePort returns an unbound port from the ephemeral range.
func (n *Node) AllocatePort() uint16 {
	for {
		port := n.nextPort

		n.nextPort++
		if n.nextPort == 0 {
			n.nextPort = FirstEphemeralPort
		}

		if _, taken := n.receivers[port]; !taken {
			return port
		}
	}
}

// Unbind removes the receiver of a port.
func (n *Node) Unbind(port uint16) {
	delete(n.receivers, port)
}

// Send routes a packet and transmits it. The source address defaults to the
// address of the outgoing device. The error is ErrChannelBusy if the
// outgoing device is transmitting.
func (n *Node) Send(p Packet) error {
	r, dev, err := n.prepare(&p)
	if err != nil {
		return err
	}

	p.NextHop = r
	return dev.Send(p)
}

// OutgoingDevice returns the device a packet to dst leaves from.
func (n *Node) OutgoingDevice(dst netip.Addr) (*Device, error) {
	r, ok := n.Lookup(dst)
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, n.Name(), dst)
	}

	return r.Device, nil
}

func (n *Node) prepare(p *Packet) (netip.Addr, *Device, error) {
	if p.Dst == Broadcast {
		if len(n.devices) == 0 {
			return netip.Addr{}, nil, fmt.Errorf("%w: %s has no device",
				ErrNoRoute, n.Name())
		}

		if !p.Src.IsValid() {
			p.Src = n.devices[0].Addr()
		}

		return Broadcast, n.devices[0], nil
	}

	r, ok := n.Lookup(p.Dst)
	if !ok {
		return netip.Addr{}, nil, fmt.Errorf("%w: %s to %s",
			ErrNoRoute, n.Name(), p.Dst)
	}

	if !p.Src.IsValid() {
		p.Src = r.Device.Addr()
	}

	nextHop := r.NextHop
	if !nextHop.IsValid() {
		nextHop = p.Dst
	}

	return nextHop, r.Device, nil
}

func (n *Node) isLocal(addr netip.Addr) bool {
	if addr == Broadcast {
		return true
	}

	for _, d := range n.devices {
		if d.Addr() == addr {
			return true
		}
	}

	return false
}

func (n *Node) receive(in *Device, p Packet) error {
	if n.isLocal(p.Dst) {
		return n.deliverLocal(in, p)
	}

	if !n.forwarding {
		return nil
	}

	return n.forward(in, p)
}

func (n *Node) deliverLocal(in *Device, p Packet) error {
	now := n.engine.CurrentTime()

	r, ok := n.receivers[p.DstPort]
	if !ok {
		in.invoke(HookPosDeviceDrop, p, DropNoReceiver)
		return nil
	}

	in.invoke(HookPosDeviceRx, p, DropNone)

	return r.Receive(p, now)
}

func (n *Node) forward(in *Device, p Packet) error {
	nextHop, out, err := n.prepare(&p)
	if err != nil {
		in.invoke(HookPosDeviceDrop, p, DropNoRoute)
		return nil
	}

	p.Hops++
	p.NextHop = nextHop

	in.invoke(HookPosDeviceForward, p, DropNone)

	// The drop hook already fired on a queue overflow.
	_ = out.Enqueue(p)

	return nil
}
