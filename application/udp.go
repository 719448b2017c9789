package application

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/naming"
	"github.com/sarchlab/wifisim/sim/timing"
)

// UDPClientConfig configures a UDPClient.
type UDPClientConfig struct {
	Window

	Remote     netip.Addr
	RemotePort uint16
	LocalPort  uint16

	// MaxPackets limits the packets sent. Zero means no limit.
	MaxPackets uint64
	Interval   timing.VTimeInSec
	PacketSize int
	Purpose    network.Purpose
}

// UDPClient sends sequence-numbered packets at a fixed interval.
type UDPClient struct {
	sender

	cfg UDPClientConfig
	seq uint64
}

// NewUDPClient creates a client on the node.
func NewUDPClient(
	name string,
	node *network.Node,
	cfg UDPClientConfig,
) (*UDPClient, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive", name)
	}

	if cfg.PacketSize <= 0 {
		return nil, fmt.Errorf("%s: packet size must be positive", name)
	}

	if err := cfg.Window.validate(name); err != nil {
		return nil, err
	}

	if cfg.LocalPort == 0 {
		cfg.LocalPort = node.AllocatePort()
	}

	return &UDPClient{sender: newSender(name, node), cfg: cfg}, nil
}

// Install schedules the first packet.
func (c *UDPClient) Install() error {
	_, err := c.scheduleAt(c.cfg.Start, c.send)
	return err
}

func (c *UDPClient) send(now timing.VTimeInSec) error {
	if now >= c.cfg.stopTime() {
		return nil
	}

	if c.cfg.MaxPackets > 0 && c.seq >= c.cfg.MaxPackets {
		return nil
	}

	p := network.Packet{
		Dst:      c.cfg.Remote,
		Protocol: network.ProtocolUDP,
		SrcPort:  c.cfg.LocalPort,
		DstPort:  c.cfg.RemotePort,
		Purpose:  c.cfg.Purpose,
		Size:     c.cfg.PacketSize,
		Seq:      c.seq,
	}
	c.seq++

	if err := c.transmit(p); err != nil {
		return err
	}

	if c.cfg.MaxPackets > 0 && c.seq >= c.cfg.MaxPackets {
		return nil
	}

	next := c.cfg.Start + float64(c.seq)*c.cfg.Interval
	if next >= c.cfg.stopTime() {
		return nil
	}

	_, err := c.scheduleAt(next, c.send)

	return err
}

// UDPServer counts the packets arriving on a port and infers losses from
// gaps in their sequence numbers.
type UDPServer struct {
	naming.NamedBase

	node *network.Node
	port uint16

	received   uint64
	bytes      uint64
	highestSeq uint64
	seen       bool
}

// NewUDPServer creates a server that will listen on the port.
func NewUDPServer(name string, node *network.Node, port uint16) *UDPServer {
	return &UDPServer{
		NamedBase: naming.MakeNamedBase(name),
		node:      node,
		port:      port,
	}
}

// Install binds the port.
func (s *UDPServer) Install() error {
	return s.node.Bind(s.port, s)
}

// Receive counts a packet.
func (s *UDPServer) Receive(p network.Packet, _ timing.VTimeInSec) error {
	s.received++
	s.bytes += uint64(p.Size)

	if !s.seen || p.Seq > s.highestSeq {
		s.highestSeq = p.Seq
		s.seen = true
	}

	return nil
}

// Node returns the node the server listens on.
func (s *UDPServer) Node() *network.Node {
	return s.node
}

// Port returns the port the server listens on.
func (s *UDPServer) Port() uint16 {
	return s.port
}

// Received returns the number of packets received.
func (s *UDPServer) Received() uint64 {
	return s.received
}

// ReceivedBytes returns the number of bytes received.
func (s *UDPServer) ReceivedBytes() uint64 {
	return s.bytes
}

// Lost returns the sequence numbers up to the highest seen that never
// arrived.
func (s *UDPServer) Lost() uint64 {
	if !s.seen || s.highestSeq+1 < s.received {
		return 0
	}

	return s.highestSeq + 1 - s.received
}
