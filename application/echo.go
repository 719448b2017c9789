package application

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/timing"
)

// EchoServer sends every packet it receives back to its source.
type EchoServer struct {
	sender

	port   uint16
	echoed uint64
}

// NewEchoServer creates an echo server that will listen on the port.
func NewEchoServer(name string, node *network.Node, port uint16) *EchoServer {
	return &EchoServer{sender: newSender(name, node), port: port}
}

// Install binds the port.
func (s *EchoServer) Install() error {
	return s.node.Bind(s.port, s)
}

// Receive replies to the sender.
func (s *EchoServer) Receive(p network.Packet, _ timing.VTimeInSec) error {
	s.echoed++

	return s.transmit(network.Packet{
		Dst:      p.Src,
		Protocol: p.Protocol,
		SrcPort:  p.DstPort,
		DstPort:  p.SrcPort,
		Purpose:  network.PurposeEcho,
		Size:     p.Size,
		Seq:      p.Seq,
	})
}

// Echoed returns the number of packets echoed.
func (s *EchoServer) Echoed() uint64 {
	return s.echoed
}

// EchoClientConfig configures an EchoClient.
type EchoClientConfig struct {
	Window

	Remote     netip.Addr
	RemotePort uint16
	LocalPort  uint16
	MaxPackets uint64
	Interval   timing.VTimeInSec
	PacketSize int
}

// EchoClient sends echo requests and measures the round trip time of the
// replies.
type EchoClient struct {
	sender

	cfg    EchoClientConfig
	seq    uint64
	sentAt map[uint64]timing.VTimeInSec
	rtts   []timing.VTimeInSec
}

// NewEchoClient creates an echo client on the node.
func NewEchoClient(
	name string,
	node *network.Node,
	cfg EchoClientConfig,
) (*EchoClient, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive", name)
	}

	if cfg.PacketSize <= 0 {
		return nil, fmt.Errorf("%s: packet size must be positive", name)
	}

	if cfg.MaxPackets == 0 {
		cfg.MaxPackets = 1
	}

	if err := cfg.Window.validate(name); err != nil {
		return nil, err
	}

	if cfg.LocalPort == 0 {
		cfg.LocalPort = node.AllocatePort()
	}

	return &EchoClient{
		sender: newSender(name, node),
		cfg:    cfg,
		sentAt: make(map[uint64]timing.VTimeInSec),
	}, nil
}

// Install binds the local port and schedules the first request.
func (c *EchoClient) Install() error {
	if err := c.node.Bind(c.cfg.LocalPort, c); err != nil {
		return err
	}

	_, err := c.scheduleAt(c.cfg.Start, c.send)

	return err
}

func (c *EchoClient) send(now timing.VTimeInSec) error {
	if now >= c.cfg.stopTime() || c.seq >= c.cfg.MaxPackets {
		return nil
	}

	p := network.Packet{
		Dst:      c.cfg.Remote,
		Protocol: network.ProtocolUDP,
		SrcPort:  c.cfg.LocalPort,
		DstPort:  c.cfg.RemotePort,
		Purpose:  network.PurposeEcho,
		Size:     c.cfg.PacketSize,
		Seq:      c.seq,
	}
	c.sentAt[c.seq] = now
	c.seq++

	if err := c.transmit(p); err != nil {
		return err
	}

	if c.seq >= c.cfg.MaxPackets {
		return nil
	}

	_, err := c.scheduleAt(now+c.cfg.Interval, c.send)

	return err
}

// Receive records the round trip time of a reply.
func (c *EchoClient) Receive(p network.Packet, now timing.VTimeInSec) error {
	sent, ok := c.sentAt[p.Seq]
	if !ok {
		return nil
	}

	delete(c.sentAt, p.Seq)
	c.rtts = append(c.rtts, now-sent)

	return nil
}

// RoundTrips returns the measured round trip times.
func (c *EchoClient) RoundTrips() []timing.VTimeInSec {
	return append([]timing.VTimeInSec(nil), c.rtts...)
}
