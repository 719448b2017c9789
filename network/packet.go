// Package network models nodes, their devices and the shared channels that
// carry packets between them.
package network

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/wifisim/sim/timing"
)

// Protocol is the IP protocol number carried by a packet.
type Protocol uint8

// Supported protocols.
const (
	ProtocolUDP Protocol = 17
	ProtocolTCP Protocol = 6
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "UDP"
	case ProtocolTCP:
		return "TCP"
	default:
		return fmt.Sprintf("Proto(%d)", uint8(p))
	}
}

// Purpose tags the role of the traffic a packet belongs to.
type Purpose int

// Traffic roles.
const (
	PurposeData Purpose = iota
	PurposeEcho
)

func (p Purpose) String() string {
	switch p {
	case PurposeData:
		return "data"
	case PurposeEcho:
		return "echo"
	default:
		return fmt.Sprintf("purpose(%d)", int(p))
	}
}

// FlowKey identifies a directed stream of packets.
type FlowKey struct {
	Src      netip.Addr
	Dst      netip.Addr
	Protocol Protocol
	SrcPort  uint16
	DstPort  uint16
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d",
		k.Protocol, k.Src, k.SrcPort, k.Dst, k.DstPort)
}

// Reverse returns the key of the opposite direction.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{
		Src:      k.Dst,
		Dst:      k.Src,
		Protocol: k.Protocol,
		SrcPort:  k.DstPort,
		DstPort:  k.SrcPort,
	}
}

// Packet is a unit of data moving through the network. Packets are passed by
// value, so a forwarded copy never changes what the sender observed.
type Packet struct {
	ID       string
	Src      netip.Addr
	Dst      netip.Addr
	Protocol Protocol
	SrcPort  uint16
	DstPort  uint16
	Purpose  Purpose

	// Size is the packet size in bytes.
	Size int

	// Seq is an application level sequence number.
	Seq uint64

	// SentAt is stamped by the device that originates the packet.
	SentAt timing.VTimeInSec

	// Hops counts how many times the packet has been forwarded.
	Hops int

	// NextHop is the link-level destination. The zero value addresses every
	// device on the channel.
	NextHop netip.Addr

	Payload []byte
}

// FlowKey returns the flow the packet belongs to.
func (p Packet) FlowKey() FlowKey {
	return FlowKey{
		Src:      p.Src,
		Dst:      p.Dst,
		Protocol: p.Protocol,
		SrcPort:  p.SrcPort,
		DstPort:  p.DstPort,
	}
}

// Broadcast is the L3 address that every node accepts.
var Broadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})
