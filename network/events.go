package network

import "github.com/sarchlab/wifisim/sim/timing"

// deliverEvent brings a packet to a receiving device.
type deliverEvent struct {
	*timing.EventBase

	packet Packet
}

func newDeliverEvent(
	t timing.VTimeInSec,
	to *Device,
	p Packet,
) *deliverEvent {
	return &deliverEvent{
		EventBase: timing.NewEventBase(t, to),
		packet:    p,
	}
}

// drainEvent lets a device start the next queued transmission.
type drainEvent struct {
	*timing.EventBase
}
