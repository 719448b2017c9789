package network

import (
	"fmt"

	"github.com/sarchlab/wifisim/sim/naming"
	"github.com/sarchlab/wifisim/sim/timing"
)

// Delivery is the fate of a transmission at one recipient.
type Delivery struct {
	To        *Device
	Delay     timing.VTimeInSec
	Delivered bool
}

// A Channel is a shared medium. Every transmission reaches all the other
// attached devices, subject to the loss model.
type Channel struct {
	naming.NamedBase

	engine  timing.EventScheduler
	loss    LossModel
	delay   DelayModel
	devices []*Device

	transmissions uint64
	losses        uint64
}

// ChannelBuilder can build channels.
type ChannelBuilder struct {
	engine timing.EventScheduler
	loss   LossModel
	delay  DelayModel
}

// MakeChannelBuilder returns a ChannelBuilder with a lossless, zero-delay
// propagation model.
func MakeChannelBuilder() ChannelBuilder {
	return ChannelBuilder{
		loss:  NoLoss{},
		delay: ConstantDelay{},
	}
}

// WithEngine sets the engine that schedules arrivals.
func (b ChannelBuilder) WithEngine(e timing.EventScheduler) ChannelBuilder {
	b.engine = e
	return b
}

// WithLossModel sets the loss model.
func (b ChannelBuilder) WithLossModel(l LossModel) ChannelBuilder {
	b.loss = l
	return b
}

// WithDelayModel sets the delay model.
func (b ChannelBuilder) WithDelayModel(d DelayModel) ChannelBuilder {
	b.delay = d
	return b
}

// Build creates a channel with the given name.
func (b ChannelBuilder) Build(name string) *Channel {
	if b.engine == nil {
		panic("channel " + name + " needs an engine")
	}

	return &Channel{
		NamedBase: naming.MakeNamedBase(name),
		engine:    b.engine,
		loss:      b.loss,
		delay:     b.delay,
	}
}

// Attach connects a device to the channel. A device can only be attached
// once.
func (c *Channel) Attach(d *Device) {
	if d.channel != nil {
		panic(fmt.Sprintf("device %s is already attached to %s",
			d.Name(), d.channel.Name()))
	}

	d.channel = c
	c.devices = append(c.devices, d)
}

// Devices returns the attached devices.
func (c *Channel) Devices() []*Device {
	return c.devices
}

// Transmissions returns the number of packets propagated on the channel.
func (c *Channel) Transmissions() uint64 {
	return c.transmissions
}

// Losses returns the number of per-recipient losses decided by the loss
// model.
func (c *Channel) Losses() uint64 {
	return c.losses
}

// Propagate decides the fate of a packet at every other attached device and
// schedules an arrival for each one that survives. Arrivals happen at the
// end of the sender's transmission plus the propagation delay.
func (c *Channel) Propagate(from *Device, p Packet) []Delivery {
	c.transmissions++

	start := c.engine.CurrentTime()
	if from.TxEnd() > start {
		start = from.TxEnd()
	}

	deliveries := make([]Delivery, 0, len(c.devices))
	for _, to := range c.devices {
		if to == from {
			continue
		}

		delivery := Delivery{To: to}

		if c.loss.Lost(from, to, p) {
			c.losses++
			deliveries = append(deliveries, delivery)

			if to.accepts(p) {
				from.invoke(HookPosDeviceDrop, p, DropChannelLoss)
			}

			continue
		}

		delivery.Delay = c.delay.Delay(from, to, p)
		delivery.Delivered = true
		deliveries = append(deliveries, delivery)

		evt := newDeliverEvent(start+delivery.Delay, to, p)
		if _, err := c.engine.Schedule(evt); err != nil {
			panic(fmt.Sprintf("channel %s: %v", c.Name(), err))
		}
	}

	return deliveries
}
