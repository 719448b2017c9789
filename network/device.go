package network

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/wifisim/mobility"
	"github.com/sarchlab/wifisim/sim/hooking"
	"github.com/sarchlab/wifisim/sim/id"
	"github.com/sarchlab/wifisim/sim/naming"
	"github.com/sarchlab/wifisim/sim/timing"
)

// DeviceSpec describes a device to be built together with its node.
type DeviceSpec struct {
	// Name is the element name under the node, e.g. "Wifi".
	Name string

	// Prefix is the device address and the subnet it is connected to.
	Prefix netip.Prefix

	// DataRate is the transmit rate in bits per second. Zero means packets
	// take no time to transmit.
	DataRate float64

	// QueueCapacity bounds the packets waiting behind a transmission when
	// the node forwards. Zero disables queueing.
	QueueCapacity int
}

// A Device is a network interface. It belongs to one node and attaches to one
// channel. It transmits one packet at a time.
type Device struct {
	naming.NamedBase
	*hooking.HookableBase

	node     *Node
	prefix   netip.Prefix
	dataRate float64
	engine   timing.EventScheduler
	channel  *Channel

	busyUntil timing.VTimeInSec

	queue         []Packet
	queueCapacity int
	drainPending  bool
}

func newDevice(node *Node, spec DeviceSpec, engine timing.EventScheduler) *Device {
	if !spec.Prefix.IsValid() {
		panic(fmt.Sprintf("device %s needs a valid address", spec.Name))
	}

	if spec.DataRate < 0 {
		panic(fmt.Sprintf("device %s has a negative data rate", spec.Name))
	}

	d := &Device{
		NamedBase:     naming.MakeNamedBase(naming.BuildName(node.Name(), spec.Name)),
		HookableBase:  hooking.NewHookableBase(),
		node:          node,
		prefix:        spec.Prefix,
		dataRate:      spec.DataRate,
		engine:        engine,
		queueCapacity: spec.QueueCapacity,
	}

	return d
}

// Node returns the node that owns the device.
func (d *Device) Node() *Node {
	return d.node
}

// Addr returns the device address.
func (d *Device) Addr() netip.Addr {
	return d.prefix.Addr()
}

// Prefix returns the device address with its subnet length.
func (d *Device) Prefix() netip.Prefix {
	return d.prefix
}

// Channel returns the channel the device is attached to, or nil.
func (d *Device) Channel() *Channel {
	return d.channel
}

// DataRate returns the transmit rate in bits per second.
func (d *Device) DataRate() float64 {
	return d.dataRate
}

// Position returns where the device is at the current time.
func (d *Device) Position() mobility.Vector {
	return d.node.Position(d.engine.CurrentTime())
}

// IsBusy tells if the device is still transmitting.
func (d *Device) IsBusy() bool {
	return d.engine.CurrentTime() < d.busyUntil
}

// TxEnd returns the time the current, or last, transmission completes.
func (d *Device) TxEnd() timing.VTimeInSec {
	return d.busyUntil
}

// QueueLen returns the number of packets waiting to be transmitted.
func (d *Device) QueueLen() int {
	return len(d.queue)
}

// QueueCapacity returns how many packets may wait behind a transmission.
func (d *Device) QueueCapacity() int {
	return d.queueCapacity
}

// TransmissionTime returns how long it takes to put size bytes on the
// channel.
func (d *Device) TransmissionTime(size int) timing.VTimeInSec {
	if d.dataRate == 0 {
		return 0
	}

	return timing.VTimeInSec(float64(size*8) / d.dataRate)
}

// Send transmits a packet. It fails with ErrChannelBusy if a previous
// transmission has not completed.
//
// A packet that has never been forwarded is stamped with the current time
// and given an ID.
func (d *Device) Send(p Packet) error {
	if d.channel == nil {
		return fmt.Errorf("%w: %s", ErrNotAttached, d.Name())
	}

	now := d.engine.CurrentTime()
	if now < d.busyUntil {
		return fmt.Errorf("%w: %s busy until %.9f",
			ErrChannelBusy, d.Name(), d.busyUntil)
	}

	if p.Hops == 0 {
		p.SentAt = now
	}

	if p.ID == "" {
		p.ID = id.Generate()
	}

	d.busyUntil = now + d.TransmissionTime(p.Size)

	d.invoke(HookPosDeviceTx, p, DropNone)
	d.channel.Propagate(d, p)

	return nil
}

// Enqueue sends the packet now if the device is idle, or queues it behind
// the current transmission.
func (d *Device) Enqueue(p Packet) error {
	if !d.IsBusy() && len(d.queue) == 0 {
		return d.Send(p)
	}

	if len(d.queue) >= d.queueCapacity {
		d.invoke(HookPosDeviceDrop, p, DropQueueFull)
		return fmt.Errorf("%w: %s", ErrQueueFull, d.Name())
	}

	d.queue = append(d.queue, p)
	d.scheduleDrain()

	return nil
}

func (d *Device) scheduleDrain() {
	if d.drainPending {
		return
	}

	evt := &drainEvent{
		EventBase: timing.NewSecondaryEventBase(d.busyUntil, d),
	}

	if _, err := d.engine.Schedule(evt); err != nil {
		panic(err)
	}

	d.drainPending = true
}

func (d *Device) drain() error {
	d.drainPending = false

	if len(d.queue) == 0 {
		return nil
	}

	if d.IsBusy() {
		d.scheduleDrain()
		return nil
	}

	p := d.queue[0]
	d.queue = d.queue[1:]

	if err := d.Send(p); err != nil {
		return err
	}

	if len(d.queue) > 0 {
		d.scheduleDrain()
	}

	return nil
}

// Handle processes arrivals and transmit-queue events.
func (d *Device) Handle(e timing.Event) error {
	switch e := e.(type) {
	case *deliverEvent:
		return d.receive(e.packet)
	case *drainEvent:
		return d.drain()
	default:
		panic(fmt.Sprintf("device %s cannot handle %T", d.Name(), e))
	}
}

func (d *Device) accepts(p Packet) bool {
	return !p.NextHop.IsValid() || p.NextHop == d.Addr() || p.NextHop == Broadcast
}

func (d *Device) receive(p Packet) error {
	if !d.accepts(p) {
		return nil
	}

	return d.node.receive(d, p)
}

func (d *Device) invoke(pos *hooking.HookPos, p Packet, reason DropReason) {
	if pos == HookPosDeviceDrop {
		logrus.WithFields(logrus.Fields{
			"device": d.Name(),
			"packet": p.ID,
			"flow":   p.FlowKey().String(),
			"reason": reason.String(),
		}).Debug("packet dropped")
	}

	if d.NumHooks() == 0 {
		return
	}

	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    pos,
		Item:   p,
		Detail: HookDetail{Now: d.engine.CurrentTime(), Reason: reason},
	})
}
