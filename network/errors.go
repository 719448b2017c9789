package network

import "errors"

var (
	// ErrChannelBusy is returned when a device is asked to send while it is
	// still transmitting.
	ErrChannelBusy = errors.New("network: channel busy")

	// ErrNotAttached is returned when a device without a channel sends.
	ErrNotAttached = errors.New("network: device not attached")

	// ErrNoRoute is returned when a node has no route to the destination.
	ErrNoRoute = errors.New("network: no route to host")

	// ErrQueueFull is returned when a device transmit queue overflows.
	ErrQueueFull = errors.New("network: transmit queue full")

	// ErrPortInUse is returned when two receivers bind the same port.
	ErrPortInUse = errors.New("network: port in use")
)
