package network

import (
	"github.com/sarchlab/wifisim/sim/hooking"
	"github.com/sarchlab/wifisim/sim/timing"
)

// Hook positions fired by devices. The hook item is always a Packet and the
// detail a HookDetail.
var (
	// HookPosDeviceTx fires when a device starts transmitting a packet.
	HookPosDeviceTx = &hooking.HookPos{Name: "DeviceTx"}

	// HookPosDeviceRx fires when a packet addressed to the node arrives.
	HookPosDeviceRx = &hooking.HookPos{Name: "DeviceRx"}

	// HookPosDeviceForward fires when a node relays a packet it received.
	HookPosDeviceForward = &hooking.HookPos{Name: "DeviceForward"}

	// HookPosDeviceDrop fires when a packet is discarded.
	HookPosDeviceDrop = &hooking.HookPos{Name: "DeviceDrop"}
)

// DropReason tells why a packet was discarded.
type DropReason int

// Drop reasons.
const (
	DropNone DropReason = iota
	DropChannelLoss
	DropNoRoute
	DropQueueFull
	DropNoReceiver
)

func (r DropReason) String() string {
	switch r {
	case DropNone:
		return "none"
	case DropChannelLoss:
		return "channel-loss"
	case DropNoRoute:
		return "no-route"
	case DropQueueFull:
		return "queue-full"
	case DropNoReceiver:
		return "no-receiver"
	default:
		return "unknown"
	}
}

// HookDetail is attached to every device hook.
type HookDetail struct {
	Now    timing.VTimeInSec
	Reason DropReason
}
