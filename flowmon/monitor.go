package flowmon

import (
	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/hooking"
)

// deviceHook feeds device events into a tracker.
type deviceHook struct {
	tracker *Tracker
}

// Func dispatches on the hook position.
func (h *deviceHook) Func(ctx hooking.HookCtx) {
	p, ok := ctx.Item.(network.Packet)
	if !ok {
		return
	}

	detail, _ := ctx.Detail.(network.HookDetail)
	key := p.FlowKey()

	switch ctx.Pos {
	case network.HookPosDeviceTx:
		if p.Hops == 0 {
			h.tracker.OnTx(key, p)
		}
	case network.HookPosDeviceRx:
		h.tracker.OnRx(key, p, detail.Now)
	case network.HookPosDeviceForward:
		h.tracker.OnForward(key, p)
	case network.HookPosDeviceDrop:
		h.tracker.OnDrop(key, p, detail.Reason)
	}
}

// Monitor attaches the tracker to a device.
func Monitor(d *network.Device, t *Tracker) {
	d.AcceptHook(&deviceHook{tracker: t})
}

// MonitorNodes attaches the tracker to every device of the nodes.
func MonitorNodes(t *Tracker, nodes ...*network.Node) {
	for _, n := range nodes {
		for _, d := range n.Devices() {
			Monitor(d, t)
		}
	}
}
