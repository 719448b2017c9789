package monitoring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/hooking"
	"github.com/sarchlab/wifisim/sim/timing"
)

// Metrics exposes simulation counters to Prometheus.
type Metrics struct {
	gatherer prometheus.Gatherer

	EventsExecuted prometheus.Counter
	VirtualTime    prometheus.Gauge
	Packets        *prometheus.CounterVec
	Drops          *prometheus.CounterVec
	PacketDelay    prometheus.Histogram
}

// NewMetrics registers the simulation metrics against the provided
// registerer. A nil registerer means the default one. Registering twice
// against the same registerer reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wifisim_events_executed_total",
		Help: "Number of events handled by the engine.",
	})
	events, err := registerCounter(reg, events, "wifisim_events_executed_total")
	if err != nil {
		return nil, err
	}

	vtime := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wifisim_virtual_time_seconds",
		Help: "Virtual time of the last handled event.",
	})
	vtime, err = registerGauge(reg, vtime, "wifisim_virtual_time_seconds")
	if err != nil {
		return nil, err
	}

	packets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifisim_packets_total",
		Help: "Packets seen by devices, by direction.",
	}, []string{"direction"})
	packets, err = registerCounterVec(reg, packets, "wifisim_packets_total")
	if err != nil {
		return nil, err
	}

	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifisim_packet_drops_total",
		Help: "Packets discarded by devices, by reason.",
	}, []string{"reason"})
	drops, err = registerCounterVec(reg, drops, "wifisim_packet_drops_total")
	if err != nil {
		return nil, err
	}

	delay := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wifisim_packet_delay_seconds",
		Help:    "One-way virtual delay of delivered packets.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
	})
	delay, err = registerHistogram(reg, delay, "wifisim_packet_delay_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:       gatherer,
		EventsExecuted: events,
		VirtualTime:    vtime,
		Packets:        packets,
		Drops:          drops,
		PacketDelay:    delay,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

// Func implements hooking.Hook. It accepts both engine and device hooks.
func (m *Metrics) Func(ctx hooking.HookCtx) {
	if m == nil {
		return
	}

	switch ctx.Pos {
	case timing.HookPosAfterEvent:
		m.observeEvent(ctx)
	case network.HookPosDeviceTx:
		m.Packets.WithLabelValues("tx").Inc()
	case network.HookPosDeviceRx:
		m.Packets.WithLabelValues("rx").Inc()
		m.observeDelay(ctx)
	case network.HookPosDeviceForward:
		m.Packets.WithLabelValues("forward").Inc()
	case network.HookPosDeviceDrop:
		detail, _ := ctx.Detail.(network.HookDetail)
		m.Drops.WithLabelValues(detail.Reason.String()).Inc()
	}
}

func (m *Metrics) observeEvent(ctx hooking.HookCtx) {
	m.EventsExecuted.Inc()

	if evt, ok := ctx.Item.(timing.Event); ok {
		m.VirtualTime.Set(evt.Time())
	}
}

func (m *Metrics) observeDelay(ctx hooking.HookCtx) {
	p, ok := ctx.Item.(network.Packet)
	if !ok {
		return
	}

	detail, _ := ctx.Detail.(network.HookDetail)
	m.PacketDelay.Observe(detail.Now - p.SentAt)
}

// Instrument attaches the metrics to the engine and to every device of the
// nodes.
func (m *Metrics) Instrument(e timing.Engine, nodes ...*network.Node) {
	if e != nil {
		e.AcceptHook(m)
	}

	for _, n := range nodes {
		for _, d := range n.Devices() {
			d.AcceptHook(m)
		}
	}
}

func registerHistogram(
	reg prometheus.Registerer,
	hist prometheus.Histogram,
	name string,
) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(
	reg prometheus.Registerer,
	counter prometheus.Counter,
	name string,
) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(
	reg prometheus.Registerer,
	gauge prometheus.Gauge,
	name string,
) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounterVec(
	reg prometheus.Registerer,
	vec *prometheus.CounterVec,
	name string,
) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
