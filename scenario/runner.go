package scenario

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/wifisim/flowmon"
	"github.com/sarchlab/wifisim/monitoring"
	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/timing"
)

// Options wires optional observers into a run.
type Options struct {
	Logger  logrus.FieldLogger
	Metrics *monitoring.Metrics
	Monitor *monitoring.Monitor

	// TraceEvents logs every event at trace level.
	TraceEvents bool
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}

	return o.Logger
}

// FlowReport summarizes one flow at the end of a run.
type FlowReport struct {
	ID      int
	Key     network.FlowKey
	Purpose network.Purpose

	TxPackets   uint64
	RxPackets   uint64
	LostPackets uint64
	TxBytes     uint64
	RxBytes     uint64

	// Throughput and OfferedLoad are in Mbps over the statistics window.
	Throughput  float64
	OfferedLoad float64

	LossPercent  flowmon.Mean
	MeanDelay    flowmon.Mean
	MeanJitter   flowmon.Mean
	MeanHopCount flowmon.Mean
	DelayP50     flowmon.Mean
	DelayP95     flowmon.Mean

	TimesForwarded uint64
	Drops          map[network.DropReason]uint64

	DelayHistogram  *flowmon.Histogram
	JitterHistogram *flowmon.Histogram
}

// SinkReport is what a packet sink counted at the application layer.
type SinkReport struct {
	Name string
	Addr netip.Addr
	Port uint16

	Received      uint64
	ReceivedBytes uint64
	// Lost counts sequence numbers that never arrived below the highest
	// one received.
	Lost uint64

	// Throughput is in Mbps over the whole simulation time.
	Throughput float64
}

// Result is what one run produced.
type Result struct {
	Name     string
	Run      string
	Seed     int64
	Stations int
	DataRate float64

	SimTime     float64
	WindowStart float64
	WindowStop  float64

	EndTime     timing.VTimeInSec
	Events      uint64
	LateUpdates uint64

	Flows []FlowReport
	Sinks []SinkReport
}

// Flow returns the report of the flow with the given key.
func (r *Result) Flow(key network.FlowKey) (FlowReport, bool) {
	for _, f := range r.Flows {
		if f.Key == key {
			return f, true
		}
	}

	return FlowReport{}, false
}

// Run builds the scenario, simulates it up to the simulation time and
// reports every flow.
func Run(cfg *Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.logger().WithField("run", cfg.Run)

	topo, err := Build(cfg, log)
	if err != nil {
		return nil, err
	}

	if err := topo.Install(); err != nil {
		return nil, err
	}

	attach(topo, cfg, opts)

	log.WithFields(logrus.Fields{
		"stations": len(topo.Stations),
		"aps":      len(topo.APs),
		"apps":     len(topo.Apps),
		"sim_time": cfg.SimTime,
	}).Info("simulation started")

	if err := topo.Engine.RunUntil(cfg.SimTime); err != nil {
		return nil, fmt.Errorf("run %s: %w", cfg.Run, err)
	}

	topo.Engine.Finished()

	result := report(cfg, topo)

	log.WithFields(logrus.Fields{
		"events": result.Events,
		"flows":  len(result.Flows),
		"now":    result.EndTime,
	}).Info("simulation finished")

	return result, nil
}

func attach(topo *Topology, cfg *Config, opts Options) {
	if opts.TraceEvents {
		topo.Engine.AcceptHook(timing.NewEventLogger(opts.logger()))
	}

	if opts.Metrics != nil {
		opts.Metrics.Instrument(topo.Engine, topo.Nodes()...)
	}

	if opts.Monitor == nil {
		return
	}

	opts.Monitor.RegisterEngine(topo.Engine, cfg.SimTime)
	for _, n := range topo.Nodes() {
		opts.Monitor.RegisterNode(n)
	}
	for _, c := range topo.Channels() {
		opts.Monitor.RegisterChannel(c)
	}
	opts.Monitor.RegisterTracker(topo.Tracker)
}

// RunAll runs every sweep point of the configuration in order.
func RunAll(cfg *Config, opts Options) ([]*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var results []*Result

	for _, run := range cfg.Expand() {
		r, err := Run(run, opts)
		if err != nil {
			return results, err
		}

		results = append(results, r)
	}

	return results, nil
}

func report(cfg *Config, topo *Topology) *Result {
	stats := topo.Tracker.Snapshot()
	window := cfg.WindowStop() - cfg.Window.Start

	r := &Result{
		Name:        cfg.Name,
		Run:         cfg.Run,
		Seed:        cfg.Seed,
		Stations:    cfg.Stations.Count,
		DataRate:    cfg.Wifi.DataRate,
		SimTime:     cfg.SimTime,
		WindowStart: cfg.Window.Start,
		WindowStop:  cfg.WindowStop(),
		EndTime:     topo.Engine.CurrentTime(),
		Events:      topo.Engine.ExecutedEvents(),
		LateUpdates: topo.Tracker.LateUpdates(),
	}

	for i, key := range topo.Tracker.Keys() {
		s := stats[key]

		r.Flows = append(r.Flows, FlowReport{
			ID:             i + 1,
			Key:            key,
			Purpose:        s.Purpose,
			TxPackets:      s.TxPackets,
			RxPackets:      s.RxPackets,
			LostPackets:    s.LostPackets,
			TxBytes:        s.TxBytes,
			RxBytes:        s.RxBytes,
			Throughput:     float64(s.RxBytes*8) / window / 1e6,
			OfferedLoad:    float64(s.TxBytes*8) / window / 1e6,
			LossPercent:    s.LossRatio().Scale(100),
			MeanDelay:      s.MeanDelay(),
			MeanJitter:     s.MeanJitter(),
			MeanHopCount:   s.MeanHopCount(),
			DelayP50:       s.DelayHistogram.Quantile(0.5),
			DelayP95:       s.DelayHistogram.Quantile(0.95),
			TimesForwarded: s.TimesForwarded,
			Drops:          s.Drops,

			DelayHistogram:  s.DelayHistogram,
			JitterHistogram: s.JitterHistogram,
		})
	}

	for _, sink := range topo.Servers {
		r.Sinks = append(r.Sinks, SinkReport{
			Name:          sink.Name(),
			Addr:          sink.Node().Addr(),
			Port:          sink.Port(),
			Received:      sink.Received(),
			ReceivedBytes: sink.ReceivedBytes(),
			Lost:          sink.Lost(),
			Throughput:    float64(sink.ReceivedBytes()*8) / cfg.SimTime / 1e6,
		})
	}

	return r
}
