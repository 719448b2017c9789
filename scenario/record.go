package scenario

import (
	"context"
	"fmt"

	"github.com/sarchlab/wifisim/datarecording"
)

// Tables written by Record.
const (
	FlowTable = "flows"
	SinkTable = "sinks"
	RunTable  = "runs"
)

// FlowRow is the recorded form of a FlowReport. Means are stored as text so
// that undefined values stay distinguishable from zero.
type FlowRow struct {
	Run            string
	Flow           int
	Source         string
	Destination    string
	Protocol       string
	SrcPort        uint16
	DstPort        uint16
	Purpose        string
	TxPackets      uint64
	RxPackets      uint64
	LostPackets    uint64
	TxBytes        uint64
	RxBytes        uint64
	TimesForwarded uint64
	Throughput     float64
	OfferedLoad    float64
	LossPercent    string
	MeanDelay      string
	MeanJitter     string
	MeanHopCount   string
	DelayP95       string
}

// SinkRow is the recorded form of a SinkReport.
type SinkRow struct {
	Run           string
	Sink          string
	Address       string
	Port          uint16
	Received      uint64
	ReceivedBytes uint64
	Lost          uint64
	Throughput    float64
}

// RunRow is the recorded form of a Result without its flows.
type RunRow struct {
	Run         string
	Name        string
	Seed        int64
	Stations    int
	DataRate    float64
	SimTime     float64
	WindowStart float64
	WindowStop  float64
	EndTime     float64
	Events      uint64
	LateUpdates uint64
}

// Record writes the results into the recorder and flushes it.
func Record(recorder datarecording.DataRecorder, results []*Result) error {
	if err := recorder.CreateTable(RunTable, RunRow{}); err != nil {
		return err
	}

	if err := recorder.CreateTable(FlowTable, FlowRow{}); err != nil {
		return err
	}

	if err := recorder.CreateTable(SinkTable, SinkRow{}); err != nil {
		return err
	}

	for _, r := range results {
		err := recorder.InsertData(RunTable, RunRow{
			Run:         r.Run,
			Name:        r.Name,
			Seed:        r.Seed,
			Stations:    r.Stations,
			DataRate:    r.DataRate,
			SimTime:     r.SimTime,
			WindowStart: r.WindowStart,
			WindowStop:  r.WindowStop,
			EndTime:     r.EndTime,
			Events:      r.Events,
			LateUpdates: r.LateUpdates,
		})
		if err != nil {
			return err
		}

		for _, f := range r.Flows {
			if err := recorder.InsertData(FlowTable, toRow(r.Run, f)); err != nil {
				return err
			}
		}

		for _, sink := range r.Sinks {
			err := recorder.InsertData(SinkTable, SinkRow{
				Run:           r.Run,
				Sink:          sink.Name,
				Address:       sink.Addr.String(),
				Port:          sink.Port,
				Received:      sink.Received,
				ReceivedBytes: sink.ReceivedBytes,
				Lost:          sink.Lost,
				Throughput:    sink.Throughput,
			})
			if err != nil {
				return err
			}
		}
	}

	return recorder.Flush()
}

func toRow(run string, f FlowReport) FlowRow {
	return FlowRow{
		Run:            run,
		Flow:           f.ID,
		Source:         f.Key.Src.String(),
		Destination:    f.Key.Dst.String(),
		Protocol:       f.Key.Protocol.String(),
		SrcPort:        f.Key.SrcPort,
		DstPort:        f.Key.DstPort,
		Purpose:        f.Purpose.String(),
		TxPackets:      f.TxPackets,
		RxPackets:      f.RxPackets,
		LostPackets:    f.LostPackets,
		TxBytes:        f.TxBytes,
		RxBytes:        f.RxBytes,
		TimesForwarded: f.TimesForwarded,
		Throughput:     f.Throughput,
		OfferedLoad:    f.OfferedLoad,
		LossPercent:    f.LossPercent.String(),
		MeanDelay:      f.MeanDelay.String(),
		MeanJitter:     f.MeanJitter.String(),
		MeanHopCount:   f.MeanHopCount.String(),
		DelayP95:       f.DelayP95.String(),
	}
}

// ReadFlows loads the recorded flows, ordered by run and flow id. An empty
// run selects every run.
func ReadFlows(
	ctx context.Context,
	reader datarecording.DataReader,
	run string,
) ([]FlowRow, error) {
	reader.MapTable(FlowTable, FlowRow{})

	params := datarecording.QueryParams{OrderBy: "Run, Flow"}
	if run != "" {
		params.Where = "Run = ?"
		params.Args = []any{run}
	}

	rows, _, err := reader.Query(ctx, FlowTable, params)
	if err != nil {
		return nil, fmt.Errorf("reading flows: %w", err)
	}

	out := make([]FlowRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.(*FlowRow))
	}

	return out, nil
}

// ReadSinks loads the recorded sinks of a run, or of every run when run is
// empty.
func ReadSinks(
	ctx context.Context,
	reader datarecording.DataReader,
	run string,
) ([]SinkRow, error) {
	reader.MapTable(SinkTable, SinkRow{})

	params := datarecording.QueryParams{OrderBy: "Run, Sink"}
	if run != "" {
		params.Where = "Run = ?"
		params.Args = []any{run}
	}

	rows, _, err := reader.Query(ctx, SinkTable, params)
	if err != nil {
		return nil, fmt.Errorf("reading sinks: %w", err)
	}

	out := make([]SinkRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.(*SinkRow))
	}

	return out, nil
}
