package scenario

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/sarchlab/wifisim/flowmon"
	"github.com/sarchlab/wifisim/network"
)

// WriteText prints a human readable report of the runs.
func WriteText(w io.Writer, results []*Result) error {
	ew := &errWriter{w: w}

	for _, r := range results {
		ew.printf("Run %s (seed %d, %d stations, %.3g bps)\n",
			r.Run, r.Seed, r.Stations, r.DataRate)
		ew.printf("  Window: [%g, %g] s, stopped at %.6f s after %d events\n",
			r.WindowStart, r.WindowStop, r.EndTime, r.Events)

		for _, f := range r.Flows {
			writeFlowText(ew, f)
		}

		for _, sink := range r.Sinks {
			ew.printf("Sink %s (%s:%d)\n", sink.Name, sink.Addr, sink.Port)
			ew.printf("  Rx Packets:     %d\n", sink.Received)
			ew.printf("  Rx Bytes:       %d\n", sink.ReceivedBytes)
			ew.printf("  Seq Gaps:       %d\n", sink.Lost)
			ew.printf("  Throughput:     %g Mbps\n", sink.Throughput)
		}
	}

	return ew.err
}

func writeFlowText(ew *errWriter, f FlowReport) {
	ew.printf("Flow %d (%s -> %s) %s %s\n",
		f.ID, f.Key.Src, f.Key.Dst, f.Key.Protocol, f.Purpose)
	ew.printf("  Tx Packets:     %d\n", f.TxPackets)
	ew.printf("  Tx Bytes:       %d\n", f.TxBytes)
	ew.printf("  TxOffered:      %g Mbps\n", f.OfferedLoad)
	ew.printf("  Rx Packets:     %d\n", f.RxPackets)
	ew.printf("  Rx Bytes:       %d\n", f.RxBytes)
	ew.printf("  Throughput:     %g Mbps\n", f.Throughput)
	ew.printf("  Lost Packets:   %d\n", f.LostPackets)
	ew.printf("  Packet Loss:    %s %%\n", f.LossPercent)
	ew.printf("  Mean Delay:     %s s\n", f.MeanDelay)
	ew.printf("  Mean Jitter:    %s s\n", f.MeanJitter)
	ew.printf("  Mean Hop Count: %s\n", f.MeanHopCount)
	ew.printf("  Delay p95:      %s s\n", f.DelayP95)

	for _, reason := range sortedReasons(f.Drops) {
		ew.printf("  Dropped (%s): %d\n", reason, f.Drops[reason])
	}
}

func sortedReasons(drops map[network.DropReason]uint64) []network.DropReason {
	reasons := make([]network.DropReason, 0, len(drops))
	for r := range drops {
		reasons = append(reasons, r)
	}

	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	return reasons
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}

	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{
	"Run", "Flow", "Source", "Destination", "Protocol", "Purpose",
	"Stations", "DataRate/bps",
	"TxPackets", "RxPackets", "LostPackets",
	"Throughput/Mbps", "OfferedLoad/Mbps", "PacketLoss/%",
	"MeanDelay/s", "MeanJitter/s", "MeanHopCount", "DelayP95/s",
}

// WriteCSV writes one row per flow. The header is written when asked, so
// several calls can append to the same file.
func WriteCSV(w io.Writer, results []*Result, header bool) error {
	cw := csv.NewWriter(w)

	if header {
		if err := cw.Write(CSVHeader); err != nil {
			return err
		}
	}

	for _, r := range results {
		for _, f := range r.Flows {
			row := []string{
				r.Run,
				strconv.Itoa(f.ID),
				f.Key.Src.String(),
				f.Key.Dst.String(),
				f.Key.Protocol.String(),
				f.Purpose.String(),
				strconv.Itoa(r.Stations),
				formatFloat(r.DataRate),
				strconv.FormatUint(f.TxPackets, 10),
				strconv.FormatUint(f.RxPackets, 10),
				strconv.FormatUint(f.LostPackets, 10),
				formatFloat(f.Throughput),
				formatFloat(f.OfferedLoad),
				f.LossPercent.String(),
				f.MeanDelay.String(),
				f.MeanJitter.String(),
				f.MeanHopCount.String(),
				f.DelayP95.String(),
			}

			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()

	return cw.Error()
}

// SinkCSVHeader is the first row written by WriteSinkCSV.
var SinkCSVHeader = []string{
	"Run", "Sink", "Address", "Port",
	"RxPackets", "RxBytes", "SeqGaps", "Throughput/Mbps",
}

// WriteSinkCSV writes one row per packet sink, with the header when asked.
func WriteSinkCSV(w io.Writer, results []*Result, header bool) error {
	cw := csv.NewWriter(w)

	if header {
		if err := cw.Write(SinkCSVHeader); err != nil {
			return err
		}
	}

	for _, r := range results {
		for _, sink := range r.Sinks {
			err := cw.Write([]string{
				r.Run,
				sink.Name,
				sink.Addr.String(),
				strconv.FormatUint(uint64(sink.Port), 10),
				strconv.FormatUint(sink.Received, 10),
				strconv.FormatUint(sink.ReceivedBytes, 10),
				strconv.FormatUint(sink.Lost, 10),
				formatFloat(sink.Throughput),
			})
			if err != nil {
				return err
			}
		}
	}

	cw.Flush()

	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type xmlDocument struct {
	XMLName xml.Name `xml:"FlowMonitor"`
	Runs    []xmlRun `xml:"Run"`
}

type xmlRun struct {
	Label      string          `xml:"label,attr"`
	Seed       int64           `xml:"seed,attr"`
	EndTime    float64         `xml:"endTime,attr"`
	Flows      []xmlFlow       `xml:"FlowStats>Flow"`
	Classifier []xmlClassifier `xml:"Ipv4FlowClassifier>Flow"`
}

type xmlFlow struct {
	FlowID         int           `xml:"flowId,attr"`
	TxPackets      uint64        `xml:"txPackets,attr"`
	RxPackets      uint64        `xml:"rxPackets,attr"`
	LostPackets    uint64        `xml:"lostPackets,attr"`
	TxBytes        uint64        `xml:"txBytes,attr"`
	RxBytes        uint64        `xml:"rxBytes,attr"`
	TimesForwarded uint64        `xml:"timesForwarded,attr"`
	MeanDelay      flowmon.Mean  `xml:"meanDelay,attr"`
	MeanJitter     flowmon.Mean  `xml:"meanJitter,attr"`
	Drops          []xmlDrop     `xml:"packetsDropped"`
	Delay          *xmlHistogram `xml:"delayHistogram,omitempty"`
	Jitter         *xmlHistogram `xml:"jitterHistogram,omitempty"`
}

type xmlDrop struct {
	Reason string `xml:"reason,attr"`
	Number uint64 `xml:"number,attr"`
}

type xmlHistogram struct {
	NBins int      `xml:"nBins,attr"`
	Bins  []xmlBin `xml:"bin"`
}

type xmlBin struct {
	Index int     `xml:"index,attr"`
	Start float64 `xml:"start,attr"`
	Width float64 `xml:"width,attr"`
	Count uint64  `xml:"count,attr"`
}

type xmlClassifier struct {
	FlowID          int    `xml:"flowId,attr"`
	SourceAddress   string `xml:"sourceAddress,attr"`
	DestinationAddr string `xml:"destinationAddress,attr"`
	Protocol        uint8  `xml:"protocol,attr"`
	SourcePort      uint16 `xml:"sourcePort,attr"`
	DestinationPort uint16 `xml:"destinationPort,attr"`
	Purpose         string `xml:"purpose,attr"`
}

// WriteXML writes a flow monitor document with the stats, histograms and
// five-tuples of every flow.
func WriteXML(w io.Writer, results []*Result) error {
	doc := xmlDocument{}

	for _, r := range results {
		run := xmlRun{Label: r.Run, Seed: r.Seed, EndTime: r.EndTime}

		for _, f := range r.Flows {
			run.Flows = append(run.Flows, toXMLFlow(f))
			run.Classifier = append(run.Classifier, xmlClassifier{
				FlowID:          f.ID,
				SourceAddress:   f.Key.Src.String(),
				DestinationAddr: f.Key.Dst.String(),
				Protocol:        uint8(f.Key.Protocol),
				SourcePort:      f.Key.SrcPort,
				DestinationPort: f.Key.DstPort,
				Purpose:         f.Purpose.String(),
			})
		}

		doc.Runs = append(doc.Runs, run)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return err
	}

	_, err := io.WriteString(w, "\n")

	return err
}

func toXMLFlow(f FlowReport) xmlFlow {
	x := xmlFlow{
		FlowID:         f.ID,
		TxPackets:      f.TxPackets,
		RxPackets:      f.RxPackets,
		LostPackets:    f.LostPackets,
		TxBytes:        f.TxBytes,
		RxBytes:        f.RxBytes,
		TimesForwarded: f.TimesForwarded,
		MeanDelay:      f.MeanDelay,
		MeanJitter:     f.MeanJitter,
		Delay:          toXMLHistogram(f.DelayHistogram),
		Jitter:         toXMLHistogram(f.JitterHistogram),
	}

	for _, reason := range sortedReasons(f.Drops) {
		x.Drops = append(x.Drops, xmlDrop{
			Reason: reason.String(),
			Number: f.Drops[reason],
		})
	}

	return x
}

func toXMLHistogram(h *flowmon.Histogram) *xmlHistogram {
	if h == nil || h.Total() == 0 {
		return nil
	}

	x := &xmlHistogram{NBins: h.NBins()}
	for i, c := range h.Counts {
		if c == 0 {
			continue
		}

		x.Bins = append(x.Bins, xmlBin{
			Index: i,
			Start: h.BinStart(i),
			Width: h.BinWidth,
			Count: c,
		})
	}

	return x
}
