// Package monitoring turns a running simulation into a small web server that
// can pause it, inspect its nodes and flows, and export Prometheus metrics.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"

	"github.com/sarchlab/wifisim/flowmon"
	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/hooking"
	"github.com/sarchlab/wifisim/sim/id"
	"github.com/sarchlab/wifisim/sim/naming"
	"github.com/sarchlab/wifisim/sim/timing"
)

type pausable interface {
	IsPaused() bool
}

type queueReporter interface {
	CurrentTime() timing.VTimeInSec
	PendingEvents() int
}

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	engine      timing.Engine
	stopTime    timing.VTimeInSec
	components  []naming.Named
	devices     []*network.Device
	tracker     *flowmon.Tracker
	metrics     *Metrics
	portNumber  int
	openBrowser bool
	logger      logrus.FieldLogger

	listener net.Listener

	// holdLock guards the pause bookkeeping. holds counts readers inside
	// held. ownsPause is set when the monitor paused the engine for them and
	// must continue it after the last one leaves.
	holdLock   sync.Mutex
	holds      int
	ownsPause  bool
	userPaused bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		logger: logrus.StandardLogger(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warnf("Port number %d is not allowed for the monitoring "+
			"server. Using a random port instead.", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor page in a browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithLogger replaces the standard logrus logger.
func (m *Monitor) WithLogger(l logrus.FieldLogger) *Monitor {
	m.logger = l
	return m
}

// WithMetrics exposes the metrics on /metrics.
func (m *Monitor) WithMetrics(metrics *Metrics) *Monitor {
	m.metrics = metrics
	return m
}

// RegisterEngine registers the engine that is used in the simulation. The
// stop time is the time the simulation runs to and drives the time progress
// bar.
func (m *Monitor) RegisterEngine(e timing.Engine, stopTime timing.VTimeInSec) {
	m.engine = e
	m.stopTime = stopTime

	if stopTime <= 0 {
		return
	}

	bar := m.CreateProgressBar("Virtual Time (us)", toMicro(stopTime))
	e.AcceptHook(&progressHook{bar: bar})
}

// RegisterNode registers a node and its devices to be inspected.
func (m *Monitor) RegisterNode(n *network.Node) {
	m.components = append(m.components, n)

	for _, d := range n.Devices() {
		m.components = append(m.components, d)
		m.devices = append(m.devices, d)
	}
}

// RegisterChannel registers a channel to be inspected.
func (m *Monitor) RegisterChannel(c *network.Channel) {
	m.components = append(m.components, c)
}

// RegisterTracker exposes the live flow statistics.
func (m *Monitor) RegisterTracker(t *flowmon.Tracker) {
	m.tracker = t
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        id.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router builds the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/queues", m.listQueues)
	r.HandleFunc("/api/flows", m.listFlows)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	if m.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(
			m.metrics.Gatherer(), promhttp.HandlerOpts{}))
	}

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("starting monitor: %w", err)
	}

	m.listener = listener

	url := fmt.Sprintf("http://localhost:%d/api/progress",
		listener.Addr().(*net.TCPAddr).Port)
	m.logger.Infof("Monitoring simulation with %s", url)

	router := m.Router()
	go func() {
		err := http.Serve(listener, router)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			m.logger.WithError(err).Error("monitor server stopped")
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.logger.WithError(err).Warn("cannot open browser")
		}
	}

	return url, nil
}

// StopServer closes the listener opened by StartServer.
func (m *Monitor) StopServer() error {
	if m.listener == nil {
		return nil
	}

	return m.listener.Close()
}

// held runs fn while no event is being handled. Overlapping calls share one
// pause, and a pause requested through /api/pause outlives them.
func (m *Monitor) held(fn func()) {
	m.acquireHold()
	defer m.releaseHold()

	fn()
}

func (m *Monitor) acquireHold() {
	m.holdLock.Lock()
	defer m.holdLock.Unlock()

	m.holds++
	if m.holds > 1 || m.userPaused {
		return
	}

	if p, ok := m.engine.(pausable); ok && p.IsPaused() {
		return
	}

	m.engine.Pause()
	m.ownsPause = true
}

func (m *Monitor) releaseHold() {
	m.holdLock.Lock()
	defer m.holdLock.Unlock()

	m.holds--
	if m.holds > 0 || !m.ownsPause {
		return
	}

	m.ownsPause = false
	m.engine.Continue()
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.holdLock.Lock()
	m.userPaused = true
	m.ownsPause = false
	m.engine.Pause()
	m.holdLock.Unlock()

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.holdLock.Lock()
	m.userPaused = false
	if m.holds > 0 {
		m.ownsPause = true
	} else {
		m.engine.Continue()
	}
	m.holdLock.Unlock()

	_, err := w.Write(nil)
	dieOnErr(err)
}

type nowRsp struct {
	Now     float64 `json:"now"`
	Stop    float64 `json:"stop"`
	Pending int     `json:"pending"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	rsp := nowRsp{Now: m.engine.CurrentTime(), Stop: m.stopTime}

	if q, ok := m.engine.(queueReporter); ok {
		rsp.Pending = q.PendingEvents()
	}

	writeJSON(w, rsp)
}

func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	go func() {
		err := m.engine.RunUntil(m.stopTime)
		if err != nil {
			m.logger.WithError(err).Error("simulation aborted")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	m.held(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)
		err := serializer.Serialize(w)
		dieOnErr(err)
	})
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	fields := strings.Split(req.FieldName, ".")

	m.held(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)

		err = serializer.SetEntryPoint(fields)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: %s", err)
			return
		}

		err = serializer.Serialize(w)
		dieOnErr(err)
	})
}

type queueRsp struct {
	Device string `json:"device"`
	Level  int    `json:"level"`
	Cap    int    `json:"cap"`
}

func (m *Monitor) listQueues(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := queuesParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	var queues []queueRsp
	m.held(func() {
		queues = make([]queueRsp, 0, len(m.devices))
		for _, d := range m.devices {
			queues = append(queues, queueRsp{
				Device: d.Name(),
				Level:  d.QueueLen(),
				Cap:    d.QueueCapacity(),
			})
		}
	})

	writeJSON(w, sortAndSelectQueues(queues, sortMethod, limit, offset))
}

func queuesParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}
	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return sortMethod, limit, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}

	return v, nil
}

func queuePercent(q queueRsp) float64 {
	if q.Cap == 0 {
		return 0
	}

	return float64(q.Level) / float64(q.Cap)
}

// sortAndSelectQueues orders the queues and returns a page. A zero limit
// returns everything after offset.
func sortAndSelectQueues(
	queues []queueRsp,
	sortMethod string,
	limit, offset int,
) []queueRsp {
	sort.SliceStable(queues, func(i, j int) bool {
		li, lj := queues[i].Level, queues[j].Level
		pi, pj := queuePercent(queues[i]), queuePercent(queues[j])

		if sortMethod == "level" {
			if li != lj {
				return li > lj
			}
			return pi > pj
		}

		if pi != pj {
			return pi > pj
		}
		return li > lj
	})

	if offset > len(queues) {
		offset = len(queues)
	}

	end := len(queues)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return queues[offset:end]
}

type flowRsp struct {
	Flow        string       `json:"flow"`
	Purpose     string       `json:"purpose"`
	State       string       `json:"state"`
	TxPackets   uint64       `json:"tx_packets"`
	RxPackets   uint64       `json:"rx_packets"`
	LostPackets uint64       `json:"lost_packets"`
	MeanDelay   flowmon.Mean `json:"mean_delay"`
	MeanJitter  flowmon.Mean `json:"mean_jitter"`
	Throughput  flowmon.Mean `json:"rx_throughput"`
}

func (m *Monitor) listFlows(w http.ResponseWriter, _ *http.Request) {
	if m.tracker == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No flow tracker registered"))
		dieOnErr(err)
		return
	}

	var rsp []flowRsp
	m.held(func() {
		live := m.tracker.Live()
		rsp = make([]flowRsp, 0, len(live))

		for _, key := range m.tracker.Keys() {
			s := live[key]
			rsp = append(rsp, flowRsp{
				Flow:        key.String(),
				Purpose:     s.Purpose.String(),
				State:       s.State.String(),
				TxPackets:   s.TxPackets,
				RxPackets:   s.RxPackets,
				LostPackets: s.LostPackets,
				MeanDelay:   s.MeanDelay(),
				MeanJitter:  s.MeanJitter(),
				Throughput:  s.RxThroughput(),
			})
		}
	})

	writeJSON(w, rsp)
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) naming.Named {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Component not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]*ProgressBar, len(m.progressBars))
	copy(bars, m.progressBars)
	m.progressBarsLock.Unlock()

	for _, b := range bars {
		b.Lock()
	}
	bytes, err := json.Marshal(bars)
	for _, b := range bars {
		b.Unlock()
	}
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}

// progressHook moves the time bar forward as events are handled.
type progressHook struct {
	bar *ProgressBar
}

func (h *progressHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos != timing.HookPosAfterEvent {
		return
	}

	evt, ok := ctx.Item.(timing.Event)
	if !ok {
		return
	}

	h.bar.SetFinished(toMicro(evt.Time()))
}

func toMicro(t timing.VTimeInSec) uint64 {
	return uint64(t * 1e6)
}
