// Package scenario builds Wi-Fi access network topologies from YAML, runs
// them on the simulation kernel and reports per-flow statistics.
package scenario

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level scenario configuration.
// Loaded from YAML via Load(path).
type Config struct {
	Name    string  `yaml:"name"`
	Seed    int64   `yaml:"seed"`
	SimTime float64 `yaml:"sim_time"`

	// Window is the statistics window used to turn byte counts into rates.
	Window WindowSpec `yaml:"window"`

	Wifi         WifiSpec      `yaml:"wifi"`
	Channel      ChannelSpec   `yaml:"channel"`
	AccessPoints APSpec        `yaml:"access_points"`
	Stations     StationSpec   `yaml:"stations"`
	RemoteHost   *RemoteSpec   `yaml:"remote_host,omitempty"`
	Traffic      []TrafficSpec `yaml:"traffic"`

	// Runs sweeps the scenario. Each run overrides some fields of the base
	// configuration. No runs means a single run of the base configuration.
	Runs []RunSpec `yaml:"runs,omitempty"`

	// Run is the label of the sweep point this configuration came from.
	Run string `yaml:"-"`
}

// WindowSpec bounds the statistics window. A zero Stop means SimTime.
type WindowSpec struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop,omitempty"`
}

// WifiSpec configures the wireless devices.
type WifiSpec struct {
	// DataRate in bits per second.
	DataRate      float64 `yaml:"data_rate"`
	QueueCapacity int     `yaml:"queue_capacity,omitempty"`
	Subnet        string  `yaml:"subnet,omitempty"`
}

// ChannelSpec selects the propagation models of the wireless channel.
type ChannelSpec struct {
	Delay DelaySpec `yaml:"delay"`
	Loss  LossSpec  `yaml:"loss"`
}

// DelaySpec selects a delay model: constant, constant-speed or uniform.
type DelaySpec struct {
	Model   string  `yaml:"model"`
	Latency float64 `yaml:"latency,omitempty"`
	Speed   float64 `yaml:"speed,omitempty"`
	Min     float64 `yaml:"min,omitempty"`
	Max     float64 `yaml:"max,omitempty"`
}

// LossSpec selects a loss model: none, fixed, range or matrix. A matrix uses
// Probability for every pair of nodes not listed in Links.
type LossSpec struct {
	Model       string         `yaml:"model"`
	Probability float64        `yaml:"probability,omitempty"`
	MaxRange    float64        `yaml:"max_range,omitempty"`
	Links       []LinkLossSpec `yaml:"links,omitempty"`
}

// LinkLossSpec sets the loss probability from one node to another, by node
// name (Sta[0], AP[0]).
type LinkLossSpec struct {
	From        string  `yaml:"from"`
	To          string  `yaml:"to"`
	Probability float64 `yaml:"probability"`
	Symmetric   bool    `yaml:"symmetric,omitempty"`
}

// APSpec configures the access points.
type APSpec struct {
	Count     int           `yaml:"count"`
	Placement PlacementSpec `yaml:"placement"`
}

// StationSpec configures the stations.
type StationSpec struct {
	Count     int           `yaml:"count"`
	Placement PlacementSpec `yaml:"placement"`
	Mobility  MobilitySpec  `yaml:"mobility"`
}

// PlacementSpec selects a position allocator: list or disc.
type PlacementSpec struct {
	Allocator string     `yaml:"allocator"`
	Positions []Position `yaml:"positions,omitempty"`
	Center    Position   `yaml:"center,omitempty"`
	Rho       float64    `yaml:"rho,omitempty"`
}

// Position is a point in meters.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z,omitempty"`
}

// MobilitySpec selects a mobility model: constant or random-walk.
type MobilitySpec struct {
	Model    string  `yaml:"model"`
	Speed    float64 `yaml:"speed,omitempty"`
	Interval float64 `yaml:"interval,omitempty"`
	Bounds   Bounds  `yaml:"bounds,omitempty"`
}

// Bounds is a rectangle on the XY plane.
type Bounds struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
}

// RemoteSpec adds a host behind the first access point over a wired link.
type RemoteSpec struct {
	DataRate  float64       `yaml:"data_rate"`
	Latency   float64       `yaml:"latency"`
	Subnet    string        `yaml:"subnet,omitempty"`
	Placement PlacementSpec `yaml:"placement,omitempty"`
}

// TrafficSpec installs one application pair per station.
type TrafficSpec struct {
	// Kind is udp, onoff or echo.
	Kind string `yaml:"kind"`

	// Direction is downlink (remote or AP to station), uplink (station to
	// remote or AP) or peer (station to the next station).
	Direction string `yaml:"direction"`

	Port       uint16  `yaml:"port"`
	PacketSize int     `yaml:"packet_size"`
	Start      float64 `yaml:"start"`
	Stop       float64 `yaml:"stop,omitempty"`

	// udp and echo
	Interval   float64 `yaml:"interval,omitempty"`
	MaxPackets uint64  `yaml:"max_packets,omitempty"`

	// onoff
	DataRate float64 `yaml:"data_rate,omitempty"`
	OnTime   float64 `yaml:"on_time,omitempty"`
	OffTime  float64 `yaml:"off_time,omitempty"`
}

// RunSpec is one point of a sweep. Nil fields keep the base value.
type RunSpec struct {
	Label    string   `yaml:"label"`
	Seed     *int64   `yaml:"seed,omitempty"`
	Stations *int     `yaml:"stations,omitempty"`
	Distance *float64 `yaml:"distance,omitempty"`
	DataRate *float64 `yaml:"data_rate,omitempty"`
	Loss     *float64 `yaml:"loss,omitempty"`
}

var (
	validKinds      = map[string]bool{"udp": true, "onoff": true, "echo": true}
	validDirections = map[string]bool{"downlink": true, "uplink": true, "peer": true}
	validDelays     = map[string]bool{"": true, "constant": true, "constant-speed": true, "uniform": true}
	validLosses     = map[string]bool{"": true, "none": true, "fixed": true, "range": true, "matrix": true}
	validAllocators = map[string]bool{"": true, "list": true, "disc": true}
	validMobility   = map[string]bool{"": true, "constant": true, "random-walk": true}
)

// Load reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	return Parse(bytes.NewReader(data))
}

// Parse decodes a scenario and fills in the defaults.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "Scenario"
	}
	if c.AccessPoints.Count == 0 {
		c.AccessPoints.Count = 1
	}
	if c.Wifi.Subnet == "" {
		c.Wifi.Subnet = "10.1.2.0/24"
	}
	if c.RemoteHost != nil && c.RemoteHost.Subnet == "" {
		c.RemoteHost.Subnet = "10.1.1.0/24"
	}
	for i := range c.Traffic {
		if c.Traffic[i].Kind == "" {
			c.Traffic[i].Kind = "udp"
		}
		if c.Traffic[i].Direction == "" {
			c.Traffic[i].Direction = "downlink"
		}
	}
}

// WindowStop returns the end of the statistics window.
func (c *Config) WindowStop() float64 {
	if c.Window.Stop > 0 {
		return c.Window.Stop
	}

	return c.SimTime
}

// Validate checks that all fields in the scenario are valid.
func (c *Config) Validate() error {
	if err := validateFinitePositive("sim_time", c.SimTime); err != nil {
		return err
	}
	if c.Window.Start < 0 || c.WindowStop() <= c.Window.Start {
		return fmt.Errorf("window [%g, %g] must be a non-empty interval",
			c.Window.Start, c.WindowStop())
	}
	if c.Wifi.DataRate < 0 {
		return fmt.Errorf("wifi.data_rate must not be negative, got %g", c.Wifi.DataRate)
	}
	if c.Stations.Count < 1 {
		return fmt.Errorf("stations.count must be at least 1, got %d", c.Stations.Count)
	}
	if c.AccessPoints.Count < 1 {
		return fmt.Errorf("access_points.count must be at least 1, got %d", c.AccessPoints.Count)
	}
	if c.Stations.Count+c.AccessPoints.Count > 250 {
		return fmt.Errorf("at most 250 wireless nodes fit in a subnet, got %d",
			c.Stations.Count+c.AccessPoints.Count)
	}
	if err := c.Channel.validate(); err != nil {
		return err
	}
	if err := c.AccessPoints.Placement.validate("access_points.placement"); err != nil {
		return err
	}
	if err := c.Stations.Placement.validate("stations.placement"); err != nil {
		return err
	}
	if err := c.Stations.Mobility.validate(); err != nil {
		return err
	}
	if c.RemoteHost != nil {
		if err := validateFinitePositive("remote_host.data_rate", c.RemoteHost.DataRate); err != nil {
			return err
		}
		if c.RemoteHost.Latency < 0 {
			return fmt.Errorf("remote_host.latency must not be negative, got %g", c.RemoteHost.Latency)
		}
	}
	for i := range c.Traffic {
		if err := c.Traffic[i].validate(i); err != nil {
			return err
		}
	}
	labels := make(map[string]bool, len(c.Runs))
	for i, r := range c.Runs {
		if r.Label == "" {
			return fmt.Errorf("runs[%d]: label is required", i)
		}
		if labels[r.Label] {
			return fmt.Errorf("runs[%d]: duplicate label %q", i, r.Label)
		}
		labels[r.Label] = true
		if r.Stations != nil && *r.Stations < 1 {
			return fmt.Errorf("runs[%d]: stations must be at least 1", i)
		}
		if r.Loss != nil && (*r.Loss < 0 || *r.Loss > 1) {
			return fmt.Errorf("runs[%d]: loss must be in [0, 1]", i)
		}
	}

	return nil
}

func (c ChannelSpec) validate() error {
	if !validDelays[c.Delay.Model] {
		return fmt.Errorf("unknown delay model %q; valid: constant, constant-speed, uniform", c.Delay.Model)
	}
	if c.Delay.Latency < 0 || c.Delay.Min < 0 || c.Delay.Max < c.Delay.Min {
		return fmt.Errorf("channel.delay has a negative or inverted range")
	}
	if !validLosses[c.Loss.Model] {
		return fmt.Errorf("unknown loss model %q; valid: none, fixed, range, matrix", c.Loss.Model)
	}
	if c.Loss.Probability < 0 || c.Loss.Probability > 1 {
		return fmt.Errorf("channel.loss.probability must be in [0, 1], got %g", c.Loss.Probability)
	}
	if c.Loss.Model == "range" && c.Loss.MaxRange <= 0 {
		return fmt.Errorf("channel.loss.max_range must be positive, got %g", c.Loss.MaxRange)
	}
	if len(c.Loss.Links) > 0 && c.Loss.Model != "matrix" {
		return fmt.Errorf("channel.loss.links needs the matrix model, got %q", c.Loss.Model)
	}
	for i, l := range c.Loss.Links {
		if l.From == "" || l.To == "" {
			return fmt.Errorf("channel.loss.links[%d]: from and to are required", i)
		}
		if l.Probability < 0 || l.Probability > 1 {
			return fmt.Errorf("channel.loss.links[%d]: probability must be in [0, 1], got %g",
				i, l.Probability)
		}
	}

	return nil
}

func (p PlacementSpec) validate(prefix string) error {
	if !validAllocators[p.Allocator] {
		return fmt.Errorf("%s: unknown allocator %q; valid: list, disc", prefix, p.Allocator)
	}
	if p.Rho < 0 {
		return fmt.Errorf("%s: rho must not be negative, got %g", prefix, p.Rho)
	}

	return nil
}

func (m MobilitySpec) validate() error {
	if !validMobility[m.Model] {
		return fmt.Errorf("unknown mobility model %q; valid: constant, random-walk", m.Model)
	}
	if m.Model != "random-walk" {
		return nil
	}
	if err := validateFinitePositive("stations.mobility.interval", m.Interval); err != nil {
		return err
	}
	if m.Speed < 0 {
		return fmt.Errorf("stations.mobility.speed must not be negative, got %g", m.Speed)
	}
	if m.Bounds.XMax <= m.Bounds.XMin || m.Bounds.YMax <= m.Bounds.YMin {
		return fmt.Errorf("stations.mobility.bounds must be a non-empty rectangle")
	}

	return nil
}

func (t TrafficSpec) validate(idx int) error {
	prefix := fmt.Sprintf("traffic[%d]", idx)
	if !validKinds[t.Kind] {
		return fmt.Errorf("%s: unknown kind %q; valid: udp, onoff, echo", prefix, t.Kind)
	}
	if !validDirections[t.Direction] {
		return fmt.Errorf("%s: unknown direction %q; valid: downlink, uplink, peer", prefix, t.Direction)
	}
	if t.Port == 0 {
		return fmt.Errorf("%s: port is required", prefix)
	}
	if t.PacketSize <= 0 {
		return fmt.Errorf("%s: packet_size must be positive, got %d", prefix, t.PacketSize)
	}
	if t.Start < 0 || (t.Stop > 0 && t.Stop < t.Start) {
		return fmt.Errorf("%s: invalid start/stop %g/%g", prefix, t.Start, t.Stop)
	}
	switch t.Kind {
	case "udp", "echo":
		return validateFinitePositive(prefix+".interval", t.Interval)
	case "onoff":
		if t.OnTime < 0 || t.OffTime < 0 {
			return fmt.Errorf("%s: on_time and off_time must not be negative", prefix)
		}
		return validateFinitePositive(prefix+".data_rate", t.DataRate)
	}

	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}

	return nil
}

// Expand returns one configuration per sweep run. A configuration without
// runs expands to itself.
func (c *Config) Expand() []*Config {
	if len(c.Runs) == 0 {
		single := *c
		if single.Run == "" {
			single.Run = c.Name
		}
		return []*Config{&single}
	}

	out := make([]*Config, 0, len(c.Runs))
	for _, r := range c.Runs {
		out = append(out, c.withRun(r))
	}

	return out
}

func (c *Config) withRun(r RunSpec) *Config {
	run := *c
	run.Runs = nil
	run.Run = r.Label
	run.Traffic = append([]TrafficSpec(nil), c.Traffic...)

	if r.Seed != nil {
		run.Seed = *r.Seed
	}
	if r.Stations != nil {
		run.Stations.Count = *r.Stations
	}
	if r.DataRate != nil {
		run.Wifi.DataRate = *r.DataRate
	}
	if r.Loss != nil {
		run.Channel.Loss = LossSpec{Model: "fixed", Probability: *r.Loss}
	}
	if r.Distance != nil {
		run.AccessPoints.Placement = PlacementSpec{
			Allocator: "list",
			Positions: []Position{{}},
		}
		run.Stations.Placement = PlacementSpec{
			Allocator: "list",
			Positions: []Position{{X: *r.Distance}},
		}
		run.Stations.Mobility = MobilitySpec{Model: "constant"}
	}

	return &run
}
