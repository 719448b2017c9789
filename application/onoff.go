package application

import (
	"fmt"
	"math"
	"net/netip"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/timing"
)

// OnOffConfig configures an OnOffSource.
type OnOffConfig struct {
	Window

	Remote     netip.Addr
	RemotePort uint16

	// LocalPort defaults to an ephemeral port of the node.
	LocalPort uint16

	// PacketSize in bytes.
	PacketSize int

	// DataRate in bits per second while on.
	DataRate float64

	// OnTime and OffTime alternate. A zero OnTime means always on.
	OnTime  timing.VTimeInSec
	OffTime timing.VTimeInSec

	Purpose network.Purpose
}

// OnOffSource sends constant bit rate traffic during on periods.
type OnOffSource struct {
	sender

	cfg      OnOffConfig
	interval timing.VTimeInSec

	phaseStart timing.VTimeInSec
	phaseEnd   timing.VTimeInSec
	inPhase    uint64
	seq        uint64
}

// NewOnOffSource creates a source on the node.
func NewOnOffSource(
	name string,
	node *network.Node,
	cfg OnOffConfig,
) (*OnOffSource, error) {
	if cfg.PacketSize <= 0 {
		return nil, fmt.Errorf("%s: packet size must be positive", name)
	}

	if cfg.DataRate <= 0 {
		return nil, fmt.Errorf("%s: data rate must be positive", name)
	}

	if err := cfg.Window.validate(name); err != nil {
		return nil, err
	}

	if cfg.LocalPort == 0 {
		cfg.LocalPort = node.AllocatePort()
	}

	return &OnOffSource{
		sender:   newSender(name, node),
		cfg:      cfg,
		interval: float64(cfg.PacketSize*8) / cfg.DataRate,
	}, nil
}

// Interval returns the time between packets during an on period.
func (s *OnOffSource) Interval() timing.VTimeInSec {
	return s.interval
}

// Install schedules the first on period.
func (s *OnOffSource) Install() error {
	_, err := s.scheduleAt(s.cfg.Start, s.beginPhase)
	return err
}

func (s *OnOffSource) beginPhase(now timing.VTimeInSec) error {
	if now >= s.cfg.stopTime() {
		return nil
	}

	s.phaseStart = now
	s.phaseEnd = math.Inf(1)
	if s.cfg.OnTime > 0 {
		s.phaseEnd = now + s.cfg.OnTime
	}
	s.inPhase = 0

	return s.sendNext(now)
}

func (s *OnOffSource) sendNext(now timing.VTimeInSec) error {
	if now >= s.cfg.stopTime() {
		return nil
	}

	if now >= s.phaseEnd {
		_, err := s.scheduleAt(s.phaseEnd+s.cfg.OffTime, s.beginPhase)
		return err
	}

	p := network.Packet{
		Dst:      s.cfg.Remote,
		Protocol: network.ProtocolUDP,
		SrcPort:  s.cfg.LocalPort,
		DstPort:  s.cfg.RemotePort,
		Purpose:  s.cfg.Purpose,
		Size:     s.cfg.PacketSize,
		Seq:      s.seq,
	}
	s.seq++

	if err := s.transmit(p); err != nil {
		return err
	}

	s.inPhase++
	next := s.phaseStart + float64(s.inPhase)*s.interval
	_, err := s.scheduleAt(next, s.sendNext)

	return err
}
