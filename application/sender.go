// Package application generates and consumes traffic on top of network
// nodes.
package application

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/wifisim/network"
	"github.com/sarchlab/wifisim/sim/naming"
	"github.com/sarchlab/wifisim/sim/timing"
)

// An Application is installed on a node and schedules its own activity.
type Application interface {
	naming.Named

	// Install schedules the start and stop of the application.
	Install() error
}

// Window is when an application is active. A zero Stop means forever.
type Window struct {
	Start timing.VTimeInSec
	Stop  timing.VTimeInSec
}

func (w Window) stopTime() timing.VTimeInSec {
	if w.Stop <= 0 {
		return math.Inf(1)
	}

	return w.Stop
}

func (w Window) validate(name string) error {
	if w.Start < 0 {
		return fmt.Errorf("%s: negative start time %v", name, w.Start)
	}

	if w.Stop > 0 && w.Stop < w.Start {
		return fmt.Errorf("%s: stop time %v before start time %v",
			name, w.Stop, w.Start)
	}

	return nil
}

// SenderStats counts what a traffic source did.
type SenderStats struct {
	Sent    uint64
	Retries uint64
	Bytes   uint64
}

// sender transmits through a node and retries when the outgoing device is
// still busy.
type sender struct {
	naming.NamedBase

	node   *network.Node
	engine timing.EventScheduler
	logger logrus.FieldLogger
	stats  SenderStats
}

func newSender(name string, node *network.Node) sender {
	return sender{
		NamedBase: naming.MakeNamedBase(name),
		node:      node,
		engine:    node.Engine(),
		logger:    logrus.WithField("app", name),
	}
}

// Stats returns the sender counters.
func (s *sender) Stats() SenderStats {
	return s.stats
}

func (s *sender) transmit(p network.Packet) error {
	err := s.node.Send(p)
	if err == nil {
		s.stats.Sent++
		s.stats.Bytes += uint64(p.Size)

		return nil
	}

	if !errors.Is(err, network.ErrChannelBusy) {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}

	dev, derr := s.node.OutgoingDevice(p.Dst)
	if derr != nil {
		return fmt.Errorf("%s: %w", s.Name(), derr)
	}

	wait := dev.TxEnd() - s.engine.CurrentTime()
	s.stats.Retries++

	s.logger.WithFields(logrus.Fields{
		"seq":  p.Seq,
		"wait": wait,
	}).Debug("device busy, retrying")

	_, err = s.engine.ScheduleFunc(wait, func(timing.VTimeInSec) error {
		return s.transmit(p)
	})

	return err
}

func (s *sender) scheduleAt(
	t timing.VTimeInSec,
	fn func(now timing.VTimeInSec) error,
) (timing.EventHandle, error) {
	return s.engine.ScheduleFunc(t-s.engine.CurrentTime(), fn)
}
