// Package timing is the discrete-event core: virtual time, events, the event
// queue, and the engine that drains it.
package timing

import (
	"github.com/sarchlab/wifisim/sim/hooking"
)

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	TimeTeller

	// Schedule registers an event. Events earlier than the current time are
	// rejected with ErrInvalidSchedule.
	Schedule(e Event) (EventHandle, error)

	// ScheduleFunc runs fn after delay. A negative delay is rejected with
	// ErrInvalidSchedule.
	ScheduleFunc(delay VTimeInSec, fn func(now VTimeInSec) error) (
		EventHandle, error,
	)

	// Cancel prevents a scheduled event from running.
	Cancel(h EventHandle) bool
}

// A SimulationEndHandler is a handler that is called after the simulation ends.
type SimulationEndHandler interface {
	Handle(now VTimeInSec)
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run will process all the events until the queue is empty.
	Run() error

	// RunUntil processes events whose time is not later than stop.
	RunUntil(stop VTimeInSec) error

	// Stop ends the current run after the event being handled.
	Stop()

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation
	Continue()

	// RegisterSimulationEndHandler registers a handler that perform some
	// actions after the simulation is finished.
	RegisterSimulationEndHandler(handler SimulationEndHandler)

	// Finished invokes all the registered SimulationEndHandler
	Finished()
}
