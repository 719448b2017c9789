package timing

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/wifisim/sim/hooking"
)

// A SerialEngine is an Engine that always run events one after another.
type SerialEngine struct {
	*hooking.HookableBase

	timeLock sync.RWMutex
	time     VTimeInSec
	queue    *EventQueue

	stopRequested atomic.Bool
	executed      atomic.Uint64

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex

	simulationEndHandlers []SimulationEndHandler
}

// NewSerialEngine creates a SerialEngine
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)

	e.HookableBase = hooking.NewHookableBase()
	e.queue = NewEventQueue()

	return e
}

// Name returns the name of the engine.
func (e *SerialEngine) Name() string {
	return "SerialEngine"
}

// Schedule register an event to be happen in the future. Events at the same
// time run primary before secondary, and in scheduling order within each
// group.
func (e *SerialEngine) Schedule(evt Event) (EventHandle, error) {
	now := e.readNow()
	t := evt.Time()

	if math.IsNaN(t) || t < now {
		return EventHandle{}, fmt.Errorf(
			"%w: %s @ %.10f is earlier than now %.10f",
			ErrInvalidSchedule, reflect.TypeOf(evt), t, now,
		)
	}

	return e.queue.Push(evt), nil
}

// ScheduleFunc runs fn after the given delay as a primary event. Functions
// scheduled for the same time run in scheduling order, but always before the
// secondary events of that time (such as a device draining its queue), even
// the ones scheduled earlier.
func (e *SerialEngine) ScheduleFunc(
	delay VTimeInSec,
	fn func(now VTimeInSec) error,
) (EventHandle, error) {
	if math.IsNaN(delay) || delay < 0 {
		return EventHandle{}, fmt.Errorf(
			"%w: negative delay %.10f", ErrInvalidSchedule, delay)
	}

	return e.Schedule(NewFuncEvent(e.readNow()+delay, fn))
}

// Cancel prevents a scheduled event from being handled. It returns false if
// the event already ran or was cancelled before.
func (e *SerialEngine) Cancel(h EventHandle) bool {
	return e.queue.Cancel(h)
}

func (e *SerialEngine) readNow() VTimeInSec {
	e.timeLock.RLock()
	t := e.time
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTimeInSec) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// Run processes all the events scheduled in the SerialEngine
func (e *SerialEngine) Run() error {
	return e.RunUntil(math.Inf(1))
}

// RunUntil processes events in time order. It returns when the queue is
// empty, when the next event is later than stop, after Stop is called, or
// when a handler returns an error.
func (e *SerialEngine) RunUntil(stop VTimeInSec) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	e.stopRequested.Store(false)

	for {
		done, err := e.step(stop)
		if err != nil || done {
			return err
		}

		if e.stopRequested.Load() {
			return nil
		}
	}
}

func (e *SerialEngine) step(stop VTimeInSec) (done bool, err error) {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	next := e.queue.Peek()
	if next == nil || next.Time() > stop {
		return true, nil
	}

	evt := e.queue.Pop()
	now := e.readNow()

	if evt.Time() < now {
		panic(fmt.Sprintf(
			"cannot run event in the past, evt %s @ %.10f, now %.10f",
			reflect.TypeOf(evt), evt.Time(), now,
		))
	}

	e.writeNow(evt.Time())

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	handler := evt.Handler()
	if handler != nil {
		err = handler.Handle(evt)
	}

	e.executed.Add(1)

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)

	if err != nil {
		return true, fmt.Errorf("handling %s @ %.10f: %w",
			reflect.TypeOf(evt), evt.Time(), err)
	}

	return false, nil
}

// Stop requests the current run to return after the event being handled.
func (e *SerialEngine) Stop() {
	e.stopRequested.Store(true)
}

// Pause prevents the SerialEngine to trigger more events.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the SerialEngine to trigger more events.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// IsPaused tells if the engine is paused.
func (e *SerialEngine) IsPaused() bool {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	return e.isPaused
}

// CurrentTime returns the current time at which the engine is at.
// Specifically, the run time of the current event.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	return e.readNow()
}

// PendingEvents returns the number of live events waiting in the queue.
func (e *SerialEngine) PendingEvents() int {
	return e.queue.Len()
}

// ExecutedEvents returns the number of events handled so far.
func (e *SerialEngine) ExecutedEvents() uint64 {
	return e.executed.Load()
}

// RegisterSimulationEndHandler registers a handler to be called by Finished.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.simulationEndHandlers = append(e.simulationEndHandlers, handler)
}

// Finished should be called after the simulation ends. This function
// calls all the registered SimulationEndHandler.
func (e *SerialEngine) Finished() {
	now := e.readNow()
	for _, h := range e.simulationEndHandlers {
		h.Handle(now)
	}
}
