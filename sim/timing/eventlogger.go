package timing

import (
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/wifisim/sim/hooking"
)

// EventLogger is an hook that prints the event information
type EventLogger struct {
	logger logrus.FieldLogger
}

// NewEventLogger returns a new EventLogger which will write to the logger at
// trace level.
func NewEventLogger(logger logrus.FieldLogger) *EventLogger {
	h := new(EventLogger)

	h.logger = logger

	return h
}

type named interface {
	Name() string
}

// Func writes the event information into the logger
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	handlerName := "-"
	if n, ok := evt.Handler().(named); ok {
		handlerName = n.Name()
	}

	h.logger.WithFields(logrus.Fields{
		"time":    evt.Time(),
		"event":   reflect.TypeOf(evt).String(),
		"handler": handlerName,
	}).Trace("event")
}
