// Package dispatch routes inbound channel frames to registered handlers
// inside an isolation boundary. A malformed payload degrades to a dropped
// event; it never unwinds into the transport or the host application.
package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ecomstore/chatsync/internal/metrics"
	"github.com/ecomstore/chatsync/internal/transport"
	"go.uber.org/zap"
)

// ProtocolError reports an inbound event payload that is malformed or
// references unknown entities. Logged and dropped, non-fatal.
type ProtocolError struct {
	Event string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: event %q: %v", e.Event, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Handler processes the payload of one inbound event.
type Handler func(data json.RawMessage) error

// Dispatcher holds the handler registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

// New creates an empty dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register installs the handler for an event name, replacing any previous
// one.
func (d *Dispatcher) Register(event string, h Handler) {
	d.mu.Lock()
	d.handlers[event] = h
	d.mu.Unlock()
}

// Reset removes all registered handlers.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.handlers = make(map[string]Handler)
	d.mu.Unlock()
}

// Dispatch runs the handler for the frame's event. Panics are recovered and
// handler errors are logged as ProtocolError; in both cases the event is
// dropped and dispatching continues for subsequent frames.
func (d *Dispatcher) Dispatch(f transport.Frame) {
	d.mu.RLock()
	h, ok := d.handlers[f.Event]
	d.mu.RUnlock()

	if !ok {
		metrics.EventsDropped.WithLabelValues(f.Event, "unknown_event").Inc()
		d.logger.Debug("no handler for event", zap.String("event", f.Event))
		return
	}

	metrics.EventsDispatched.WithLabelValues(f.Event).Inc()

	defer func() {
		if r := recover(); r != nil {
			metrics.EventsDropped.WithLabelValues(f.Event, "panic").Inc()
			d.logger.Error("handler panicked, event dropped",
				zap.String("event", f.Event),
				zap.Any("panic", r))
		}
	}()

	if err := h(f.Data); err != nil {
		metrics.EventsDropped.WithLabelValues(f.Event, "handler_error").Inc()
		d.logger.Warn("event dropped",
			zap.String("event", f.Event),
			zap.Error(&ProtocolError{Event: f.Event, Err: err}))
	}
}
