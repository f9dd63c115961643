package locolink

import (
	"reflect"
	"sync"

	"github.com/bft-labs/locolink/internal/app"
	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/internal/ports"
	"github.com/bft-labs/locolink/pkg/protocol"
)

// Re-exported domain types.
type (
	// Status is the connection status reported through OnStatus.
	Status = domain.Status

	// Target is a validated controller address.
	Target = domain.Target

	// Frame is one checksum-verified frame received from the controller.
	Frame = protocol.Frame

	// SessionState is the lifecycle state of one connect attempt.
	SessionState = app.State
)

const (
	StatusDisconnected = domain.StatusDisconnected
	StatusConnected    = domain.StatusConnected
)

const (
	SessionIdle       = app.StateIdle
	SessionConnecting = app.StateConnecting
	SessionConnected  = app.StateConnected
	SessionClosing    = app.StateClosing
)

// EventHandler receives client events. Calls arrive on the goroutine that
// produced the event (the session read loop, the writer or the supervisor)
// and never while a client lock is held. A panicking handler is recovered and
// logged. Handlers must not call Shutdown from inside a callback.
type EventHandler interface {
	// OnConnectStart is called when the client starts searching for the controller.
	OnConnectStart()

	// OnConnectStop is called when searching ends, whatever the outcome.
	OnConnectStop()

	// OnData receives newline-terminated console lines.
	OnData(text string)

	// OnError receives the cause of a transport failure.
	OnError(msg string)

	// OnStatus reports connected and disconnected transitions. Every session
	// that reached connected reports exactly one disconnected.
	OnStatus(status Status)

	// OnFrame receives every verified frame.
	OnFrame(f Frame)
}

// SessionEventHandler is implemented by handlers that also want session
// lifecycle transitions.
type SessionEventHandler interface {
	OnSessionState(event SessionStateEvent)
}

// SessionStateEvent describes one session lifecycle transition.
type SessionStateEvent struct {
	Previous SessionState
	Current  SessionState
	Reason   string
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnConnectStart() {}
func (BaseEventHandler) OnConnectStop()  {}
func (BaseEventHandler) OnData(string)   {}
func (BaseEventHandler) OnError(string)  {}
func (BaseEventHandler) OnStatus(Status) {}
func (BaseEventHandler) OnFrame(Frame)   {}

// HandlerFuncs adapts plain functions to EventHandler. Nil fields are
// skipped. Register it by pointer so it can be removed again.
type HandlerFuncs struct {
	ConnectStart func()
	ConnectStop  func()
	Data         func(text string)
	Error        func(msg string)
	Status       func(status Status)
	Frame        func(f Frame)
}

func (h *HandlerFuncs) OnConnectStart() {
	if h.ConnectStart != nil {
		h.ConnectStart()
	}
}

func (h *HandlerFuncs) OnConnectStop() {
	if h.ConnectStop != nil {
		h.ConnectStop()
	}
}

func (h *HandlerFuncs) OnData(text string) {
	if h.Data != nil {
		h.Data(text)
	}
}

func (h *HandlerFuncs) OnError(msg string) {
	if h.Error != nil {
		h.Error(msg)
	}
}

func (h *HandlerFuncs) OnStatus(status Status) {
	if h.Status != nil {
		h.Status(status)
	}
}

func (h *HandlerFuncs) OnFrame(f Frame) {
	if h.Frame != nil {
		h.Frame(f)
	}
}

var _ EventHandler = (*HandlerFuncs)(nil)

// dispatcher fans link events out to the registered handlers and keeps the
// last state reported for every locomotive.
type dispatcher struct {
	logger ports.Logger

	mu       sync.RWMutex
	handlers []EventHandler

	stateMu sync.RWMutex
	remote  map[int]int
}

func newDispatcher(logger ports.Logger) *dispatcher {
	return &dispatcher{
		logger: logger,
		remote: make(map[int]int),
	}
}

// byPointer reports whether h is a non-nil pointer. Handlers are keyed by
// pointer identity: comparing other dynamic types can panic on an interface
// field holding a func, or can merge two distinct values with equal fields.
func byPointer(h EventHandler) bool {
	if h == nil {
		return false
	}
	v := reflect.ValueOf(h)
	return v.Kind() == reflect.Pointer && !v.IsNil()
}

// add registers h once.
func (d *dispatcher) add(h EventHandler) bool {
	if !byPointer(h) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.handlers {
		if existing == h {
			return false
		}
	}
	handlers := make([]EventHandler, len(d.handlers), len(d.handlers)+1)
	copy(handlers, d.handlers)
	d.handlers = append(handlers, h)
	return true
}

func (d *dispatcher) remove(h EventHandler) bool {
	if !byPointer(h) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.handlers {
		if existing == h {
			handlers := make([]EventHandler, 0, len(d.handlers)-1)
			handlers = append(handlers, d.handlers[:i]...)
			d.handlers = append(handlers, d.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (d *dispatcher) len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// snapshot returns the current handler slice. Slices are replaced on every
// change, never mutated, so callers may range over it without the lock.
func (d *dispatcher) snapshot() []EventHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers
}

func (d *dispatcher) each(event string, fn func(EventHandler)) {
	for _, h := range d.snapshot() {
		d.call(event, h, fn)
	}
}

func (d *dispatcher) call(event string, h EventHandler, fn func(EventHandler)) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic recovered",
				ports.String("event", event),
				ports.Any("panic", r),
			)
		}
	}()
	fn(h)
}

func (d *dispatcher) OnConnectStart() {
	d.each("connect_start", func(h EventHandler) { h.OnConnectStart() })
}

func (d *dispatcher) OnConnectStop() {
	d.each("connect_stop", func(h EventHandler) { h.OnConnectStop() })
}

func (d *dispatcher) OnData(text string) {
	d.each("data", func(h EventHandler) { h.OnData(text) })
}

func (d *dispatcher) OnError(msg string) {
	d.each("error", func(h EventHandler) { h.OnError(msg) })
}

func (d *dispatcher) OnStatus(status domain.Status) {
	d.each("status", func(h EventHandler) { h.OnStatus(status) })
}

func (d *dispatcher) OnFrame(f protocol.Frame) {
	if st, ok := f.State(); ok && protocol.ValidLoco(int(f.Address)) {
		d.stateMu.Lock()
		d.remote[int(f.Address)] = st
		d.stateMu.Unlock()
	}
	d.each("frame", func(h EventHandler) { h.OnFrame(f) })
}

// OnStateChange forwards session transitions to handlers that implement
// SessionEventHandler.
func (d *dispatcher) OnStateChange(previous, current app.State, reason string) {
	ev := SessionStateEvent{Previous: previous, Current: current, Reason: reason}
	d.each("session_state", func(h EventHandler) {
		if sh, ok := h.(SessionEventHandler); ok {
			sh.OnSessionState(ev)
		}
	})
}

func (d *dispatcher) remoteState(loco int) (int, bool) {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	st, ok := d.remote[loco]
	return st, ok
}

var (
	_ app.Observer     = (*dispatcher)(nil)
	_ app.EventEmitter = (*dispatcher)(nil)
)
