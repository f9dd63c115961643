package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/internal/ports"
)

// State represents the lifecycle state of one session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Lifecycle is the state machine of a single session:
// Idle -> Connecting -> Connected -> Closing -> Idle.
// Connecting may go straight to Closing when the dial fails or is cancelled.
// Once a session returns to Idle it is finished and cannot be restarted.
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	started      bool
	cancel       context.CancelFunc
	logger       ports.Logger
	eventEmitter EventEmitter
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// NewLifecycle creates a new lifecycle in StateIdle.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:        StateIdle,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns an error wrapping domain.ErrInvalidTransition if the transition is
// not valid.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	if !l.allowed(oldState, newState) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, oldState, newState)
	}
	if newState == StateConnecting {
		l.started = true
	}

	l.state = newState
	l.mu.Unlock()

	// Emit event outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Debug("session state",
		ports.String("from", oldState.String()),
		ports.String("to", newState.String()),
		ports.String("reason", reason),
	)

	return nil
}

// allowed must be called with l.mu held.
func (l *Lifecycle) allowed(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateConnecting && !l.started
	case StateConnecting:
		return to == StateConnected || to == StateClosing
	case StateConnected:
		return to == StateClosing
	case StateClosing:
		return to == StateIdle
	}
	return false
}

// Active returns true while the session is connecting or connected.
func (l *Lifecycle) Active() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateConnecting || l.state == StateConnected
}

// Finished returns true once the session has returned to Idle.
func (l *Lifecycle) Finished() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started && l.state == StateIdle
}

// SetCancel stores the cancel function that interrupts an in-flight dial.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel interrupts any in-flight dial.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
