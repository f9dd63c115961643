package domain

import (
	"errors"
	"fmt"
)

// Domain errors can be checked with errors.Is.
var (
	// ErrInvalidTarget is returned when a host is empty or a port is outside 1..65535.
	ErrInvalidTarget = errors.New("locolink: invalid target")

	// ErrShutdown is returned by operations on a client that has been shut down.
	ErrShutdown = errors.New("locolink: client shut down")

	// ErrNotConnected is returned when a command is sent without a live socket.
	ErrNotConnected = errors.New("locolink: not connected")

	// ErrInvalidTransition is returned when a session lifecycle transition is not allowed.
	ErrInvalidTransition = errors.New("locolink: invalid state transition")

	// ErrQueueFull is returned when the write queue cannot take another frame.
	ErrQueueFull = errors.New("locolink: write queue full")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("locolink: invalid configuration")
)

// TransportError records a failed socket operation against an address.
type TransportError struct {
	// Op is "dial", "read" or "write".
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Cause returns the underlying cause for github.com/pkg/errors.Cause.
func (e *TransportError) Cause() error { return e.Err }
