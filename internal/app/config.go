package app

import (
	"time"

	"github.com/bft-labs/locolink/pkg/protocol"
)

// Defaults for link timing.
const (
	DefaultConnectTimeout = 4 * time.Second
	DefaultReadTimeout    = 4 * time.Second
	DefaultWriteTimeout   = 4 * time.Second
	DefaultTickInterval   = time.Second
	DefaultQueueSize      = 16

	// ShutdownNotice is written to a live socket before a shutdown closes it,
	// when enabled.
	ShutdownNotice = "[CLIENT] DISCONNECT\n"
)

// BackoffConfig defines the reconnect schedule.
type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxShift caps the exponent applied to BaseDelay.
	MaxShift int
}

// DefaultBackoffConfig returns a 1s base doubling up to 30s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
		MaxShift:  5,
	}
}

// LinkConfig holds the tunables of a Link.
type LinkConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TickInterval   time.Duration
	QueueSize      int
	States         protocol.StateRange
	Backoff        BackoffConfig
	// SendShutdownNotice writes ShutdownNotice before the final close.
	SendShutdownNotice bool
}

// DefaultLinkConfig returns the defaults used by the controller firmware.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		TickInterval:   DefaultTickInterval,
		QueueSize:      DefaultQueueSize,
		States:         protocol.DefaultStateRange(),
		Backoff:        DefaultBackoffConfig(),
	}
}

// withDefaults fills zero fields.
func (c LinkConfig) withDefaults() LinkConfig {
	d := DefaultLinkConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.States == (protocol.StateRange{}) {
		c.States = d.States
	}
	if c.Backoff.BaseDelay <= 0 {
		c.Backoff.BaseDelay = d.Backoff.BaseDelay
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	if c.Backoff.MaxShift <= 0 {
		c.Backoff.MaxShift = d.Backoff.MaxShift
	}
	return c
}
