package locolink

import (
	"time"

	"github.com/bft-labs/locolink/internal/ports"
	"github.com/bft-labs/locolink/pkg/log"
)

// Logger is the interface for structured logging.
type Logger = log.Logger

// LogField represents a structured log field.
type LogField = log.Field

// Dialer opens TCP connections. *net.Dialer satisfies this interface.
type Dialer = ports.Dialer

// Option configures optional behavior of a Client.
type Option func(*options)

// options holds the optional configuration for a Client.
type options struct {
	logger    ports.Logger
	dialer    ports.Dialer
	handlers  []EventHandler
	plugins   []Plugin
	now       func() time.Time
	keepAlive time.Duration
}

// defaultKeepAlive is the TCP keep-alive period of the default dialer.
const defaultKeepAlive = 15 * time.Second

func defaultOptions() options {
	return options{
		logger:    log.Discard,
		keepAlive: defaultKeepAlive,
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDialer replaces the TCP dialer. Tests use it to inject failures.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithKeepAlive sets the TCP keep-alive period of the default dialer.
// A negative value disables keep-alive.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		o.keepAlive = d
	}
}

// WithHandler registers an event handler before any event can fire.
// It is equivalent to calling AddHandler right after New, minus the race.
func WithHandler(h EventHandler) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, h)
	}
}

// WithPlugin registers a plugin to be initialized when the client is created.
// Plugins are initialized in registration order and shut down in reverse.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithClock replaces the clock used by the reconnect schedule.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
