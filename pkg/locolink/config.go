package locolink

import (
	"fmt"
	"time"

	"github.com/bft-labs/locolink/internal/app"
	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/pkg/protocol"
)

// Config holds the settings of a Client. Zero durations and sizes are
// replaced by defaults in SetDefaults.
type Config struct {
	// Host and Port name the controller. They may be left empty and supplied
	// later through SetTarget, Connect or EnableAutoConnect.
	Host string
	Port int

	// AutoConnect enables the reconnect supervisor for Host:Port as soon as
	// the client is created.
	AutoConnect bool

	// States is the range of signal states the controller accepts.
	// Default: 1..6
	States protocol.StateRange

	// ConnectTimeout bounds a single dial.
	// Default: 4 seconds
	ConnectTimeout time.Duration

	// ReadTimeout bounds one blocking read. An expired read is not an error;
	// it only lets the read loop notice a stop request.
	// Default: 4 seconds
	ReadTimeout time.Duration

	// WriteTimeout bounds one frame write.
	// Default: 4 seconds
	WriteTimeout time.Duration

	// TickInterval is the supervisor period.
	// Default: 1 second
	TickInterval time.Duration

	// QueueSize is the capacity of the outgoing frame queue.
	// Default: 16
	QueueSize int

	// BackoffBase and BackoffMax bound the reconnect delay after abnormal
	// disconnects.
	// Default: 1 second and 30 seconds
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// ShutdownNotice writes "[CLIENT] DISCONNECT\n" to a live socket before
	// Shutdown closes it.
	ShutdownNotice bool
}

// DefaultConfig returns a Config with every default filled in and no target.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.States == (protocol.StateRange{}) {
		c.States = protocol.DefaultStateRange()
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = app.DefaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = app.DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = app.DefaultWriteTimeout
	}
	if c.TickInterval == 0 {
		c.TickInterval = app.DefaultTickInterval
	}
	if c.QueueSize == 0 {
		c.QueueSize = app.DefaultQueueSize
	}
	b := app.DefaultBackoffConfig()
	if c.BackoffBase == 0 {
		c.BackoffBase = b.BaseDelay
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = b.MaxDelay
	}
}

// Validate checks the configuration. Errors wrap domain.ErrInvalidConfig or
// domain.ErrInvalidTarget.
func (c Config) Validate() error {
	if c.Host != "" || c.Port != 0 || c.AutoConnect {
		if _, err := domain.NewTarget(c.Host, c.Port); err != nil {
			return err
		}
	}
	if !c.States.Valid() {
		return fmt.Errorf("%w: state range %d..%d", domain.ErrInvalidConfig, c.States.Min, c.States.Max)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"connect timeout", c.ConnectTimeout},
		{"read timeout", c.ReadTimeout},
		{"write timeout", c.WriteTimeout},
		{"tick interval", c.TickInterval},
		{"backoff base", c.BackoffBase},
		{"backoff max", c.BackoffMax},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%w: %s must not be negative", domain.ErrInvalidConfig, d.name)
		}
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queue size must not be negative", domain.ErrInvalidConfig)
	}
	if c.BackoffBase > 0 && c.BackoffMax > 0 && c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: backoff max %s is below backoff base %s",
			domain.ErrInvalidConfig, c.BackoffMax, c.BackoffBase)
	}
	return nil
}

func (c Config) linkConfig() app.LinkConfig {
	b := app.DefaultBackoffConfig()
	b.BaseDelay = c.BackoffBase
	b.MaxDelay = c.BackoffMax
	return app.LinkConfig{
		ConnectTimeout:     c.ConnectTimeout,
		ReadTimeout:        c.ReadTimeout,
		WriteTimeout:       c.WriteTimeout,
		TickInterval:       c.TickInterval,
		QueueSize:          c.QueueSize,
		States:             c.States,
		Backoff:            b,
		SendShutdownNotice: c.ShutdownNotice,
	}
}
