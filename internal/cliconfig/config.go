package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/pkg/locolink"
	"github.com/bft-labs/locolink/pkg/log"
	"github.com/bft-labs/locolink/pkg/protocol"
)

// Defaults for the controller address.
const (
	DefaultHost = "192.168.2.6"
	DefaultPort = 9000
)

// DefaultHealthInterval is the period of the health probe when enabled.
const DefaultHealthInterval = 10 * time.Second

// Config holds CLI configuration for locolink.
type Config struct {
	Host string
	Port int

	// Loco is the locomotive used for stdin lines that carry only a state.
	Loco     int
	StateMin int
	StateMax int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TickInterval   time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	HealthInterval time.Duration

	MetricsAddr string
	LogLevel    string

	WatchConfig    bool
	ShutdownNotice bool
	// Manual makes one connect attempt instead of enabling auto-connect.
	Manual bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	client := locolink.DefaultConfig()
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		Loco:           protocol.LocoMin,
		StateMin:       client.States.Min,
		StateMax:       client.States.Max,
		ConnectTimeout: client.ConnectTimeout,
		ReadTimeout:    client.ReadTimeout,
		WriteTimeout:   client.WriteTimeout,
		TickInterval:   client.TickInterval,
		BackoffBase:    client.BackoffBase,
		BackoffMax:     client.BackoffMax,
		HealthInterval: DefaultHealthInterval,
		LogLevel:       "info",
	}
}

// Validate checks the configuration for errors and normalizes it.
func (c *Config) Validate() error {
	c.Host = strings.TrimSpace(c.Host)
	if _, err := domain.NewTarget(c.Host, c.Port); err != nil {
		return fmt.Errorf("host/port: %w", err)
	}
	if !protocol.ValidLoco(c.Loco) {
		return fmt.Errorf("%w: loco must be between %d and %d", domain.ErrInvalidConfig, protocol.LocoMin, protocol.LocoMax)
	}
	states := protocol.StateRange{Min: c.StateMin, Max: c.StateMax}
	if !states.Valid() {
		return fmt.Errorf("%w: state range %d..%d", domain.ErrInvalidConfig, c.StateMin, c.StateMax)
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"connect-timeout", c.ConnectTimeout},
		{"read-timeout", c.ReadTimeout},
		{"write-timeout", c.WriteTimeout},
		{"tick-interval", c.TickInterval},
		{"backoff-base", c.BackoffBase},
		{"backoff-max", c.BackoffMax},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidConfig, p.name)
		}
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: backoff-max must not be below backoff-base", domain.ErrInvalidConfig)
	}
	if c.HealthInterval < 0 {
		return fmt.Errorf("%w: health-interval must not be negative", domain.ErrInvalidConfig)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}

// ClientConfig converts the CLI configuration into client settings.
func (c Config) ClientConfig() locolink.Config {
	return locolink.Config{
		Host:           c.Host,
		Port:           c.Port,
		AutoConnect:    !c.Manual,
		States:         protocol.StateRange{Min: c.StateMin, Max: c.StateMax},
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		TickInterval:   c.TickInterval,
		BackoffBase:    c.BackoffBase,
		BackoffMax:     c.BackoffMax,
		ShutdownNotice: c.ShutdownNotice,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
