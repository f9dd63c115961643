package cliconfig

import (
	"os"
	"time"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "LOCOLINK_"

// ApplyEnvConfig applies configuration from environment variables (LOCOLINK_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(key string) string { return os.Getenv(EnvPrefix + key) }

	s.setString("host", env("HOST"), &cfg.Host)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	ints := []struct {
		flag string
		key  string
		dst  *int
	}{
		{"port", "PORT", &cfg.Port},
		{"loco", "LOCO", &cfg.Loco},
		{"state-min", "STATE_MIN", &cfg.StateMin},
		{"state-max", "STATE_MAX", &cfg.StateMax},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.key), i.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		flag string
		key  string
		dst  *time.Duration
	}{
		{"connect-timeout", "CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"read-timeout", "READ_TIMEOUT", &cfg.ReadTimeout},
		{"write-timeout", "WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"tick-interval", "TICK_INTERVAL", &cfg.TickInterval},
		{"backoff-base", "BACKOFF_BASE", &cfg.BackoffBase},
		{"backoff-max", "BACKOFF_MAX", &cfg.BackoffMax},
		{"health-interval", "HEALTH_INTERVAL", &cfg.HealthInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.key), d.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("watch-config", env("WATCH_CONFIG"), &cfg.WatchConfig)
	s.setBoolFromString("shutdown-notice", env("SHUTDOWN_NOTICE"), &cfg.ShutdownNotice)
	s.setBoolFromString("manual", env("MANUAL"), &cfg.Manual)

	return nil
}
