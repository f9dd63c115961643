package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Loco           int    `toml:"loco"`
	StateMin       int    `toml:"state_min"`
	StateMax       int    `toml:"state_max"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	TickInterval   string `toml:"tick_interval"`
	BackoffBase    string `toml:"backoff_base"`
	BackoffMax     string `toml:"backoff_max"`
	HealthInterval string `toml:"health_interval"`
	MetricsAddr    string `toml:"metrics_addr"`
	LogLevel       string `toml:"log_level"`
	WatchConfig    *bool  `toml:"watch_config"`
	ShutdownNotice *bool  `toml:"shutdown_notice"`
	Manual         *bool  `toml:"manual"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.locolink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".locolink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", fc.Host, &cfg.Host)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("loco", fc.Loco, &cfg.Loco)
	s.setInt("state-min", fc.StateMin, &cfg.StateMin)
	s.setInt("state-max", fc.StateMax, &cfg.StateMax)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"connect-timeout", fc.ConnectTimeout, &cfg.ConnectTimeout},
		{"read-timeout", fc.ReadTimeout, &cfg.ReadTimeout},
		{"write-timeout", fc.WriteTimeout, &cfg.WriteTimeout},
		{"tick-interval", fc.TickInterval, &cfg.TickInterval},
		{"backoff-base", fc.BackoffBase, &cfg.BackoffBase},
		{"backoff-max", fc.BackoffMax, &cfg.BackoffMax},
		{"health-interval", fc.HealthInterval, &cfg.HealthInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setBool("watch-config", fc.WatchConfig, &cfg.WatchConfig)
	s.setBool("shutdown-notice", fc.ShutdownNotice, &cfg.ShutdownNotice)
	s.setBool("manual", fc.Manual, &cfg.Manual)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
