package configwatcher

import "github.com/bft-labs/locolink/pkg/locolink"

// WithConfigWatcher returns a locolink Option that enables config file watching.
// When enabled, the plugin monitors the given TOML file and moves the client
// to the host and port it names.
//
// Usage:
//
//	c, err := locolink.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/locolink/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) locolink.Option {
	plugin := New(cfg)
	return locolink.WithPlugin(plugin)
}

// WithPath returns a locolink Option that watches path with the default
// debounce delay.
//
// Usage:
//
//	c, err := locolink.New(cfg, configwatcher.WithPath(cliconfig.DefaultConfigPath()))
func WithPath(path string) locolink.Option {
	cfg := DefaultConfig()
	cfg.Path = path
	return WithConfigWatcher(cfg)
}
