package healthprobe

import "github.com/bft-labs/locolink/pkg/locolink"

// WithHealthProbe returns a locolink Option that enables endpoint probing.
//
// Usage:
//
//	c, err := locolink.New(cfg,
//	    healthprobe.WithHealthProbe(healthprobe.Config{
//	        Interval: 5 * time.Second,
//	        OnChange: func(ok bool) { fmt.Println("reachable:", ok) },
//	    }),
//	)
func WithHealthProbe(cfg Config) locolink.Option {
	plugin := New(cfg)
	return locolink.WithPlugin(plugin)
}

// WithDefaultHealthProbe returns a locolink Option that probes every 10
// seconds with a 1 second timeout.
//
// Usage:
//
//	c, err := locolink.New(cfg, healthprobe.WithDefaultHealthProbe())
func WithDefaultHealthProbe() locolink.Option {
	return WithHealthProbe(DefaultConfig())
}
