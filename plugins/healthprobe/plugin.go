// Package healthprobe periodically checks whether the controller accepts
// TCP connections and reports when that changes.
package healthprobe

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/locolink/pkg/locolink"
	"github.com/bft-labs/locolink/pkg/log"
)

// Plugin implements endpoint health probing.
// A live connection counts as reachable, so the probe only dials while the
// client is disconnected.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	interval time.Duration
	timeout  time.Duration
	onChange func(bool)

	// Runtime state
	client    *locolink.Client
	logger    locolink.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	reachable bool
	probed    bool
}

// Config holds configuration options for the health probe plugin.
type Config struct {
	// Interval is the time between probes.
	// Default: 10 seconds
	Interval time.Duration

	// Timeout bounds each probe dial.
	// Default: 1 second
	Timeout time.Duration

	// OnChange, if set, is called from the probe goroutine when
	// reachability changes, including the first probe.
	OnChange func(reachable bool)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  time.Second,
	}
}

// New creates a new health probe plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}

	return &Plugin{
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		onChange: cfg.OnChange,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "healthprobe"
}

// Initialize starts the probe loop.
func (p *Plugin) Initialize(ctx context.Context, cfg locolink.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.client = cfg.Client
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	if p.client == nil {
		p.logger.Warn("health probe disabled: no client")
		return nil
	}

	probeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(probeCtx)

	p.logger.Info("health probe plugin initialized", log.Duration("interval", p.interval))
	return nil
}

// Shutdown stops the probe loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

// Reachable returns the result of the last probe. It is false before the
// first probe completes.
func (p *Plugin) Reachable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reachable
}

func (p *Plugin) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Plugin) probe(ctx context.Context) {
	if p.client.Target() == (locolink.Target{}) {
		return
	}
	ok := p.client.ProbeEndpoint(ctx, p.timeout)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	changed := !p.probed || ok != p.reachable
	p.reachable = ok
	p.probed = true
	p.mu.Unlock()

	if !changed {
		return
	}
	target := p.client.Target().String()
	if ok {
		p.logger.Info("controller reachable", log.String("target", target))
	} else {
		p.logger.Warn("controller unreachable", log.String("target", target))
	}
	if p.onChange != nil {
		p.onChange(ok)
	}
}

// Ensure Plugin implements locolink.Plugin.
var _ locolink.Plugin = (*Plugin)(nil)
