// Package configwatcher retargets a locolink client when its TOML config
// file changes. Only the host and port keys are reloaded; every other
// setting needs a restart.
package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/bft-labs/locolink/pkg/locolink"
	"github.com/bft-labs/locolink/pkg/log"
)

// Plugin implements config watching functionality.
// It monitors one TOML file and moves the client to the host and port it
// names whenever the file is written.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	debounceDelay time.Duration

	// Runtime state
	client   *locolink.Client
	logger   locolink.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	reloads  int
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML file to watch.
	Path string

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults and no path.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// targetFile is the subset of the config file the watcher reloads.
type targetFile struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file.
func (p *Plugin) Initialize(ctx context.Context, cfg locolink.PluginConfig) error {
	p.mu.Lock()
	p.client = cfg.Client
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.mu.Unlock()

	if p.path == "" || p.client == nil {
		p.logger.Warn("config watcher disabled: no config path")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pkgerrors.Wrap(err, "create watcher")
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return pkgerrors.Wrapf(err, "watch %s", filepath.Dir(p.path))
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher plugin initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns how many times a changed target was applied.
func (p *Plugin) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// watchLoop watches for config file changes.
func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.reload(); err != nil {
			p.logger.Warn("config watcher: reload failed", log.String("path", p.path), log.Err(err))
		}
	})
}

// reload reads the file and retargets the client if host or port changed.
func (p *Plugin) reload() error {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return pkgerrors.WithStack(err)
	}
	var tf targetFile
	if err := toml.Unmarshal(b, &tf); err != nil {
		return pkgerrors.Wrap(err, "parse")
	}

	c := p.client
	cur := c.Target()
	if tf.Host == "" {
		tf.Host = cur.Host
	}
	if tf.Port == 0 {
		tf.Port = int(cur.Port)
	}
	if tf.Host == cur.Host && tf.Port == int(cur.Port) {
		return nil
	}

	if !retarget(c, tf.Host, tf.Port) {
		return pkgerrors.Errorf("rejected target %s:%d", tf.Host, tf.Port)
	}

	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	p.logger.Info("config watcher: target changed",
		log.String("from", cur.String()),
		log.String("host", tf.Host),
		log.Int("port", tf.Port))
	return nil
}

// retarget moves c to host:port the way its current mode expects. A
// supervised client is restarted on the new address; a manually connected
// one reconnects there; an idle one only records it.
func retarget(c *locolink.Client, host string, port int) bool {
	enabled, paused := c.AutoConnect()
	switch {
	case enabled:
		c.DisableAutoConnect()
		c.Disconnect()
		if !c.EnableAutoConnect(host, port) {
			return false
		}
		if paused {
			c.PauseAutoConnect(true)
		}
		return true
	case c.IsConnectionAlive():
		return c.Connect(host, port)
	default:
		return c.SetTarget(host, port)
	}
}

// Ensure Plugin implements locolink.Plugin.
var _ locolink.Plugin = (*Plugin)(nil)
