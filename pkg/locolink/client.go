package locolink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/locolink/internal/adapters/tcp"
	"github.com/bft-labs/locolink/internal/app"
	"github.com/bft-labs/locolink/internal/ports"
	"github.com/bft-labs/locolink/pkg/log"
	"github.com/bft-labs/locolink/pkg/protocol"
)

// Client is a persistent TCP client for one railway controller.
// All methods are safe for concurrent use. Use New to create one and
// Shutdown to release it; a shut down client cannot be restarted.
type Client struct {
	config  Config
	link    *app.Link
	events  *dispatcher
	logger  ports.Logger
	plugins []Plugin

	ctx    context.Context
	cancel context.CancelFunc

	shutdownOnce sync.Once
}

// New creates a client with the given configuration and starts its writer
// and supervisor goroutines. When cfg.AutoConnect is set the supervisor
// begins connecting immediately. Returns an error if the configuration is
// invalid or a plugin fails to initialize.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	dialer := o.dialer
	if dialer == nil {
		dialer = tcp.NewDialer(o.keepAlive, logger)
	}

	events := newDispatcher(logger)
	for _, h := range o.handlers {
		events.add(h)
	}

	link := app.NewLink(cfg.linkConfig(), app.LinkDeps{
		Dialer:   dialer,
		Logger:   logger,
		Observer: events,
		Emitter:  events,
		Now:      o.now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: cfg,
		link:   link,
		events: events,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Host != "" {
		if err := link.SetTarget(cfg.Host, cfg.Port); err != nil {
			cancel()
			return nil, err
		}
	}
	link.Start()

	pluginCfg := PluginConfig{
		Client:         c,
		Host:           cfg.Host,
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	}
	for _, p := range o.plugins {
		if err := p.Initialize(ctx, pluginCfg); err != nil {
			logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			c.Shutdown()
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		c.plugins = append(c.plugins, p)
		logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	if cfg.AutoConnect {
		if err := link.EnableAutoConnect(cfg.Host, cfg.Port); err != nil {
			c.Shutdown()
			return nil, err
		}
	}
	return c, nil
}

// Config returns the configuration the client was created with, with
// defaults filled in.
func (c *Client) Config() Config { return c.config }

// EnableAutoConnect validates host:port, makes it the target, resets the
// backoff and lets the supervisor connect and reconnect on its own.
// It returns false for an invalid target or a shut down client.
func (c *Client) EnableAutoConnect(host string, port int) bool {
	if err := c.link.EnableAutoConnect(host, port); err != nil {
		c.logger.Warn("enable auto connect rejected", ports.Err(err))
		return false
	}
	return true
}

// DisableAutoConnect stops automatic attempts. A live connection is kept.
func (c *Client) DisableAutoConnect() { c.link.DisableAutoConnect() }

// PauseAutoConnect suspends or resumes automatic attempts while keeping the
// target and the backoff schedule.
func (c *Client) PauseAutoConnect(paused bool) { c.link.PauseAutoConnect(paused) }

// AutoConnect reports whether auto-connect is enabled and whether it is paused.
func (c *Client) AutoConnect() (enabled, paused bool) { return c.link.AutoConnect() }

// SetTarget changes the target without touching a live connection. The next
// supervised or manual attempt uses the new address.
func (c *Client) SetTarget(host string, port int) bool {
	if err := c.link.SetTarget(host, port); err != nil {
		c.logger.Warn("set target rejected", ports.Err(err))
		return false
	}
	return true
}

// Target returns the current target. The zero Target means none is set.
func (c *Client) Target() Target { return c.link.Target() }

// Connect starts a manual connection to host:port. It is a no-op when the
// client is already connecting or connected to that address, and it
// disconnects first when connected elsewhere. It returns false for an
// invalid target or a shut down client.
func (c *Client) Connect(host string, port int) bool {
	if err := c.link.Connect(host, port); err != nil {
		c.logger.Warn("connect rejected", ports.Err(err))
		return false
	}
	return true
}

// Disconnect closes the live connection. The disconnect is reported once,
// as manual, and the backoff restarts from its base delay.
func (c *Client) Disconnect() { c.link.Disconnect() }

// SendCommand clamps loco and state and queues a control frame. It returns
// false when there is no live connection, the client is shut down, or the
// queue is full. A true result means the frame was queued, not delivered.
func (c *Client) SendCommand(loco, state int) bool {
	return c.link.SendCommand(loco, state) == nil
}

// IsConnectionAlive reports whether a socket is open. It performs no I/O, so
// a peer that disappeared without closing the connection still reads as
// alive until the next read or write fails.
func (c *Client) IsConnectionAlive() bool { return c.link.IsConnectionAlive() }

// ProbeEndpoint reports whether the target accepts TCP connections. A live
// connection counts as reachable; otherwise a throwaway dial bounded by
// timeout (at least 100ms) is made.
func (c *Client) ProbeEndpoint(ctx context.Context, timeout time.Duration) bool {
	return c.link.ProbeEndpoint(ctx, timeout)
}

// RemoteState returns the last state the controller reported for loco.
func (c *Client) RemoteState(loco int) (int, bool) { return c.events.remoteState(loco) }

// States returns the accepted state range.
func (c *Client) States() protocol.StateRange { return c.link.States() }

// AddHandler registers h. Handlers are keyed by pointer identity: adding the
// same handler twice is a no-op and returns false, as does a handler that is
// not a non-nil pointer.
func (c *Client) AddHandler(h EventHandler) bool { return c.events.add(h) }

// RemoveHandler unregisters h. It returns false if h was not registered.
func (c *Client) RemoveHandler(h EventHandler) bool { return c.events.remove(h) }

// Shutdown disables auto-connect, closes the connection, stops every
// goroutine and shuts down plugins in reverse order. No handler is called
// after Shutdown returns. It is safe to call more than once, but it must not
// be called from inside an event handler.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		for i := len(c.plugins) - 1; i >= 0; i-- {
			p := c.plugins[i]
			if err := p.Shutdown(context.Background()); err != nil {
				c.logger.Error("plugin shutdown failed",
					ports.String("plugin", p.Name()),
					ports.Err(err))
			} else {
				c.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
			}
		}
		c.cancel()
		c.link.Shutdown()
	})
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := []struct {
		name       string
		version    string
		minVersion string
	}{
		{"protocol", protocol.Version, protocol.MinCompatibleVersion},
		{"log", log.Version, log.MinCompatibleVersion},
	}

	for _, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				m.name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible checks if version >= minVersion.
// Assumes versions are in format "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
