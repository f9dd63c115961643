package locolink

import (
	"context"
	"time"
)

// Plugin extends a Client with optional behavior. Plugins are initialized in
// registration order when the client is created and shut down in reverse
// order by Shutdown.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize starts the plugin. An error aborts New; plugins that were
	// already initialized are shut down again.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to every plugin on Initialize.
type PluginConfig struct {
	// Client is the client the plugin is attached to. Plugins may register
	// handlers and drive the connection through it.
	Client *Client

	// Host and Port are the configured target at creation time.
	Host string
	Port int

	// ConnectTimeout is the dial timeout of the client, a sensible bound for
	// probes.
	ConnectTimeout time.Duration

	Logger Logger
}
