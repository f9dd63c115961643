// Package locolink runs a model-railway controller link from a stream of
// commands.
//
// Example usage:
//
//	cfg := locolink.DefaultConfig()
//	cfg.Host = "192.168.2.6"
//	cfg.Port = 9000
//	commands := make(chan locolink.Command)
//	go func() {
//	    commands <- locolink.Command{Loco: 3, State: 2}
//	}()
//	if err := locolink.Run(ctx, cfg, commands); err != nil {
//	    log.Fatal(err)
//	}
//
// Applications that need events, plugins or manual control should use
// package pkg/locolink directly.
package locolink

import (
	"context"
	"time"

	"github.com/bft-labs/locolink/internal/domain"
	client "github.com/bft-labs/locolink/pkg/locolink"
)

// Config holds the configuration for the client.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = client.Config

// Command asks the controller to put one locomotive into one state.
type Command = domain.Command

// Option configures the client created by Run.
type Option = client.Option

// DefaultConfig returns a Config with sensible default values.
// At minimum, you must set Host and Port before calling Run.
func DefaultConfig() Config {
	return client.DefaultConfig()
}

// pendingPoll is how often Run retries a command that arrived while the
// link was down.
const pendingPoll = 50 * time.Millisecond

// Run connects to cfg.Host:cfg.Port with auto-connect enabled and sends
// every command received on commands. A command that arrives while the link
// is down is held until it can be queued; a newer command replaces it.
// Closing commands stops input but keeps the link up. Run returns nil when
// ctx is cancelled.
func Run(ctx context.Context, cfg Config, commands <-chan Command, opts ...Option) error {
	cfg.AutoConnect = true
	c, err := client.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer c.Shutdown()

	ticker := time.NewTicker(pendingPoll)
	defer ticker.Stop()

	var pending *Command
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if c.SendCommand(cmd.Loco, cmd.State) {
				pending = nil
				continue
			}
			pending = &cmd
		case <-ticker.C:
			if pending == nil {
				continue
			}
			if c.SendCommand(pending.Loco, pending.State) {
				pending = nil
			}
		}
	}
}
