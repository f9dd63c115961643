// Package locolink provides an embeddable TCP client for model-railway
// signal controllers.
//
// The client keeps one persistent connection to a controller, sends signal
// commands as checksummed binary frames, decodes the frames the controller
// reports back, and reconnects on its own with a capped exponential backoff
// when auto-connect is enabled.
//
// # Basic Usage
//
//	c, err := locolink.New(locolink.Config{
//	    Host:        "192.168.4.1",
//	    Port:        9000,
//	    AutoConnect: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Shutdown()
//
//	c.SendCommand(3, 2) // locomotive 3, state 2
//
// # Configuration
//
// A zero [Config] is valid: the client starts idle with no target. Durations,
// the queue size and the state range have defaults set by [Config.SetDefaults].
//
// # Event Handling
//
// Implement [EventHandler], or fill a [HandlerFuncs], and register it with
// [WithHandler] or [Client.AddHandler]:
//
//	c.AddHandler(&locolink.HandlerFuncs{
//	    Status: func(s locolink.Status) { fmt.Println("status:", s) },
//	    Data:   func(line string) { fmt.Print(line) },
//	})
//
// Handlers are called synchronously from the client goroutines and should
// return quickly. Every session that reports connected later reports exactly
// one disconnected, whether the peer closed, the socket failed, or
// [Client.Disconnect] was called.
//
// # Reconnect Schedule
//
// After an abnormal disconnect the next supervised attempt waits 1s, 2s, 4s
// and so on up to 30s. A graceful close by the peer or a manual disconnect
// restarts the schedule at the base delay.
//
// # Plugins
//
// Plugins are registered with [WithPlugin] and run alongside the client:
//
//	c, err := locolink.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{Path: "locolink.toml"}),
//	    healthprobe.WithDefaultHealthProbe(),
//	)
//
// # Version
//
// Module version: 1.0.0
// See [Version] and [MinCompatibleVersion] for compatibility information.
package locolink
