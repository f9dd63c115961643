// Package ports defines the interfaces that connect the application layer to
// infrastructure adapters.
//
// # Port Interfaces
//
//   - [Dialer]: opens the TCP stream to the controller
//   - [FrameSender]: queues an encoded frame for the single writer
//   - [Logger]: structured logging abstraction
//
// The application layer (internal/app) depends only on these interfaces.
// internal/adapters/tcp implements Dialer on top of net.Dialer; tests swap in
// in-memory pipes and failing dialers.
package ports
