// Package domain contains the core value types and errors of locolink.
//
// It has no dependencies on sockets, logging or configuration files and
// holds only the rules every layer agrees on.
//
// # Types
//
//   - [Command]: one locomotive/state pair to send to the controller
//   - [Target]: the controller address, validated before use
//   - [Status]: the coarse connection status reported to observers
//   - [Termination]: how a session ended (manual, graceful or abnormal)
//   - [TransportError]: a failed dial, read or write tagged with its address
package domain
