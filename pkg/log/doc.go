// Package log provides the logging abstraction used by every locolink
// component.
//
// Internal packages never import a concrete logging library; they take a
// Logger and emit structured fields. The zerolog adapter is the production
// implementation and the no-op logger is the library default.
//
// # Usage
//
//	logger := log.NewZerologAdapter()
//	logger.Info("connected", log.String("addr", "192.168.2.6:9000"))
//
// The CLI selects a level from configuration:
//
//	level, err := log.ParseLevel("debug")
//	logger := log.NewZerologAdapterLevel(os.Stderr, level)
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package log
