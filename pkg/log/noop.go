package log

// Discard drops every message. Clients use it until WithLogger is given.
var Discard Logger = NoopLogger{}

// NoopLogger is a Logger that writes nothing.
type NoopLogger struct{}

// NewNoopLogger returns a NoopLogger.
func NewNoopLogger() NoopLogger { return NoopLogger{} }

func (NoopLogger) Debug(string, ...Field) {}
func (NoopLogger) Info(string, ...Field)  {}
func (NoopLogger) Warn(string, ...Field)  {}
func (NoopLogger) Error(string, ...Field) {}
