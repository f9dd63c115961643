package log

// Version of the log module. 2.0.0 made NoopLogger a value type.
const (
	Version              = "2.0.0"
	MinCompatibleVersion = "2.0.0"
)
