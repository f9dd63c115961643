package ports

import "github.com/bft-labs/locolink/pkg/log"

// Logger is the structured logger used by the application layer.
type Logger = log.Logger

// Field is a structured logging key/value pair.
type Field = log.Field

// Field constructors re-exported so the application layer depends on ports only.
var (
	String   = log.String
	Int      = log.Int
	Int64    = log.Int64
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
	Any      = log.Any
)
