package log

import (
	"fmt"
	"time"
)

// Logger is the structured logger every locolink package writes to.
// Implementations must be safe for concurrent use: the session read loop,
// the writer and the supervisor each log from their own goroutine.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key/value pair attached to a log message. Adapters decide
// how Value is rendered; the constructors below only fix its Go type.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Port records a TCP port. It keeps the uint16 so adapters print a number
// rather than a byte pair.
func Port(key string, value uint16) Field { return Field{Key: key, Value: value} }

// Duration is rendered by the zerolog adapter in its duration format.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err stores err under the "error" key. A nil err is kept as nil.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Stringer defers formatting to value.String, so frames and statuses are
// only rendered when the level is enabled.
func Stringer(key string, value fmt.Stringer) Field { return Field{Key: key, Value: value} }

// Any accepts values with no dedicated constructor, such as config structs.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }
