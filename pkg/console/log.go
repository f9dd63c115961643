package console

import (
	"reflect"
	"strings"
	"sync"

	"github.com/bft-labs/locolink/pkg/locolink"
)

// DefaultMaxLines is the number of lines a Log keeps by default.
const DefaultMaxLines = 10000

// Listener is notified of every appended line.
type Listener interface {
	OnLine(line string)
}

// ListenerFunc adapts a function to Listener. Listeners are keyed by pointer,
// so register a pointer to it:
//
//	f := console.ListenerFunc(fn)
//	log.AddListener(&f)
type ListenerFunc func(line string)

// OnLine calls f.
func (f ListenerFunc) OnLine(line string) { f(line) }

// Log keeps the most recent lines in arrival order. When full, the oldest
// line is dropped.
type Log struct {
	locolink.BaseEventHandler

	max int

	mu    sync.Mutex
	lines []string
	head  int
	size  int

	lmu       sync.RWMutex
	listeners []Listener
}

// NewLog creates a log that keeps at most max lines.
func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Log{
		max:   max,
		lines: make([]string, max),
	}
}

// Append stores line and notifies listeners. Empty lines are ignored.
// Listeners run on the caller's goroutine, outside the log lock.
func (l *Log) Append(line string) {
	if line == "" {
		return
	}

	l.mu.Lock()
	l.lines[(l.head+l.size)%l.max] = line
	if l.size < l.max {
		l.size++
	} else {
		l.head = (l.head + 1) % l.max
	}
	l.mu.Unlock()

	l.lmu.RLock()
	listeners := l.listeners
	l.lmu.RUnlock()
	for _, ln := range listeners {
		ln.OnLine(line)
	}
}

// OnData appends client data lines.
func (l *Log) OnData(text string) { l.Append(text) }

// Lines returns a copy of the stored lines, oldest first.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.lines[(l.head+i)%l.max]
	}
	return out
}

// Len returns the number of stored lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// DrainAll removes every stored line and returns them concatenated.
func (l *Log) DrainAll() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for i := 0; i < l.size; i++ {
		idx := (l.head + i) % l.max
		b.WriteString(l.lines[idx])
		l.lines[idx] = ""
	}
	l.head, l.size = 0, 0
	return b.String()
}

// AddListener registers ln once. It returns false for a duplicate or for a
// listener that is not a non-nil pointer.
func (l *Log) AddListener(ln Listener) bool {
	if !identifiable(ln) {
		return false
	}
	l.lmu.Lock()
	defer l.lmu.Unlock()
	for _, existing := range l.listeners {
		if existing == ln {
			return false
		}
	}
	listeners := make([]Listener, len(l.listeners), len(l.listeners)+1)
	copy(listeners, l.listeners)
	l.listeners = append(listeners, ln)
	return true
}

// RemoveListener unregisters ln. It returns false if ln was not registered.
func (l *Log) RemoveListener(ln Listener) bool {
	if !identifiable(ln) {
		return false
	}
	l.lmu.Lock()
	defer l.lmu.Unlock()
	for i, existing := range l.listeners {
		if existing == ln {
			listeners := make([]Listener, 0, len(l.listeners)-1)
			listeners = append(listeners, l.listeners[:i]...)
			l.listeners = append(listeners, l.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func identifiable(ln Listener) bool {
	if ln == nil {
		return false
	}
	v := reflect.ValueOf(ln)
	return v.Kind() == reflect.Pointer && !v.IsNil()
}

var _ locolink.EventHandler = (*Log)(nil)
