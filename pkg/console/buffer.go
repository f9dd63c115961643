package console

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Flush defaults.
const (
	// DefaultFlushInterval is how often pending lines are handed out.
	DefaultFlushInterval = 100 * time.Millisecond

	// DefaultFlushBytes is the soft size of one flushed block.
	DefaultFlushBytes = 4096

	// MinFlushBytes is the smallest block size a Buffer accepts.
	MinFlushBytes = 64
)

// Buffer coalesces lines and hands them to a consumer in blocks, once per
// interval. A block stops growing once it reaches the flush size, so the
// last line of a block may push it past that size; the rest waits for the
// next tick.
type Buffer struct {
	maxBytes int
	interval time.Duration
	consumer func(block string)

	mu      sync.Mutex
	pending []string
	bytes   int

	flushMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBuffer creates a buffer that flushes every DefaultFlushInterval.
// maxBytes below MinFlushBytes is raised to it.
func NewBuffer(maxBytes int, consumer func(block string)) *Buffer {
	return NewBufferInterval(maxBytes, DefaultFlushInterval, consumer)
}

// NewBufferInterval creates a buffer with a custom flush interval.
func NewBufferInterval(maxBytes int, interval time.Duration, consumer func(block string)) *Buffer {
	if maxBytes < MinFlushBytes {
		maxBytes = MinFlushBytes
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Buffer{
		maxBytes: maxBytes,
		interval: interval,
		consumer: consumer,
	}
}

// Offer queues line. Empty lines are ignored. Offer never blocks on the
// consumer.
func (b *Buffer) Offer(line string) {
	if line == "" {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, line)
	b.bytes += len(line)
	b.mu.Unlock()
}

// OnLine lets a Buffer listen to a Log.
func (b *Buffer) OnLine(line string) { b.Offer(line) }

// Pending returns the number of queued bytes.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// Start launches the flush loop. It stops when ctx is cancelled or Close is
// called. Calling Start on a running buffer has no effect.
func (b *Buffer) Start(ctx context.Context) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(ctx, b.done)
}

func (b *Buffer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// Flush hands out one block if anything is pending. It reports whether a
// block was delivered.
func (b *Buffer) Flush() bool {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	block := b.take()
	if block == "" {
		return false
	}
	if b.consumer != nil {
		b.consumer(block)
	}
	return true
}

// take removes lines from the front of the queue until the block reaches
// the flush size.
func (b *Buffer) take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return ""
	}

	var sb strings.Builder
	n := 0
	for n < len(b.pending) && sb.Len() < b.maxBytes {
		sb.WriteString(b.pending[n])
		n++
	}
	b.bytes -= sb.Len()
	remaining := copy(b.pending, b.pending[n:])
	for i := remaining; i < len(b.pending); i++ {
		b.pending[i] = ""
	}
	b.pending = b.pending[:remaining]
	return sb.String()
}

// Close stops the flush loop and delivers everything still pending.
func (b *Buffer) Close() {
	b.runMu.Lock()
	cancel, done := b.cancel, b.done
	b.runMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	for b.Flush() {
	}
}
