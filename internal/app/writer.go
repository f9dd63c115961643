package app

import (
	"context"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/internal/ports"
)

// sessionSource returns the session that currently owns the socket, or nil.
type sessionSource func() *Session

// Writer is the single goroutine that writes frames to the socket.
// Enqueue never blocks; frames are dropped when the queue is full or no
// socket is live. Write failures close the socket so the session ends as
// abnormal.
type Writer struct {
	queue   chan []byte
	current sessionSource
	timeout time.Duration
	logger  ports.Logger
	onError func(msg string)
	stopped atomic.Bool
}

// NewWriter creates a writer with a queue of size frames.
func NewWriter(size int, timeout time.Duration, current sessionSource, logger ports.Logger, onError func(msg string)) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Writer{
		queue:   make(chan []byte, size),
		current: current,
		timeout: timeout,
		logger:  logger,
		onError: onError,
	}
}

// Enqueue queues frame for transmission without blocking.
func (w *Writer) Enqueue(frame []byte) bool {
	return w.TryEnqueue(frame) == nil
}

// TryEnqueue is Enqueue with the reason for a rejection.
func (w *Writer) TryEnqueue(frame []byte) error {
	if w.stopped.Load() {
		return domain.ErrShutdown
	}
	s := w.current()
	if s == nil || !s.Connected() {
		return domain.ErrNotConnected
	}
	select {
	case w.queue <- frame:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) error {
	defer w.stopped.Store(true)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-w.queue:
			w.write(frame)
		}
	}
}

// write sends one frame to the session that is live now. The socket may have
// changed or gone since the frame was queued.
func (w *Writer) write(frame []byte) {
	s := w.current()
	if s == nil {
		w.logger.Debug("dropping frame, no session", ports.Int("bytes", len(frame)))
		return
	}
	conn := s.Conn()
	if conn == nil {
		w.logger.Debug("dropping frame, not connected", ports.Int("bytes", len(frame)))
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(w.timeout))
	if _, err := conn.Write(frame); err != nil {
		terr := &domain.TransportError{Op: "write", Addr: s.Target().String(), Err: pkgerrors.WithStack(err)}
		w.logger.Warn("write failed", ports.Err(terr))
		if w.onError != nil {
			w.onError("TCP TX error: " + err.Error())
		}
		s.abort(terr)
		return
	}
	w.logger.Debug("frame sent", ports.Int("bytes", len(frame)))
}

var _ ports.FrameSender = (*Writer)(nil)

// Stop makes every later Enqueue fail. Queued frames are still written
// until Run returns.
func (w *Writer) Stop() {
	w.stopped.Store(true)
}
