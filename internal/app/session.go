package app

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/internal/ports"
	"github.com/bft-labs/locolink/pkg/protocol"
)

// readChunk is the size of the scratch buffer used by the read loop.
const readChunk = 512

// errStopped ends a session whose stop was requested locally.
var errStopped = pkgerrors.New("session stopped")

// sessionHandler receives the events of one session. Calls arrive on the
// session goroutine, outside any session lock.
type sessionHandler interface {
	sessionConnected(s *Session)
	sessionFrame(s *Session, f protocol.Frame)
	sessionFinished(s *Session, term domain.Termination, err error)
}

// Session is one connect attempt and, if the dial succeeds, one connection.
// A session is never reused; every attempt gets a new one.
type Session struct {
	id      uint64
	target  domain.Target
	cfg     LinkConfig
	dialer  ports.Dialer
	logger  ports.Logger
	handler sessionHandler
	life    *Lifecycle
	reasm   *protocol.Reassembler
	ctx     context.Context

	mu       sync.Mutex
	conn     net.Conn
	manual   bool
	announce bool
	hadConn  bool
	failErr  error
	finished bool

	done chan struct{}
}

func newSession(parent context.Context, id uint64, target domain.Target, cfg LinkConfig,
	dialer ports.Dialer, logger ports.Logger, handler sessionHandler, emitter EventEmitter) *Session {
	ctx, cancel := context.WithCancel(parent)
	life := NewLifecycle(logger, emitter)
	life.SetCancel(cancel)
	return &Session{
		id:      id,
		target:  target,
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger,
		handler: handler,
		life:    life,
		reasm:   protocol.NewReassembler(protocol.DefaultReassemblerCap),
		ctx:     ctx,
		done:    make(chan struct{}),
	}
}

// ID returns the session sequence number.
func (s *Session) ID() uint64 { return s.id }

// Target returns the address this session dials.
func (s *Session) Target() domain.Target { return s.target }

// State returns the lifecycle state.
func (s *Session) State() State { return s.life.State() }

// Done is closed after the session has reported its termination.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start launches the session goroutine.
func (s *Session) Start() {
	go s.run()
}

// Conn returns the live socket, or nil when not connected.
func (s *Session) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Connected reports whether the session holds an open socket. It never
// performs I/O, so a half-open peer still reads as connected until the next
// read or write fails.
func (s *Session) Connected() bool {
	return s.Conn() != nil
}

// Close requests a manual stop. It interrupts an in-flight dial and unblocks
// the read loop. Close returns false when the session had already finished,
// in which case its termination was classified without the manual flag.
func (s *Session) Close() bool {
	return s.stop(false)
}

// Disconnect is Close on behalf of the user. If the session was connected
// and ends as manual, it reports a manual disconnect line before its
// termination.
func (s *Session) Disconnect() bool {
	return s.stop(true)
}

func (s *Session) stop(announce bool) bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.manual = true
	s.announce = s.announce || announce
	conn := s.conn
	s.mu.Unlock()

	s.life.Cancel()
	if conn != nil {
		_ = conn.Close()
	}
	return true
}

// abort closes the socket after a failed write. The session then ends as
// abnormal with err as its cause.
func (s *Session) abort(err error) {
	s.mu.Lock()
	if s.failErr == nil {
		s.failErr = err
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// writeNotice writes text to the live socket, bounded by the write timeout.
func (s *Session) writeNotice(text string) error {
	conn := s.Conn()
	if conn == nil {
		return domain.ErrNotConnected
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_, err := io.WriteString(conn, text)
	return err
}

func (s *Session) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// announcedDisconnect reports whether a user disconnect ended this session
// while it held a socket. Valid once the session has finished.
func (s *Session) announcedDisconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual && s.announce && s.hadConn
}

func (s *Session) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

func (s *Session) run() {
	defer close(s.done)
	defer s.life.Cancel()

	err := s.serve()
	s.finish(err)
}

func (s *Session) serve() (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panic recovered",
				ports.Any("panic", r),
				ports.String("addr", s.target.String()),
			)
			err = pkgerrors.Errorf("session panic: %v", r)
		}
	}()

	if err := s.life.TransitionTo(StateConnecting, "dial "+s.target.String()); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.target.Addr())
	cancel()
	if err != nil {
		return &domain.TransportError{Op: "dial", Addr: s.target.String(), Err: pkgerrors.WithStack(err)}
	}

	s.mu.Lock()
	if s.manual {
		s.mu.Unlock()
		_ = conn.Close()
		return errStopped
	}
	s.conn = conn
	s.mu.Unlock()

	if err := s.life.TransitionTo(StateConnected, "dial ok"); err != nil {
		return err
	}
	s.handler.sessionConnected(s)

	return s.readLoop(conn)
}

func (s *Session) readLoop(conn net.Conn) error {
	buf := make([]byte, readChunk)
	for {
		if s.stopping() {
			return errStopped
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return &domain.TransportError{Op: "read", Addr: s.target.String(), Err: pkgerrors.WithStack(err)}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			s.reasm.Feed(buf[:n])
			stats := s.reasm.Drain(func(f protocol.Frame) {
				s.handler.sessionFrame(s, f)
			})
			if stats.Discarded > 0 {
				s.logger.Debug("resynchronized receive stream",
					ports.Int("discarded", stats.Discarded),
					ports.Int("checksum_errors", stats.ChecksumErrors),
					ports.Int("oversized", stats.Oversized),
				)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return &domain.TransportError{Op: "read", Addr: s.target.String(), Err: pkgerrors.WithStack(err)}
		}
	}
}

// finish closes the socket and classifies the termination. The finished mark
// and the manual flag are read under the same lock as Close, so a racing
// Close either wins (manual) or sees the session as finished.
func (s *Session) finish(err error) {
	s.mu.Lock()
	s.finished = true
	manual := s.manual
	if s.failErr != nil && !manual {
		err = s.failErr
	}
	conn := s.conn
	s.hadConn = conn != nil
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	term := classify(manual, err)
	if s.life.State() != StateClosing {
		_ = s.life.TransitionTo(StateClosing, term.String())
	}
	_ = s.life.TransitionTo(StateIdle, term.String())

	if term != domain.TerminationAbnormal {
		err = nil
	}
	s.handler.sessionFinished(s, term, err)
}

func classify(manual bool, err error) domain.Termination {
	switch {
	case manual:
		return domain.TerminationManual
	case errors.Is(err, io.EOF):
		return domain.TerminationGraceful
	default:
		return domain.TerminationAbnormal
	}
}
