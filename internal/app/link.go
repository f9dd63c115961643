package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/internal/ports"
	"github.com/bft-labs/locolink/pkg/protocol"
)

// minProbeTimeout is the shortest dial timeout ProbeEndpoint will use.
const minProbeTimeout = 100 * time.Millisecond

// Observer receives link events. Calls may arrive on the session, writer or
// supervisor goroutine and never while a link lock is held.
type Observer interface {
	OnConnectStart()
	OnConnectStop()
	OnData(text string)
	OnError(msg string)
	OnStatus(status domain.Status)
	OnFrame(f protocol.Frame)
}

// Link owns the live session and coordinates the supervisor, the writer and
// the backoff schedule for one controller.
type Link struct {
	cfg        LinkConfig
	dialer     ports.Dialer
	logger     ports.Logger
	observer   Observer
	emitter    EventEmitter
	backoff    *Backoff
	writer     *Writer
	supervisor *Supervisor

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu        sync.Mutex
	target    domain.Target
	auto      bool
	paused    bool
	session   *Session
	live      map[*Session]struct{}
	nextID    uint64
	searching bool
	closed    bool

	started  atomic.Bool
	quiet    atomic.Bool
	shutdown chan struct{}

	// sessions counts session goroutines, including ones a manual Connect
	// has replaced but which are still finishing.
	sessions sync.WaitGroup
}

// LinkDeps are the collaborators of a Link. Dialer and Logger are required.
type LinkDeps struct {
	Dialer   ports.Dialer
	Logger   ports.Logger
	Observer Observer
	// Emitter receives session lifecycle transitions. Optional.
	Emitter EventEmitter
	// Now is the clock used by the backoff schedule. Optional.
	Now func() time.Time
}

// NewLink creates a link. Call Start to launch its background goroutines.
func NewLink(cfg LinkConfig, deps LinkDeps) *Link {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		cfg:      cfg,
		dialer:   deps.Dialer,
		logger:   deps.Logger,
		observer: deps.Observer,
		emitter:  deps.Emitter,
		backoff:  NewBackoff(cfg.Backoff, deps.Now),
		ctx:      ctx,
		cancel:   cancel,
		live:     make(map[*Session]struct{}),
		shutdown: make(chan struct{}),
	}
	l.writer = NewWriter(cfg.QueueSize, cfg.WriteTimeout, l.current, l.logger, l.reportError)
	l.supervisor = NewSupervisor(l, l.backoff, cfg.TickInterval, l.logger)
	return l
}

// Start launches the writer and supervisor goroutines. Calling it more than
// once has no effect.
func (l *Link) Start() {
	if l.started.Swap(true) {
		return
	}
	g, ctx := errgroup.WithContext(l.ctx)
	g.Go(func() error { return l.writer.Run(ctx) })
	g.Go(func() error { return l.supervisor.Run(ctx) })
	l.group = g
}

// Backoff exposes the reconnect schedule.
func (l *Link) Backoff() *Backoff { return l.backoff }

// States returns the configured state range.
func (l *Link) States() protocol.StateRange { return l.cfg.States }

// EnableAutoConnect sets the target, resets the backoff and lets the
// supervisor connect and reconnect on its own.
func (l *Link) EnableAutoConnect(host string, port int) error {
	t, err := domain.NewTarget(host, port)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return domain.ErrShutdown
	}
	l.target = t
	l.auto = true
	l.paused = false
	l.mu.Unlock()

	l.backoff.Reset()
	l.logger.Info("auto connect enabled", ports.String("addr", t.String()))
	l.supervisor.Kick()
	return nil
}

// DisableAutoConnect stops automatic attempts. A live session is kept.
func (l *Link) DisableAutoConnect() {
	l.mu.Lock()
	l.auto = false
	l.paused = false
	target := l.target
	l.mu.Unlock()

	l.backoff.Reset()
	l.setSearching(false)
	l.logger.Info("auto connect disabled", ports.String("addr", target.String()))
}

// PauseAutoConnect suspends or resumes automatic attempts without touching
// the target or the backoff.
func (l *Link) PauseAutoConnect(paused bool) {
	l.mu.Lock()
	l.paused = paused
	l.mu.Unlock()

	if paused {
		l.setSearching(false)
	} else {
		l.supervisor.Kick()
	}
	l.logger.Info("auto connect pause", ports.Bool("paused", paused))
}

// AutoConnect reports whether auto-connect is enabled and whether it is paused.
func (l *Link) AutoConnect() (enabled, paused bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.auto, l.paused
}

// SetTarget replaces the target without reconnecting. A live session keeps
// its address until it ends.
func (l *Link) SetTarget(host string, port int) error {
	t, err := domain.NewTarget(host, port)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.target = t
	l.mu.Unlock()
	return nil
}

// Target returns the current target.
func (l *Link) Target() domain.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

// Connect starts a manual session to host:port. It is a no-op when a session
// to the same address is already connecting or connected, and it disconnects
// first when the live session points elsewhere.
func (l *Link) Connect(host string, port int) error {
	t, err := domain.NewTarget(host, port)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return domain.ErrShutdown
	}
	cur := l.session
	if cur != nil && !cur.stopping() && !cur.isFinished() && cur.Target() == t {
		l.mu.Unlock()
		return nil
	}
	l.target = t
	l.mu.Unlock()

	if cur != nil {
		l.Disconnect()
	}
	if !l.startSession(t, "manual") && l.Closed() {
		return domain.ErrShutdown
	}
	return nil
}

// Disconnect closes the live session. The session reports exactly one
// disconnected status, classified as manual. Without a live session only the
// backoff is reset.
func (l *Link) Disconnect() {
	l.mu.Lock()
	s := l.session
	l.mu.Unlock()

	if s == nil || !s.Disconnect() {
		l.backoff.NoteClosed()
	}
	l.logger.Info("manual disconnect", ports.Bool("had_session", s != nil))
}

// SendCommand clamps and queues a control frame. It returns the reason the
// frame was rejected, if any.
func (l *Link) SendCommand(loco, state int) error {
	cmd := domain.Command{Loco: loco, State: state}.Clamp(l.cfg.States)
	frame := cmd.Encode(l.cfg.States)

	if err := l.writer.TryEnqueue(frame); err != nil {
		l.logger.Debug("command dropped",
			ports.Int("loco", cmd.Loco),
			ports.Int("state", cmd.State),
			ports.Err(err),
		)
		return err
	}
	l.logger.Debug("command queued",
		ports.Int("loco", cmd.Loco),
		ports.Int("state", cmd.State),
		ports.String("frame", protocol.Hex(frame)),
	)
	return nil
}

// IsConnectionAlive is a passive check of the socket state. It performs no
// I/O; a peer that vanished without closing is only noticed by the next
// read timeout cycle or write.
func (l *Link) IsConnectionAlive() bool {
	s := l.current()
	return s != nil && s.Connected()
}

// ProbeEndpoint reports whether the target accepts connections. A connected
// link is reachable by definition; otherwise a throwaway dial is made.
func (l *Link) ProbeEndpoint(ctx context.Context, timeout time.Duration) bool {
	if l.IsConnectionAlive() {
		return true
	}
	l.mu.Lock()
	closed := l.closed
	t := l.target
	l.mu.Unlock()
	if closed || !t.Valid() {
		return false
	}

	if timeout < minProbeTimeout {
		timeout = minProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := l.dialer.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		l.logger.Debug("probe failed", ports.String("addr", t.String()), ports.Err(err))
		return false
	}
	_ = conn.Close()
	return true
}

// Shutdown disables auto-connect, closes every session still running, stops
// the writer and the supervisor, and waits for all of them. No observer or
// emitter call happens after Shutdown returns. It is safe to call more than
// once.
func (l *Link) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.shutdown
		return
	}
	l.closed = true
	l.auto = false
	l.paused = false
	s := l.session
	live := make([]*Session, 0, len(l.live))
	for ls := range l.live {
		live = append(live, ls)
	}
	l.mu.Unlock()

	l.writer.Stop()
	if s != nil && l.cfg.SendShutdownNotice && s.Connected() {
		if err := s.writeNotice(ShutdownNotice); err != nil {
			l.logger.Debug("shutdown notice failed", ports.Err(err))
		}
	}
	for _, ls := range live {
		ls.Close()
	}
	// No session can start once closed is set, so the count only falls.
	l.sessions.Wait()

	l.cancel()
	if l.group != nil {
		if err := l.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("background worker exited", ports.Err(err))
		}
	}

	l.setSearching(false)
	l.quiet.Store(true)
	close(l.shutdown)
	l.logger.Info("link shut down")
}

// Closed reports whether Shutdown has been called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) current() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *Link) autoActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.auto && !l.paused && !l.closed
}

func (l *Link) sessionBusy() bool {
	s := l.current()
	return s != nil && !s.isFinished()
}

func (l *Link) liveConnection() bool {
	return l.IsConnectionAlive()
}

// startSession creates and launches a session unless one is still running or
// the link is shut down.
func (l *Link) startSession(t domain.Target, reason string) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	if cur := l.session; cur != nil && !cur.isFinished() && !cur.stopping() {
		l.mu.Unlock()
		return false
	}
	l.nextID++
	s := newSession(l.ctx, l.nextID, t, l.cfg, l.dialer, l.logger, l, l)
	l.session = s
	l.live[s] = struct{}{}
	l.sessions.Add(1)
	l.mu.Unlock()

	l.logger.Info("connecting",
		ports.String("addr", t.String()),
		ports.String("reason", reason),
		ports.Int64("session", int64(s.ID())),
	)
	l.setSearching(true)
	go func() {
		defer l.sessions.Done()
		s.run()
	}()
	return true
}

func (l *Link) sessionConnected(s *Session) {
	l.backoff.NoteSuccess()
	l.setSearching(false)
	l.logger.Info("connected", ports.String("addr", s.Target().String()))
	l.emit(func(o Observer) { o.OnStatus(domain.StatusConnected) })
	l.emit(func(o Observer) { o.OnData("[TCP] Connected to " + s.Target().String() + "\n") })
}

func (l *Link) sessionFrame(s *Session, f protocol.Frame) {
	l.emit(func(o Observer) { o.OnFrame(f) })
	l.emit(func(o Observer) { o.OnData(f.String() + "\n") })
}

func (l *Link) sessionFinished(s *Session, term domain.Termination, err error) {
	l.mu.Lock()
	if l.session == s {
		l.session = nil
	}
	delete(l.live, s)
	l.mu.Unlock()

	fields := []ports.Field{
		ports.String("addr", s.Target().String()),
		ports.String("termination", term.String()),
	}
	switch term {
	case domain.TerminationAbnormal:
		delay := l.backoff.NoteFailure()
		fields = append(fields, ports.Duration("retry_in", delay), ports.Err(err))
		l.logger.Warn("session ended", fields...)
	default:
		l.backoff.NoteClosed()
		l.logger.Info("session ended", fields...)
	}

	if err != nil {
		msg := errorMessage(err)
		l.emit(func(o Observer) { o.OnData("[TCP] Connection error: " + msg + "\n") })
		l.emit(func(o Observer) { o.OnError(msg) })
	}
	if term == domain.TerminationManual && s.announcedDisconnect() {
		l.emit(func(o Observer) {
			o.OnData("[TCP] Manual disconnect from " + s.Target().String() + "\n")
		})
	}
	l.setSearching(false)
	l.emit(func(o Observer) { o.OnStatus(domain.StatusDisconnected) })
	l.emit(func(o Observer) {
		o.OnData("[TCP] Disconnected from " + s.Target().String() + " (" + term.Reason() + ")\n")
	})
}

func (l *Link) reportError(msg string) {
	l.emit(func(o Observer) { o.OnError(msg) })
}

func (l *Link) setSearching(on bool) {
	l.mu.Lock()
	if l.searching == on {
		l.mu.Unlock()
		return
	}
	l.searching = on
	l.mu.Unlock()

	if on {
		l.emit(func(o Observer) { o.OnConnectStart() })
	} else {
		l.emit(func(o Observer) { o.OnConnectStop() })
	}
}

// OnStateChange forwards session lifecycle transitions to the emitter under
// the same quiet gate and panic recovery as observer calls.
func (l *Link) OnStateChange(previous, current State, reason string) {
	if l.emitter == nil || l.quiet.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("emitter panic recovered", ports.Any("panic", r))
		}
	}()
	l.emitter.OnStateChange(previous, current, reason)
}

// emit calls fn on the observer, recovering any panic.
func (l *Link) emit(fn func(Observer)) {
	if l.observer == nil || l.quiet.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("observer panic recovered", ports.Any("panic", r))
		}
	}()
	fn(l.observer)
}

// errorMessage returns the root cause text of a transport error.
func errorMessage(err error) string {
	return pkgerrors.Cause(err).Error()
}
