package app

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/internal/ports"
	"github.com/bft-labs/locolink/pkg/protocol"
)

const waitTimeout = 3 * time.Second

// recorder implements Observer and keeps every event in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	frames []protocol.Frame
	status chan domain.Status
	errs   chan string
}

func newRecorder() *recorder {
	return &recorder{
		status: make(chan domain.Status, 64),
		errs:   make(chan string, 64),
	}
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) OnConnectStart() { r.add("searching:on") }
func (r *recorder) OnConnectStop()  { r.add("searching:off") }
func (r *recorder) OnData(text string) {
	r.add("data:" + text)
}
func (r *recorder) OnError(msg string) {
	r.add("error:" + msg)
	select {
	case r.errs <- msg:
	default:
	}
}
func (r *recorder) OnStatus(s domain.Status) {
	r.add("status:" + s.String())
	select {
	case r.status <- s:
	default:
	}
}
func (r *recorder) OnFrame(f protocol.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	r.add("frame:" + f.String())
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Frames() []protocol.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Frame(nil), r.frames...)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, e := range r.Events() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func (r *recorder) has(event string) bool {
	for _, e := range r.Events() {
		if e == event {
			return true
		}
	}
	return false
}

func (r *recorder) waitStatus(t *testing.T, want domain.Status) {
	t.Helper()
	select {
	case got := <-r.status:
		if got != want {
			t.Fatalf("status = %v, want %v", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for status %v; events: %q", want, r.Events())
	}
}

func (r *recorder) noStatus(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case got := <-r.status:
		t.Fatalf("unexpected status %v; events: %q", got, r.Events())
	case <-time.After(d):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() LinkConfig {
	cfg := DefaultLinkConfig()
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = 50 * time.Millisecond
	cfg.WriteTimeout = time.Second
	cfg.TickInterval = 10 * time.Millisecond
	cfg.Backoff = BackoffConfig{BaseDelay: 20 * time.Millisecond, MaxDelay: 100 * time.Millisecond, MaxShift: 5}
	return cfg
}

func newTestLink(t *testing.T, cfg LinkConfig, dialer ports.Dialer) (*Link, *recorder) {
	t.Helper()
	rec := newRecorder()
	l := NewLink(cfg, LinkDeps{Dialer: dialer, Logger: mockLogger{}, Observer: rec})
	l.Start()
	t.Cleanup(l.Shutdown)
	return l, rec
}

// listen starts a TCP listener on a random local port and forwards accepted
// connections.
func listen(t *testing.T) (string, int, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	conns := make(chan net.Conn, 8)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()
	t.Cleanup(func() { ln.Close() })

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port, conns
}

func accept(t *testing.T, conns <-chan net.Conn) net.Conn {
	t.Helper()
	select {
	case c := <-conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(waitTimeout):
		t.Fatal("server never accepted")
		return nil
	}
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// blockingDialer blocks until the dial context is cancelled.
type blockingDialer struct {
	entered chan struct{}
}

func (d *blockingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	close(d.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingDialer fails every dial.
type failingDialer struct {
	mu    sync.Mutex
	calls int
}

func (d *failingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return nil, errors.New("connection refused")
}

func (d *failingDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// pipeDialer hands out the client end of a net.Pipe.
type pipeDialer struct {
	conns chan net.Conn
	wrap  func(net.Conn) net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	d.conns <- server
	if d.wrap != nil {
		return d.wrap(client), nil
	}
	return client, nil
}

// brokenWriter fails every write.
type brokenWriter struct {
	net.Conn
}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestLink_ConnectReceivesFrames(t *testing.T) {
	host, port, conns := listen(t)
	l, rec := newTestLink(t, testConfig(), &net.Dialer{})

	if err := l.Connect(host, port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	server := accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	if !l.IsConnectionAlive() {
		t.Error("IsConnectionAlive() = false after connect")
	}
	want := "data:[TCP] Connected to " + host + ":" + strconv.Itoa(port) + "\n"
	if !rec.has(want) {
		t.Errorf("missing %q in %q", want, rec.Events())
	}

	// One frame split across two writes plus a diagnostic frame.
	frame := protocol.Encode(3, 2, protocol.DefaultStateRange())
	diag := protocol.Frame{Address: 5, Length: 3, Payload: []byte{0xAA, 0xBB, 0xCC}}.Bytes()
	server.Write(frame[:2])
	time.Sleep(20 * time.Millisecond)
	server.Write(append(frame[2:], diag...))

	waitFor(t, "two frames", func() bool { return len(rec.Frames()) == 2 })
	if !rec.has("data:cmd=0x03 loco=3 state=2\n") {
		t.Errorf("missing control data line in %q", rec.Events())
	}
	if !rec.has("data:cmd=0x05 len=3 data=AA BB CC\n") {
		t.Errorf("missing diagnostic data line in %q", rec.Events())
	}
}

func TestLink_SendCommandClamps(t *testing.T) {
	host, port, conns := listen(t)
	l, rec := newTestLink(t, testConfig(), &net.Dialer{})

	_ = l.Connect(host, port)
	server := accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	if err := l.SendCommand(99, 0); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	buf := make([]byte, 6)
	server.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if got := protocol.Hex(buf); got != "7E 08 00 01 01 "+protocol.Hex([]byte{protocol.Checksum([]byte{8, 0, 1, 1})}) {
		t.Errorf("frame on wire = %s", got)
	}
}

func TestLink_SendCommandNotConnected(t *testing.T) {
	l, _ := newTestLink(t, testConfig(), &failingDialer{})

	if err := l.SendCommand(1, 1); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("SendCommand() error = %v, want ErrNotConnected", err)
	}
}

func TestLink_ManualDisconnectAttribution(t *testing.T) {
	host, port, conns := listen(t)
	l, rec := newTestLink(t, testConfig(), &net.Dialer{})

	_ = l.Connect(host, port)
	accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	l.Disconnect()
	rec.waitStatus(t, domain.StatusDisconnected)
	rec.noStatus(t, 150*time.Millisecond)

	addr := host + ":" + strconv.Itoa(port)
	if !rec.has("data:[TCP] Manual disconnect from " + addr + "\n") {
		t.Errorf("missing manual disconnect line in %q", rec.Events())
	}
	if !rec.has("data:[TCP] Disconnected from " + addr + " (manual)\n") {
		t.Errorf("missing manual termination line in %q", rec.Events())
	}
	if rec.count("error:") != 0 {
		t.Errorf("manual disconnect reported errors: %q", rec.Events())
	}
	if l.Backoff().Failures() != 0 {
		t.Errorf("Failures() = %d after manual disconnect", l.Backoff().Failures())
	}

	// A second disconnect without a session must stay silent.
	l.Disconnect()
	rec.noStatus(t, 50*time.Millisecond)
}

func TestLink_DisconnectDuringDial(t *testing.T) {
	dialer := &blockingDialer{entered: make(chan struct{})}
	l, rec := newTestLink(t, testConfig(), dialer)

	_ = l.Connect("192.0.2.1", 9000)
	<-dialer.entered

	l.Disconnect()
	rec.waitStatus(t, domain.StatusDisconnected)
	rec.noStatus(t, 100*time.Millisecond)

	if !rec.has("data:[TCP] Disconnected from 192.0.2.1:9000 (manual)\n") {
		t.Errorf("dial cancel not attributed as manual: %q", rec.Events())
	}
	if rec.count("error:") != 0 {
		t.Errorf("cancelled dial reported errors: %q", rec.Events())
	}
}

func TestLink_GracefulClose(t *testing.T) {
	host, port, conns := listen(t)
	l, rec := newTestLink(t, testConfig(), &net.Dialer{})

	_ = l.Connect(host, port)
	server := accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	server.Close()
	rec.waitStatus(t, domain.StatusDisconnected)

	if !rec.has("data:[TCP] Disconnected from " + host + ":" + strconv.Itoa(port) + " (normal)\n") {
		t.Errorf("missing graceful line in %q", rec.Events())
	}
	if l.Backoff().Failures() != 0 {
		t.Errorf("Failures() = %d after graceful close", l.Backoff().Failures())
	}
	if l.IsConnectionAlive() {
		t.Error("IsConnectionAlive() = true after close")
	}
}

func TestLink_DialFailureBacksOff(t *testing.T) {
	dialer := &failingDialer{}
	l, rec := newTestLink(t, testConfig(), dialer)

	if err := l.EnableAutoConnect("192.0.2.1", 9000); err != nil {
		t.Fatalf("EnableAutoConnect() error = %v", err)
	}

	select {
	case msg := <-rec.errs:
		if msg != "connection refused" {
			t.Errorf("OnError(%q), want root cause text", msg)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no error reported")
	}
	rec.waitStatus(t, domain.StatusDisconnected)
	waitFor(t, "repeated failures", func() bool { return l.Backoff().Failures() >= 3 })

	if !rec.has("data:[TCP] Connection error: connection refused\n") {
		t.Errorf("missing connection error line in %q", rec.Events())
	}
	if !rec.has("data:[TCP] Disconnected from 192.0.2.1:9000 (error)\n") {
		t.Errorf("missing error termination line in %q", rec.Events())
	}
	if rec.count("status:connected") != 0 {
		t.Error("reported connected without a socket")
	}

	l.DisableAutoConnect()
	calls := dialer.Calls()
	time.Sleep(150 * time.Millisecond)
	if dialer.Calls() > calls+1 {
		t.Errorf("dialer called %d more times after auto-connect was disabled", dialer.Calls()-calls)
	}
}

func TestLink_AutoReconnect(t *testing.T) {
	host, port, conns := listen(t)
	l, rec := newTestLink(t, testConfig(), &net.Dialer{})

	if err := l.EnableAutoConnect(host, port); err != nil {
		t.Fatalf("EnableAutoConnect() error = %v", err)
	}
	first := accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	first.Close()
	rec.waitStatus(t, domain.StatusDisconnected)

	accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)
	if !rec.has("searching:on") || !rec.has("searching:off") {
		t.Errorf("searching indicator never toggled: %q", rec.Events())
	}
}

func TestLink_PauseAutoConnect(t *testing.T) {
	dialer := &failingDialer{}
	l, _ := newTestLink(t, testConfig(), dialer)

	_ = l.EnableAutoConnect("192.0.2.1", 9000)
	waitFor(t, "first dial", func() bool { return dialer.Calls() > 0 })

	l.PauseAutoConnect(true)
	time.Sleep(30 * time.Millisecond)
	calls := dialer.Calls()
	time.Sleep(200 * time.Millisecond)
	if dialer.Calls() != calls {
		t.Errorf("dialed while paused: %d -> %d", calls, dialer.Calls())
	}
	if enabled, paused := l.AutoConnect(); !enabled || !paused {
		t.Errorf("AutoConnect() = %v, %v", enabled, paused)
	}

	l.PauseAutoConnect(false)
	waitFor(t, "dial after resume", func() bool { return dialer.Calls() > calls })
}

func TestLink_ConnectSameAddressIsNoop(t *testing.T) {
	host, port, conns := listen(t)
	l, rec := newTestLink(t, testConfig(), &net.Dialer{})

	_ = l.Connect(host, port)
	accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	_ = l.Connect(host, port)
	rec.noStatus(t, 100*time.Millisecond)
	select {
	case <-conns:
		t.Fatal("second connect dialed again")
	default:
	}
}

func TestLink_ConnectOtherAddressDisconnectsFirst(t *testing.T) {
	hostA, portA, connsA := listen(t)
	hostB, portB, connsB := listen(t)
	l, rec := newTestLink(t, testConfig(), &net.Dialer{})

	_ = l.Connect(hostA, portA)
	accept(t, connsA)
	rec.waitStatus(t, domain.StatusConnected)

	_ = l.Connect(hostB, portB)
	accept(t, connsB)
	waitFor(t, "reconnect to the new address", func() bool {
		return rec.count("status:connected") == 2 && rec.count("status:disconnected") == 1
	})
	time.Sleep(50 * time.Millisecond)

	if rec.count("status:disconnected") != 1 {
		t.Errorf("disconnected statuses = %d, want 1: %q", rec.count("status:disconnected"), rec.Events())
	}
	if got := l.Target(); got.Port != uint16(portB) {
		t.Errorf("Target() = %v", got)
	}
}

func TestLink_InvalidTarget(t *testing.T) {
	l, _ := newTestLink(t, testConfig(), &failingDialer{})

	if err := l.EnableAutoConnect("", 9000); !errors.Is(err, domain.ErrInvalidTarget) {
		t.Errorf("EnableAutoConnect() error = %v", err)
	}
	if err := l.Connect("h", 70000); !errors.Is(err, domain.ErrInvalidTarget) {
		t.Errorf("Connect() error = %v", err)
	}
	if err := l.SetTarget("h", 0); !errors.Is(err, domain.ErrInvalidTarget) {
		t.Errorf("SetTarget() error = %v", err)
	}
	if enabled, _ := l.AutoConnect(); enabled {
		t.Error("invalid target enabled auto-connect")
	}
}

func TestLink_WriteErrorEndsSessionAbnormally(t *testing.T) {
	dialer := &pipeDialer{
		conns: make(chan net.Conn, 1),
		wrap:  func(c net.Conn) net.Conn { return brokenWriter{c} },
	}
	l, rec := newTestLink(t, testConfig(), dialer)

	_ = l.Connect("controller", 9000)
	server := <-dialer.conns
	defer server.Close()
	rec.waitStatus(t, domain.StatusConnected)

	if err := l.SendCommand(1, 1); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	select {
	case msg := <-rec.errs:
		if !strings.HasPrefix(msg, "TCP TX error: ") {
			t.Errorf("OnError(%q)", msg)
		}
	case <-time.After(waitTimeout):
		t.Fatal("write error not reported")
	}
	rec.waitStatus(t, domain.StatusDisconnected)
	if !rec.has("data:[TCP] Disconnected from controller:9000 (error)\n") {
		t.Errorf("write failure not classified abnormal: %q", rec.Events())
	}
	if l.Backoff().Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", l.Backoff().Failures())
	}
}

func TestLink_ShutdownSafety(t *testing.T) {
	host, port, conns := listen(t)
	rec := newRecorder()
	l := NewLink(testConfig(), LinkDeps{Dialer: &net.Dialer{}, Logger: mockLogger{}, Observer: rec})
	l.Start()

	_ = l.EnableAutoConnect(host, port)
	accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	l.Shutdown()
	rec.waitStatus(t, domain.StatusDisconnected)
	n := len(rec.Events())

	time.Sleep(150 * time.Millisecond)
	if got := len(rec.Events()); got != n {
		t.Errorf("events after shutdown: %q", rec.Events()[n:])
	}

	l.Shutdown()
	if err := l.SendCommand(1, 1); !errors.Is(err, domain.ErrShutdown) {
		t.Errorf("SendCommand() after shutdown error = %v", err)
	}
	if err := l.EnableAutoConnect(host, port); !errors.Is(err, domain.ErrShutdown) {
		t.Errorf("EnableAutoConnect() after shutdown error = %v", err)
	}
	if err := l.Connect(host, port); !errors.Is(err, domain.ErrShutdown) {
		t.Errorf("Connect() after shutdown error = %v", err)
	}
	if l.IsConnectionAlive() {
		t.Error("alive after shutdown")
	}
}

func TestLink_ShutdownWithoutStart(t *testing.T) {
	l := NewLink(testConfig(), LinkDeps{Dialer: &failingDialer{}, Logger: mockLogger{}})

	done := make(chan struct{})
	go func() {
		l.Shutdown()
		l.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Shutdown() blocked")
	}
}

func TestLink_ShutdownNotice(t *testing.T) {
	host, port, conns := listen(t)
	cfg := testConfig()
	cfg.SendShutdownNotice = true
	rec := newRecorder()
	l := NewLink(cfg, LinkDeps{Dialer: &net.Dialer{}, Logger: mockLogger{}, Observer: rec})
	l.Start()

	_ = l.Connect(host, port)
	server := accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	l.Shutdown()

	server.SetReadDeadline(time.Now().Add(waitTimeout))
	got, _ := io.ReadAll(server)
	if string(got) != ShutdownNotice {
		t.Errorf("server received %q, want %q", got, ShutdownNotice)
	}
}

func TestLink_ObserverPanicRecovered(t *testing.T) {
	host, port, conns := listen(t)
	rec := newRecorder()
	obs := &panickyObserver{recorder: rec}
	l := NewLink(testConfig(), LinkDeps{Dialer: &net.Dialer{}, Logger: mockLogger{}, Observer: obs})
	l.Start()
	defer l.Shutdown()

	_ = l.Connect(host, port)
	server := accept(t, conns)
	rec.waitStatus(t, domain.StatusConnected)

	server.Write(protocol.Encode(2, 2, protocol.DefaultStateRange()))
	server.Write(protocol.Encode(4, 4, protocol.DefaultStateRange()))
	waitFor(t, "frames after handler panic", func() bool { return len(rec.Frames()) == 2 })
	if !l.IsConnectionAlive() {
		t.Error("handler panic killed the session")
	}
}

// panickyObserver panics on every frame after recording it.
type panickyObserver struct {
	*recorder
}

func (p *panickyObserver) OnFrame(f protocol.Frame) {
	p.recorder.OnFrame(f)
	panic("handler bug")
}

func TestLink_ProbeEndpoint(t *testing.T) {
	host, port, conns := listen(t)
	l, _ := newTestLink(t, testConfig(), &net.Dialer{})

	if l.ProbeEndpoint(context.Background(), time.Second) {
		t.Error("probe succeeded without a target")
	}

	_ = l.SetTarget(host, port)
	if !l.ProbeEndpoint(context.Background(), time.Second) {
		t.Error("probe failed against a listening server")
	}
	accept(t, conns)

	_ = l.SetTarget("127.0.0.1", closedPort(t))
	if l.ProbeEndpoint(context.Background(), time.Second) {
		t.Error("probe succeeded against a closed port")
	}
}

// transitionLog implements EventEmitter.
type transitionLog struct {
	mu          sync.Mutex
	transitions []string
}

func (e *transitionLog) OnStateChange(previous, current State, reason string) {
	e.mu.Lock()
	e.transitions = append(e.transitions, previous.String()+"->"+current.String())
	e.mu.Unlock()
}

func (e *transitionLog) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.transitions)
}

// lingeringDialer reports each dial, waits for cancellation and then keeps
// the session goroutine busy for linger before failing.
type lingeringDialer struct {
	linger  time.Duration
	entered chan string
}

func (d *lingeringDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.entered <- addr
	<-ctx.Done()
	time.Sleep(d.linger)
	return nil, ctx.Err()
}

// shutdownWithin runs Shutdown and fails the test if it takes longer than d.
func shutdownWithin(t *testing.T, l *Link, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		l.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("Shutdown() did not return within %v", d)
	}
}

// assertSilent fails if the observer or the emitter hears anything during d.
func assertSilent(t *testing.T, rec *recorder, states *transitionLog, d time.Duration) {
	t.Helper()
	events, transitions := len(rec.Events()), states.Len()
	time.Sleep(d)
	if got := rec.Events(); len(got) != events {
		t.Errorf("observer events after Shutdown: %q", got[events:])
	}
	if got := states.Len(); got != transitions {
		t.Errorf("emitter events after Shutdown: %d (before: %d)", got-transitions, transitions)
	}
}

func TestLink_ShutdownWaitsForReplacedSession(t *testing.T) {
	dialer := &lingeringDialer{linger: 300 * time.Millisecond, entered: make(chan string, 4)}
	rec := newRecorder()
	states := &transitionLog{}
	l := NewLink(testConfig(), LinkDeps{Dialer: dialer, Logger: mockLogger{}, Observer: rec, Emitter: states})
	l.Start()

	_ = l.Connect("192.0.2.1", 9000)
	<-dialer.entered
	// Replacing the session leaves the first one finishing in the background.
	_ = l.Connect("192.0.2.2", 9000)
	<-dialer.entered

	shutdownWithin(t, l, waitTimeout)
	assertSilent(t, rec, states, 500*time.Millisecond)

	if got := rec.count("status:disconnected"); got != 2 {
		t.Errorf("disconnected statuses = %d, want 2: %q", got, rec.Events())
	}
}

func TestLink_ShutdownUnderLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, l *Link, rec *recorder)
		dial  func() ports.Dialer
	}{
		{
			name: "connect in flight",
			dial: func() ports.Dialer { return &blockingDialer{entered: make(chan struct{})} },
			setup: func(t *testing.T, l *Link, rec *recorder) {
				_ = l.Connect("192.0.2.1", 9000)
				<-l.dialer.(*blockingDialer).entered
			},
		},
		{
			name: "frames queued behind a stalled peer",
			dial: func() ports.Dialer { return &pipeDialer{conns: make(chan net.Conn, 1)} },
			setup: func(t *testing.T, l *Link, rec *recorder) {
				_ = l.Connect("controller", 9000)
				server := <-l.dialer.(*pipeDialer).conns
				t.Cleanup(func() { server.Close() })
				rec.waitStatus(t, domain.StatusConnected)

				// The server never reads, so the writer blocks on the first
				// frame and the rest pile up in the queue.
				full := false
				for i := 0; i < 10*DefaultQueueSize && !full; i++ {
					full = errors.Is(l.SendCommand(1, 1), domain.ErrQueueFull)
				}
				if !full {
					t.Fatal("write queue never filled")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.WriteTimeout = 10 * time.Second
			rec := newRecorder()
			states := &transitionLog{}
			l := NewLink(cfg, LinkDeps{Dialer: tt.dial(), Logger: mockLogger{}, Observer: rec, Emitter: states})
			l.Start()

			tt.setup(t, l, rec)

			shutdownWithin(t, l, 2*time.Second)
			assertSilent(t, rec, states, 200*time.Millisecond)

			if got := rec.count("status:disconnected"); got != 1 {
				t.Errorf("disconnected statuses = %d, want 1: %q", got, rec.Events())
			}
			if err := l.SendCommand(1, 1); !errors.Is(err, domain.ErrShutdown) {
				t.Errorf("SendCommand() after shutdown error = %v", err)
			}
		})
	}
}

func TestLink_DisconnectRacesPeerClose(t *testing.T) {
	host, port, conns := listen(t)
	addr := host + ":" + strconv.Itoa(port)

	for i := 0; i < 50; i++ {
		rec := newRecorder()
		l := NewLink(testConfig(), LinkDeps{Dialer: &net.Dialer{}, Logger: mockLogger{}, Observer: rec})
		l.Start()

		_ = l.Connect(host, port)
		server := accept(t, conns)
		rec.waitStatus(t, domain.StatusConnected)

		go server.Close()
		l.Disconnect()

		rec.waitStatus(t, domain.StatusDisconnected)
		rec.noStatus(t, 30*time.Millisecond)
		l.Shutdown()

		if got := rec.count("status:disconnected"); got != 1 {
			t.Fatalf("iteration %d: disconnected statuses = %d: %q", i, got, rec.Events())
		}
		if got := l.Backoff().Failures(); got != 0 {
			t.Fatalf("iteration %d: Failures() = %d", i, got)
		}
		announced := rec.has("data:[TCP] Manual disconnect from " + addr + "\n")
		manual := rec.has("data:[TCP] Disconnected from " + addr + " (manual)\n")
		if announced != manual {
			t.Fatalf("iteration %d: manual line %v but manual termination %v: %q", i, announced, manual, rec.Events())
		}
	}
}
