package app

import (
	"sync"
	"time"
)

// Backoff tracks consecutive connect failures and the earliest time the
// supervisor may start the next session. It is safe for concurrent use.
type Backoff struct {
	cfg BackoffConfig
	now func() time.Time

	mu       sync.Mutex
	failures int
	next     time.Time
}

// NewBackoff creates a backoff that is ready immediately. A nil clock selects
// time.Now.
func NewBackoff(cfg BackoffConfig, now func() time.Time) *Backoff {
	if now == nil {
		now = time.Now
	}
	return &Backoff{cfg: cfg, now: now, next: now()}
}

// Delay returns min(MaxDelay, BaseDelay * 2^min(attempts-1, MaxShift)).
// attempts below 1 is treated as 1.
func (b *Backoff) Delay(attempts int) time.Duration {
	return backoffDelay(b.cfg, attempts)
}

func backoffDelay(cfg BackoffConfig, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > cfg.MaxShift {
		shift = cfg.MaxShift
	}
	d := cfg.BaseDelay << uint(shift)
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	return d
}

// NoteSuccess records a completed connect. The next attempt is allowed now.
func (b *Backoff) NoteSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.next = b.now()
}

// NoteFailure records an abnormal termination and returns the delay before
// the next attempt.
func (b *Backoff) NoteFailure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	d := backoffDelay(b.cfg, b.failures)
	b.next = b.now().Add(d)
	return d
}

// NoteClosed records a graceful close or a manual disconnect. Failures are
// forgiven and the next attempt waits one base delay.
func (b *Backoff) NoteClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.next = b.now().Add(b.cfg.BaseDelay)
}

// Reset clears the failure count and allows an attempt immediately.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.next = b.now()
}

// Ready reports whether the next attempt time has been reached.
func (b *Backoff) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.next)
}

// Failures returns the number of consecutive abnormal terminations.
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// NextAttempt returns the earliest time of the next attempt.
func (b *Backoff) NextAttempt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}
