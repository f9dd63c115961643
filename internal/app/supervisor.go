package app

import (
	"context"
	"time"

	"github.com/bft-labs/locolink/internal/domain"
	"github.com/bft-labs/locolink/internal/ports"
)

// supervised is the view of the link the supervisor needs.
type supervised interface {
	autoActive() bool
	sessionBusy() bool
	liveConnection() bool
	Target() domain.Target
	startSession(t domain.Target, reason string) bool
	setSearching(on bool)
}

// Supervisor starts a new session on every tick where auto-connect is on,
// no session is live and the backoff allows it.
type Supervisor struct {
	link     supervised
	backoff  *Backoff
	interval time.Duration
	logger   ports.Logger
	kick     chan struct{}
}

// NewSupervisor creates a supervisor ticking every interval.
func NewSupervisor(link supervised, backoff *Backoff, interval time.Duration, logger ports.Logger) *Supervisor {
	return &Supervisor{
		link:     link,
		backoff:  backoff,
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an immediate tick without waiting for the ticker.
func (s *Supervisor) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.kick:
		}
		s.safeTick()
	}
}

func (s *Supervisor) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("supervisor tick panic recovered", ports.Any("panic", r))
		}
	}()
	s.Tick()
}

// Tick runs one supervision step and reports whether a session was started.
func (s *Supervisor) Tick() bool {
	if !s.link.autoActive() {
		s.link.setSearching(false)
		return false
	}
	if !s.backoff.Ready() {
		s.link.setSearching(false)
		return false
	}
	target := s.link.Target()
	if !target.Valid() {
		return false
	}
	if s.link.liveConnection() {
		s.link.setSearching(false)
		return false
	}
	if s.link.sessionBusy() {
		return false
	}

	s.logger.Debug("auto connect attempt",
		ports.String("addr", target.String()),
		ports.Int("failures", s.backoff.Failures()),
	)
	return s.link.startSession(target, "auto")
}
