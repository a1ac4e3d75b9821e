package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/errutil"
)

const defaultSweepInterval = time.Hour

// HousekeepingService purges expired records on an interval. Reads already
// hide lapsed accounts and reset tokens, so those passes only reclaim space.
// Stale session nonces matter more: each one left behind costs a hash
// comparison on every token validation for its user.
type HousekeepingService struct {
	Store      store.Store
	Logger     *slog.Logger
	Interval   time.Duration
	SessionTTL time.Duration
	Metrics    *service.Metrics
	Now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
// sessionTTL is the token lifetime; zero skips the session nonce pass.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, sessionTTL time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &HousekeepingService{
		Store:      st,
		Logger:     logger,
		Interval:   interval,
		SessionTTL: sessionTTL,
		Now:        time.Now,
	}
}

// Start sweeps once immediately and then every Interval until ctx ends or
// Stop is called. Starting a running service is a no-op.
func (s *HousekeepingService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop cancels the loop, including a sweep in progress, and waits for it.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Users         int64
	ResetTokens   int64
	SessionNonces int64
}

func (r SweepResult) empty() bool {
	return r.Users == 0 && r.ResetTokens == 0 && r.SessionNonces == 0
}

// Sweep runs one pass. The deletions are independent; a failing one is
// logged and does not stop the others.
func (s *HousekeepingService) Sweep(ctx context.Context) SweepResult {
	now := s.Now()
	var res SweepResult

	if n, err := s.Store.Users().DeleteExpiredUnverified(ctx, now); err != nil {
		errutil.LogError(s.Logger, "failed to delete lapsed unverified users", err)
	} else {
		res.Users = n
		s.Metrics.Swept("unverified_user", n)
	}

	if n, err := s.Store.ResetTokens().DeleteExpiredResetTokens(ctx, now); err != nil {
		errutil.LogError(s.Logger, "failed to delete expired reset tokens", err)
	} else {
		res.ResetTokens = n
		s.Metrics.Swept("reset_token", n)
	}

	if s.SessionTTL > 0 {
		if n, err := s.Store.Users().DeleteStaleSessionNonces(ctx, now.Add(-s.SessionTTL)); err != nil {
			errutil.LogError(s.Logger, "failed to delete stale session nonces", err)
		} else {
			res.SessionNonces = n
			s.Metrics.Swept("session_nonce", n)
		}
	}

	if !res.empty() {
		s.Logger.Info("housekeeping sweep",
			"unverified_users_deleted", res.Users,
			"reset_tokens_deleted", res.ResetTokens,
			"session_nonces_deleted", res.SessionNonces,
		)
	}
	return res
}
