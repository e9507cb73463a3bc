// Package scheduler implements the single-device adaptive polling
// timer: an interval that shortens under panic and preheating, a
// single-outstanding-timer invariant recorded in the field store, a
// shorter first-tick, and bounded arm-failure recovery. A re-armed
// time.Timer re-derives its own next interval every tick, rather than
// running on a fixed time.Ticker.
package scheduler

import (
	"context"
	"sync"
	"time"

	"pitboss/internal/domain"
	"pitboss/internal/fields"
	"pitboss/pkg/logger"
)

// PollResult is what a tick's handler reports back, enough to compute
// the next interval.
type PollResult struct {
	Panic      bool
	GrillOn    bool
	Preheating bool
}

// Handler runs one poll-and-fold cycle. Panics inside Handler are
// recovered by Scheduler.Tick so one bad tick never kills the loop.
type Handler func(ctx context.Context) PollResult

// ComputeInterval derives the next poll interval: base scaled by the
// state-dependent multiplier, clamped to
// [MIN_HEALTH_CHECK_INTERVAL, min(MAX_HEALTH_CHECK_INTERVAL,
// MAX_HEALTH_INTERVAL_HOURS)].
func ComputeInterval(base time.Duration, r PollResult) time.Duration {
	mult := domain.InactiveMultiplier
	switch {
	case r.Panic:
		mult = domain.PanicRecoveryMultiplier
	case r.GrillOn && r.Preheating:
		mult = domain.PreheatingMultiplier
	case r.GrillOn:
		mult = domain.ActiveMultiplier
	}

	iv := time.Duration(float64(base) * mult)

	upper := domain.MaxHealthCheckInterval
	if domain.MaxHealthIntervalHours < upper {
		upper = domain.MaxHealthIntervalHours
	}
	if iv < domain.MinHealthCheckInterval {
		iv = domain.MinHealthCheckInterval
	}
	if iv > upper {
		iv = upper
	}
	return iv
}

const maxRecoveryAttempts = 3

// Scheduler owns the single re-armed timer for one device.
type Scheduler struct {
	mu               sync.Mutex
	deviceID         string
	store            fields.Store
	handler          Handler
	log              *logger.Logger
	timer            *time.Timer
	isPolling        bool
	firstAfterSetup  bool
	recoveryFailed   bool
	base             time.Duration
	now              func() time.Time
}

// New returns a Scheduler for deviceID, polling via handler, persisting
// its single-timer bookkeeping into store.
func New(deviceID string, store fields.Store, handler Handler) *Scheduler {
	return &Scheduler{
		deviceID: deviceID,
		store:    store,
		handler:  handler,
		log:      logger.New("Scheduler"),
		base:     domain.DefaultRefreshInterval,
		now:      time.Now,
	}
}

// SetBaseInterval overrides the host's configured refresh interval.
func (s *Scheduler) SetBaseInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.base = d
	}
}

// Init arms the scheduler's first-after-setup tick: a single shorter
// interval, after which steady-state compute_interval takes over.
func (s *Scheduler) Init(ctx context.Context) {
	s.mu.Lock()
	s.firstAfterSetup = true
	s.recoveryFailed = false
	s.mu.Unlock()

	iv := domain.MinHealthCheckInterval
	if s.base > iv {
		iv = s.base
	}
	s.armWithRecovery(ctx, iv, maxRecoveryAttempts)
}

// EnsureActive re-arms the timer if none is recorded or the recorded
// one is stale.
func (s *Scheduler) EnsureActive(ctx context.Context) {
	s.mu.Lock()
	scheduled, ok := s.store.Get(s.deviceID, fields.KeyLastHealthScheduled)
	s.mu.Unlock()

	staleAfter := domain.MaxHealthCheckInterval * time.Duration(domain.InactiveMultiplier)
	if ok {
		if t, ok2 := scheduled.(time.Time); ok2 && s.now().Sub(t) <= staleAfter {
			return // recorded timer still fresh, nothing to do
		}
	}
	s.store.Delete(s.deviceID, fields.KeyHealthTimerID)
	s.armWithRecovery(ctx, s.base, maxRecoveryAttempts)
}

// Cancel stops any pending timer and clears its field-store record.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.store.Delete(s.deviceID, fields.KeyHealthTimerID)
	s.store.Delete(s.deviceID, fields.KeyLastHealthScheduled)
}

// Tick runs one full tick synchronously: clears the timer record,
// skips (but reschedules) if a poll is already in flight, runs the
// handler, computes the next interval, and arms the next timer.
// Exposed directly so tests can drive a tick without waiting on a
// real timer to fire.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	s.store.Delete(s.deviceID, fields.KeyHealthTimerID)
	s.store.Delete(s.deviceID, fields.KeyLastHealthScheduled)

	if s.isPolling {
		s.mu.Unlock()
		s.log.Debug("%s: poll already in flight, rescheduling without running", s.deviceID)
		s.armWithRecovery(ctx, s.base, maxRecoveryAttempts)
		return
	}
	s.isPolling = true
	s.mu.Unlock()

	result := s.runHandler(ctx)

	s.mu.Lock()
	s.isPolling = false
	base := s.base
	first := s.firstAfterSetup
	s.firstAfterSetup = false
	s.mu.Unlock()

	var next time.Duration
	if first {
		next = domain.MinHealthCheckInterval
		if base > next {
			next = base
		}
	} else {
		next = ComputeInterval(base, result)
	}
	s.armWithRecovery(ctx, next, maxRecoveryAttempts)
}

// runHandler invokes the handler, recovering from a panic so one bad
// tick never brings down the scheduler loop.
func (s *Scheduler) runHandler(ctx context.Context) (result PollResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("%s: tick handler panicked: %v", s.deviceID, r)
		}
	}()
	return s.handler(ctx)
}

// armWithRecovery attempts to record+start a timer for interval d,
// retrying up to attempts times with backoff
// MIN_HEALTH_CHECK_INTERVAL*attempt (capped at MAX_HEALTH_CHECK_INTERVAL)
// on failure. Persistent failure sets recoveryFailed.
func (s *Scheduler) armWithRecovery(ctx context.Context, d time.Duration, attempts int) {
	for attempt := 1; attempt <= attempts; attempt++ {
		if s.arm(ctx, d) {
			s.mu.Lock()
			s.recoveryFailed = false
			s.mu.Unlock()
			return
		}
		backoff := domain.MinHealthCheckInterval * time.Duration(attempt)
		if backoff > domain.MaxHealthCheckInterval {
			backoff = domain.MaxHealthCheckInterval
		}
		s.log.Error("%s: timer arm failed (attempt %d/%d), backing off %v", s.deviceID, attempt, attempts, backoff)
		d = backoff
	}
	s.mu.Lock()
	s.recoveryFailed = true
	s.mu.Unlock()
	s.log.Error("%s: timer recovery exhausted; forcing a restart on next external trigger", s.deviceID)
}

// arm records the single-outstanding-timer bookkeeping atomically with
// starting the timer. The field store reports no failures, so it
// always returns true.
func (s *Scheduler) arm(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	scheduledAt := s.now()
	s.store.Set(s.deviceID, fields.KeyHealthTimerID, scheduledAt.UnixNano(), fields.Options{Persist: true})
	s.store.Set(s.deviceID, fields.KeyLastHealthScheduled, scheduledAt, fields.Options{Persist: true})

	s.timer = time.AfterFunc(d, func() {
		s.Tick(ctx)
	})
	return true
}

// RecoveryFailed reports whether the last arm attempt exhausted its
// retries.
func (s *Scheduler) RecoveryFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recoveryFailed
}
