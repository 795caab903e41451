// Package scheduler runs periodic check cycles for every subscriber.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetention is how long delivery records are kept.
const DefaultRetention = 30 * 24 * time.Hour

const purgeInterval = 24 * time.Hour

// Purger removes delivery records older than a retention window.
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Scheduler periodically checks every subscriber's channels.
type Scheduler struct {
	prefs   Preferences
	checker *Checker
	purger  Purger
	log     *slog.Logger

	tick      time.Duration
	retention time.Duration
	lastPurge time.Time
	now       func() time.Time
}

// New creates a Scheduler with a 5-minute check interval.
func New(prefs Preferences, checker *Checker, purger Purger, log *slog.Logger) *Scheduler {
	return &Scheduler{
		prefs:     prefs,
		checker:   checker,
		purger:    purger,
		log:       log,
		tick:      5 * time.Minute,
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// SetTickInterval overrides the default check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetRetention overrides how long delivery records are kept.
func (s *Scheduler) SetRetention(d time.Duration) {
	s.retention = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	s.housekeeping(ctx)

	subs, err := s.prefs.ListSubscribers(ctx)
	if err != nil {
		s.log.Error("list subscribers", "error", err)
		return
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.checker.Check(ctx, sub.ID); err != nil {
			s.log.Error("check subscriber", "subscriber", sub.ID, "error", err)
		}
	}
}

// housekeeping purges old delivery records at most once per purge interval.
func (s *Scheduler) housekeeping(ctx context.Context) {
	if s.purger == nil || s.retention <= 0 {
		return
	}
	now := s.now()
	if !s.lastPurge.IsZero() && now.Sub(s.lastPurge) < purgeInterval {
		return
	}
	s.lastPurge = now

	n, err := s.purger.Purge(ctx, s.retention)
	if err != nil {
		s.log.Error("purge delivery records", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("purged delivery records", "count", n, "retention", s.retention)
	}
}
