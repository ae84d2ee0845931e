package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Maxborland/EvaCalendar-sub000/internal/metrics"
	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
)

const purgeTimeout = 2 * time.Minute

// Scheduler runs housekeeping jobs against the store.
type Scheduler struct {
	cron      *cron.Cron
	store     repository.Store
	schedule  string
	retention time.Duration
	now       func() time.Time
}

// NewScheduler creates a scheduler that purges terminal invitations older
// than retention on the given cron schedule.
func NewScheduler(store repository.Store, schedule string, retention time.Duration) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		store:     store,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
	}
}

// Start registers the jobs and starts the scheduler. It fails on an invalid
// schedule expression.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		if _, err := s.PurgeInvitations(ctx); err != nil {
			slog.Error("invitation purge failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule invitation purge %q: %w", s.schedule, err)
	}

	s.cron.Start()
	slog.Info("scheduler started", "purge_schedule", s.schedule, "retention", s.retention)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// PurgeInvitations deletes accepted, expired and cancelled invitations created
// before the retention window. Pending invitations are never touched.
func (s *Scheduler) PurgeInvitations(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.Invitations().PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge invitations: %w", err)
	}

	metrics.Invitation("purged", int(n))
	slog.InfoContext(ctx, "purged old invitations", "count", n, "cutoff", cutoff)
	return n, nil
}
