package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/robfig/cron/v3"
)

const DefaultHousekeepingSchedule = "@every 1h"

// HousekeepingService periodically deletes expired sessions so the table
// does not grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Schedule string
	Now      func() time.Time

	cron *cron.Cron
}

// NewHousekeepingService builds the worker. An empty schedule means hourly.
func NewHousekeepingService(st store.Store, logger *slog.Logger, schedule string) *HousekeepingService {
	if schedule == "" {
		schedule = DefaultHousekeepingSchedule
	}
	return &HousekeepingService{Store: st, Logger: logger, Schedule: schedule}
}

// Start runs one cleanup immediately and then schedules the rest. It
// returns an error for an unparsable schedule.
func (s *HousekeepingService) Start() error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.Schedule, func() { s.Cleanup(context.Background()) }); err != nil {
		return fmt.Errorf("housekeeping schedule %q: %w", s.Schedule, err)
	}
	s.cron = c

	s.Cleanup(context.Background())
	c.Start()
	s.Logger.Info("housekeeping service started", "schedule", s.Schedule)
	return nil
}

// Stop waits for a running cleanup to finish.
func (s *HousekeepingService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.Logger.Info("housekeeping service stopped")
}

// Cleanup deletes expired sessions and reports how many went.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	n, err := s.Store.Sessions().DeleteExpiredSessions(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
		return 0
	}
	s.Logger.Info("housekeeping cleanup completed", "expired_sessions", n)
	return n
}
