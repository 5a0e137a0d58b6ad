package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CleanupScheduler sweeps expired counters and buckets on a cron schedule.
// Backends with native expiry (Redis) report zero deletions, so running the
// scheduler against them is harmless.
type CleanupScheduler struct {
	backend  Backend
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewCleanupScheduler creates a scheduler for backend.
//
// Common cron expressions:
//   - "*/15 * * * *" - Every 15 minutes
//   - "0 * * * *"    - Hourly
//   - "0 3 * * *"    - Daily at 3 AM
func NewCleanupScheduler(backend Backend, schedule string, logger *slog.Logger) *CleanupScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupScheduler{
		backend:  backend,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "storage.cleanup"),
	}
}

// Start schedules the sweep and stops it when ctx is cancelled.
// An empty schedule does nothing.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("cleanup schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("cleanup scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs one sweep.
func (s *CleanupScheduler) RunOnce(ctx context.Context) {
	deleted, err := s.backend.Cleanup(ctx, time.Now())
	if err != nil {
		s.logger.Warn("cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("expired entries removed", "deleted_count", deleted)
	} else {
		s.logger.Debug("cleanup completed, nothing expired")
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("cleanup scheduler stopped")
	}
}

// NextRun returns the next scheduled sweep, or nil if not running.
func (s *CleanupScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
