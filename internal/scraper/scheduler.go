package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"aquabot/internal/domain"
)

// Scheduler runs the full catalog sync once a day at a configured local
// time, with a manual trigger for the API.
type Scheduler struct {
	scraper *Scraper
	cron    *cron.Cron
	logger  *slog.Logger
	running atomic.Bool
}

func NewScheduler(scraper *Scraper, dailyAt string, logger *slog.Logger) (*Scheduler, error) {
	spec, err := dailySpec(dailyAt)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		scraper: scraper,
		cron:    cron.New(),
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.Trigger(context.Background()); err != nil {
			logger.Error("scheduled catalog sync failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule catalog sync: %w", err)
	}
	logger.Info("catalog sync scheduled", "daily_at", dailyAt)
	return s, nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger runs a sync now unless one is already in flight.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("catalog sync already running")
	}
	defer s.running.Store(false)

	s.logger.Info("catalog sync starting")
	_, err := s.scraper.FullSync(ctx)
	return err
}

// Running reports whether a sync is in flight.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Status returns the most recent sync log, or nil if none has run.
func (s *Scheduler) Status(ctx context.Context) (*domain.SyncLog, error) {
	return s.scraper.Status(ctx)
}

// dailySpec converts "HH:MM" into a cron expression.
func dailySpec(dailyAt string) (string, error) {
	parts := strings.SplitN(dailyAt, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid daily sync time %q, want HH:MM", dailyAt)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in daily sync time %q", dailyAt)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in daily sync time %q", dailyAt)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
