package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/fieldstate/internal/logfields"
)

// Scheduler wraps gocron for the periodic persistence tick.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// SchedulePeriodicSave registers the save tick. A failed save is logged and
// left for the next tick; the scheduler never stops on save errors.
func (s *Scheduler) SchedulePeriodicSave(interval time.Duration, save func(ctx context.Context) error) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			start := time.Now()
			if err := save(ctx); err != nil {
				slog.Error("Periodic save failed, will retry next tick", logfields.Error(err))
				return
			}
			slog.Debug("Periodic save completed",
				logfields.DurationMS(float64(time.Since(start).Milliseconds())))
		}),
		gocron.WithName("periodic-save"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic save job: %w", err)
	}
	return job.ID().String(), nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler, waiting for a running tick.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
