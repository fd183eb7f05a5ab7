package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/ComplyOps/Gatherer/internal/model"
)

// Schedule runs the collector repeatedly in timer mode until ctx is
// canceled. Per-run errors (including a degraded run) are logged, never
// fatal; only scheduler setup can fail.
func Schedule(ctx context.Context, collector *Collector, cfg model.Service) error {
	if cfg.Mode != model.ServiceModeTimer {
		return fmt.Errorf("mode %q is not schedulable", cfg.Mode)
	}

	scheduler, err := newScheduler(cfg.Schedule, func() {
		if _, err := collector.Do(ctx); err != nil {
			slog.ErrorContext(ctx, "scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.ErrorContext(ctx, "shutting down scheduler failed", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

func newScheduler(cfgp *model.TimerSchedule, task func()) (gocron.Scheduler, error) {
	if cfgp == nil {
		return nil, errors.New("service.schedule is nil")
	}
	cfg := *cfgp

	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if err := ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
	case cfg.Every > 0:
		job = gocron.DurationJob(cfg.Every)
	default:
		return nil, errors.New("both cron and every are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing scheduler: %w", err)
	}
	if _, err := s.NewJob(job, gocron.NewTask(task)); err != nil {
		return nil, fmt.Errorf("initializing scheduled job: %w", err)
	}
	return s, nil
}
