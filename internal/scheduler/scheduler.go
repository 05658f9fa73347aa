package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/pipeline"
	"github.com/redteam-monitor/backend/pkg/config"
	"github.com/redteam-monitor/backend/pkg/logger"
)

// Scheduler registers the three recurring runs: daily collection, daily
// processing, and a weekly digest on Monday. Run durations are expected far
// below their periods, so jobs never overlap and no locking is needed.
type Scheduler struct {
	cron   *cron.Cron
	runner *pipeline.Runner
	cfg    config.Config
}

func New(runner *pipeline.Runner, cfg config.Config) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		cfg:    cfg,
	}
}

// Run blocks until ctx is cancelled. Job failures are logged and the next
// scheduled slot proceeds regardless.
func (s *Scheduler) Run(ctx context.Context) error {
	days := 7

	collectSpec, err := cronSpec(s.cfg.Schedule.Collection, "*")
	if err != nil {
		return fmt.Errorf("invalid collection schedule: %w", err)
	}
	processSpec, err := cronSpec(s.cfg.Schedule.Processing, "*")
	if err != nil {
		return fmt.Errorf("invalid processing schedule: %w", err)
	}
	digestSpec, err := cronSpec(s.cfg.Schedule.Digest, "1")
	if err != nil {
		return fmt.Errorf("invalid digest schedule: %w", err)
	}

	if _, err := s.cron.AddFunc(collectSpec, func() {
		if err := s.runner.RunCollection(ctx, days); err != nil {
			logger.Error("Scheduled collection failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule collection: %w", err)
	}
	logger.Info("Scheduled paper collection", zap.String("at", s.cfg.Schedule.Collection))

	if _, err := s.cron.AddFunc(processSpec, func() {
		if err := s.runner.RunProcessing(ctx, 0); err != nil {
			logger.Error("Scheduled processing failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule processing: %w", err)
	}
	logger.Info("Scheduled paper processing", zap.String("at", s.cfg.Schedule.Processing))

	if _, err := s.cron.AddFunc(digestSpec, func() {
		if err := s.runner.RunDigest(ctx, days, s.cfg.Email.MinRelevance); err != nil {
			logger.Error("Scheduled digest failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule digest: %w", err)
	}
	logger.Info("Scheduled weekly digest", zap.String("at", s.cfg.Schedule.Digest), zap.String("day", "Monday"))

	s.cron.Start()
	logger.Info("Scheduler running")

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	logger.Info("Scheduler stopped")

	return ctx.Err()
}

// cronSpec converts a wall-clock "HH:MM" time into a cron expression firing
// at that time on the given day-of-week field.
func cronSpec(hhmm, dayOfWeek string) (string, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM, got %q", hhmm)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", hhmm)
	}

	return fmt.Sprintf("%d %d * * %s", minute, hour, dayOfWeek), nil
}
