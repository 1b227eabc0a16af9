package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/yanqian/finedust/internal/domain/intake"
	apperrors "github.com/yanqian/finedust/pkg/errors"
)

// Config controls the warm-up job.
type Config struct {
	Enabled  bool
	Cron     string
	Timezone *time.Location
	Timeout  time.Duration
}

// Scheduler backfills the default week once a day so the first request is
// served from the cache. Cached days are final, so the job should run late
// enough for yesterday's last readings and motion uploads to have landed.
type Scheduler struct {
	cfg       Config
	scheduler *gocron.Scheduler
	intake    intake.Service
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config, intakeSvc intake.Service, logger *slog.Logger) *Scheduler {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Scheduler{
		cfg:       cfg,
		scheduler: gocron.NewScheduler(cfg.Timezone),
		intake:    intakeSvc,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("weekly warm-up disabled")
		return nil
	}
	s.scheduler.SingletonModeAll()
	if _, err := s.scheduler.Cron(s.cfg.Cron).Do(s.run); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("weekly warm-up scheduled", "cron", s.cfg.Cron, "timezone", s.cfg.Timezone.String())
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	_ = s.WarmUp(ctx)
}

// WarmUp resolves the default week once.
func (s *Scheduler) WarmUp(ctx context.Context) error {
	r := s.intake.DefaultWeek()
	started := time.Now()
	week, err := s.intake.Week(ctx, r)
	switch {
	case apperrors.IsCode(err, intake.CodeAuthorization):
		s.logger.Info("weekly warm-up skipped, health data not authorized", "range", r)
		return err
	case err != nil:
		s.logger.Warn("weekly warm-up failed", "range", r, "error", err)
		return err
	}
	if week.PersistErr != nil {
		s.logger.Warn("weekly warm-up could not cache results", "range", r, "error", week.PersistErr)
	}
	s.logger.Info("weekly warm-up completed", "range", r, "cached", week.Usage.CacheHits, "backfilled", week.Usage.Backfilled, "elapsed_ms", time.Since(started).Milliseconds())
	return nil
}
