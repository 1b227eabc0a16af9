package statistics

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/yanqian/finedust/internal/domain/intake"
	apperrors "github.com/yanqian/finedust/pkg/errors"
)

// Service builds the weekly statistics overview.
type Service interface {
	Overview(ctx context.Context) (Overview, error)
}

type service struct {
	cfg    Config
	intake intake.Service
	logger *slog.Logger
}

// NewService constructs the statistics service.
func NewService(cfg Config, intakeSvc intake.Service, logger *slog.Logger) Service {
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	return &service{
		cfg:    cfg,
		intake: intakeSvc,
		logger: logger.With("component", "statistics.service"),
	}
}

// Overview fetches the default week and today together. The pair is retried
// as a unit; authorization and input errors are returned immediately.
func (s *service) Overview(ctx context.Context) (Overview, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return Overview{}, err
		}
		overview, err := s.attempt(ctx)
		if err == nil {
			return overview, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		s.logger.Warn("statistics overview attempt failed", "attempt", attempt+1, "error", err)
	}
	return Overview{}, lastErr
}

func (s *service) attempt(ctx context.Context) (Overview, error) {
	var (
		week  intake.WeeklyIntake
		today intake.TodayIntake
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := s.intake.Week(gctx, s.intake.DefaultWeek())
		if err != nil {
			return err
		}
		week = w
		return nil
	})
	g.Go(func() error {
		t, err := s.intake.Today(gctx)
		if err != nil {
			return err
		}
		today = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return buildOverview(week, today), nil
}

func buildOverview(week intake.WeeklyIntake, today intake.TodayIntake) Overview {
	fine := make([]int, 0, len(week.Records))
	ultrafine := make([]int, 0, len(week.Records))
	days := make([]intake.Date, 0, len(week.Records)+1)
	for _, rec := range week.Records {
		fine = append(fine, rec.FineDust)
		ultrafine = append(ultrafine, rec.UltrafineDust)
		days = append(days, rec.Date)
	}
	days = append(days, today.Date)

	return Overview{
		Range:         intake.DateRange{Start: week.Range.Start, End: today.Date},
		Days:          days,
		FineDust:      series(fine, today.FineDust),
		UltrafineDust: series(ultrafine, today.UltrafineDust),
		Grade:         today.Grade,
		RequestID:     today.RequestID,
	}
}

func series(week []int, today int) PollutantSeries {
	total := today
	for _, v := range week {
		total += v
	}
	divisor := total
	if divisor == 0 {
		divisor = 1
	}
	return PollutantSeries{
		Week:       week,
		Today:      today,
		Total:      total,
		TodayRatio: float64(today) / float64(divisor),
	}
}

func retryable(err error) bool {
	switch apperrors.CodeOf(err) {
	case intake.CodeAuthorization, intake.CodeInvalidInput:
		return false
	default:
		return true
	}
}
