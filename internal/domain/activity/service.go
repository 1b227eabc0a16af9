package activity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/yanqian/finedust/internal/domain/intake"
	apperrors "github.com/yanqian/finedust/pkg/errors"
	"github.com/yanqian/finedust/pkg/util"
)

// Service ingests device motion data and serves it as an intake.MotionSource.
type Service struct {
	cfg    Config
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(cfg Config, repo Repository, logger *slog.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.FixedZone("Asia/Seoul", 9*60*60)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 24 * 31
	}
	if cfg.FutureLeeway <= 0 {
		cfg.FutureLeeway = time.Hour
	}
	return &Service{
		cfg:    cfg,
		repo:   repo,
		logger: logger.With("component", "activity.service"),
		now:    util.NowUTC,
	}
}

// RecordSamples validates and stores a batch of hourly samples.
func (s *Service) RecordSamples(ctx context.Context, samples []Sample) (int, error) {
	if len(samples) == 0 {
		return 0, apperrors.Wrap(intake.CodeInvalidInput, "samples cannot be empty", nil)
	}
	if len(samples) > s.cfg.MaxBatchSize {
		return 0, apperrors.Wrap(intake.CodeInvalidInput, fmt.Sprintf("at most %d samples per request", s.cfg.MaxBatchSize), nil)
	}
	limit := s.now().Add(s.cfg.FutureLeeway)
	byHour := make(map[time.Time]Sample, len(samples))
	for i, sample := range samples {
		if sample.Hour.IsZero() {
			return 0, apperrors.Wrap(intake.CodeInvalidInput, fmt.Sprintf("sample %d: hour is required", i), nil)
		}
		if math.IsNaN(sample.DistanceMeters) || math.IsInf(sample.DistanceMeters, 0) || sample.DistanceMeters < 0 {
			return 0, apperrors.Wrap(intake.CodeInvalidInput, fmt.Sprintf("sample %d: distance must be a non-negative number", i), nil)
		}
		if sample.Hour.After(limit) {
			return 0, apperrors.Wrap(intake.CodeInvalidInput, fmt.Sprintf("sample %d: hour is in the future", i), nil)
		}
		hour := sample.Hour.UTC().Truncate(time.Hour)
		byHour[hour] = Sample{Hour: hour, DistanceMeters: sample.DistanceMeters}
	}

	normalized := make([]Sample, 0, len(byHour))
	for _, sample := range byHour {
		normalized = append(normalized, sample)
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Hour.Before(normalized[j].Hour)
	})
	if err := s.repo.UpsertSamples(ctx, normalized); err != nil {
		return 0, apperrors.Wrap(intake.CodeSourceUnavailable, "failed to store motion samples", err)
	}
	s.logger.Info("motion samples recorded", "count", len(normalized), "first", normalized[0].Hour, "last", normalized[len(normalized)-1].Hour)
	return len(normalized), nil
}

// SetAuthorization records whether the user granted health-data access.
func (s *Service) SetAuthorization(ctx context.Context, authorized bool) error {
	if err := s.repo.SetAuthorization(ctx, authorized); err != nil {
		return apperrors.Wrap(intake.CodeSourceUnavailable, "failed to store authorization", err)
	}
	s.logger.Info("health data authorization updated", "authorized", authorized)
	return nil
}

// IsAuthorized implements intake.MotionSource.
func (s *Service) IsAuthorized(ctx context.Context) (bool, error) {
	ok, err := s.repo.Authorization(ctx)
	if err != nil {
		return false, apperrors.Wrap(intake.CodeSourceUnavailable, "failed to read authorization", err)
	}
	return ok, nil
}

// DistanceForDay implements intake.MotionSource. Hours without samples are
// absent from the result.
func (s *Service) DistanceForDay(ctx context.Context, day intake.Date) ([]intake.HourlyValue, error) {
	byDay, err := s.load(ctx, intake.DateRange{Start: day, End: day})
	if err != nil {
		return nil, err
	}
	return byDay[day], nil
}

// DistanceForRange implements intake.MotionSource. Every day of the range is
// present, possibly with an empty series.
func (s *Service) DistanceForRange(ctx context.Context, r intake.DateRange) ([]intake.DailyValue[[]intake.HourlyValue], error) {
	if err := r.Validate(); err != nil {
		return nil, apperrors.Wrap(intake.CodeInvalidInput, "invalid date range", err)
	}
	byDay, err := s.load(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]intake.DailyValue[[]intake.HourlyValue], 0, r.Len())
	for _, day := range r.Days() {
		out = append(out, intake.DailyValue[[]intake.HourlyValue]{Date: day, Value: byDay[day]})
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, r intake.DateRange) (map[intake.Date][]intake.HourlyValue, error) {
	from := r.Start.In(s.cfg.Timezone)
	to := r.End.AddDays(1).In(s.cfg.Timezone)
	samples, err := s.repo.SamplesBetween(ctx, from, to)
	if err != nil {
		return nil, apperrors.Wrap(intake.CodeSourceUnavailable, "failed to load motion samples", err)
	}
	return bucketByHour(samples, s.cfg.Timezone), nil
}

func bucketByHour(samples []Sample, loc *time.Location) map[intake.Date][]intake.HourlyValue {
	type key struct {
		day  intake.Date
		hour int
	}
	sums := make(map[key]float64, len(samples))
	for _, sample := range samples {
		local := sample.Hour.In(loc)
		sums[key{day: intake.DateOf(local), hour: local.Hour()}] += sample.DistanceMeters
	}
	out := make(map[intake.Date][]intake.HourlyValue)
	for k, v := range sums {
		out[k.day] = append(out[k.day], intake.HourlyValue{Hour: k.hour, Value: v})
	}
	for day := range out {
		series := out[day]
		sort.Slice(series, func(i, j int) bool { return series[i].Hour < series[j].Hour })
	}
	return out
}

var _ intake.MotionSource = (*Service)(nil)
