package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/yanqian/finedust/pkg/errors"
)

// Service exposes intake aggregation to the transport and statistics layers.
type Service interface {
	Today(ctx context.Context) (TodayIntake, error)
	Week(ctx context.Context, r DateRange) (WeeklyIntake, error)
	DefaultWeek() DateRange
}

type service struct {
	cfg       Config
	motion    MotionSource
	pollution PollutionSource
	store     IntakeStore
	publisher TodayPublisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() uuid.UUID
	flights   singleflight.Group
}

// NewService wires up the intake domain.
func NewService(cfg Config, motion MotionSource, pollution PollutionSource, store IntakeStore, publisher TodayPublisher, logger *slog.Logger) Service {
	return &service{
		cfg:       withDefaults(cfg),
		motion:    motion,
		pollution: pollution,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "intake.service"),
		now:       time.Now,
		newID:     uuid.New,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Timezone == nil {
		cfg.Timezone = time.FixedZone("Asia/Seoul", 9*60*60)
	}
	if cfg.WeekDays <= 0 {
		cfg.WeekDays = 6
	}
	if cfg.DoseCoefficient <= 0 {
		cfg.DoseCoefficient = DefaultDoseCoefficient
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 31
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 30
	}
	return cfg
}

func (s *service) today() Date {
	return DateOf(s.now().In(s.cfg.Timezone))
}

// DefaultWeek covers the days before today; today itself is served fresh.
func (s *service) DefaultWeek() DateRange {
	today := s.today()
	return DateRange{Start: today.AddDays(-s.cfg.WeekDays), End: today.AddDays(-1)}
}

func (s *service) Today(ctx context.Context) (TodayIntake, error) {
	if err := s.ensureAuthorized(ctx); err != nil {
		return TodayIntake{}, err
	}
	day := s.today()

	var (
		conc     Concentration
		distance []HourlyValue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.pollution.ConcentrationForDay(gctx, day)
		if err != nil {
			return wrapWithCode(err, CodeNetwork, "failed to fetch today's dust concentration")
		}
		conc = c
		return nil
	})
	g.Go(func() error {
		d, err := s.motion.DistanceForDay(gctx, day)
		if err != nil {
			return wrapWithCode(err, CodeSourceUnavailable, "failed to fetch today's distance")
		}
		distance = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return TodayIntake{}, err
	}

	fine := dailyDose(AlignHourly(conc.Fine, distance), s.cfg.DoseCoefficient)
	ultrafine := dailyDose(AlignHourly(conc.Ultrafine, distance), s.cfg.DoseCoefficient)
	grade := GradeFor(fine + ultrafine)
	snapshot := TodayIntake{
		Date:          day,
		FineDust:      fine,
		UltrafineDust: ultrafine,
		Grade:         grade,
		GradeLevel:    grade.Level(),
		RequestID:     s.newID(),
		ComputedAt:    s.now().In(s.cfg.Timezone),
	}
	s.logger.Info("today intake computed", "date", day, "fine", fine, "ultrafine", ultrafine, "grade", grade, "request_id", snapshot.RequestID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snapshot); err != nil {
			s.logger.Warn("today intake publish failed", "request_id", snapshot.RequestID, "error", err)
		}
	}
	return snapshot, nil
}

func (s *service) ensureAuthorized(ctx context.Context) error {
	ok, err := s.motion.IsAuthorized(ctx)
	if err != nil {
		return wrapWithCode(err, CodeSourceUnavailable, "failed to read health data authorization")
	}
	if !ok {
		return apperrors.Wrap(CodeAuthorization, "health data access is not authorized", nil)
	}
	return nil
}

func wrapWithCode(err error, fallback, message string) error {
	code := apperrors.CodeOf(err)
	if code == "" {
		code = fallback
	}
	return apperrors.Wrap(code, message, err)
}
