package intake

import "context"

// MotionSource provides distance travelled per hour and the user's
// health-data authorization state.
type MotionSource interface {
	IsAuthorized(ctx context.Context) (bool, error)
	DistanceForDay(ctx context.Context, day Date) ([]HourlyValue, error)
	DistanceForRange(ctx context.Context, r DateRange) ([]DailyValue[[]HourlyValue], error)
}

// PollutionSource provides hourly fine and ultrafine dust concentrations.
type PollutionSource interface {
	ConcentrationForDay(ctx context.Context, day Date) (Concentration, error)
	ConcentrationForRange(ctx context.Context, r DateRange) ([]DailyValue[Concentration], error)
}

// IntakeStore caches computed per-day records. Persist must not overwrite
// a day that already exists.
type IntakeStore interface {
	Lookup(ctx context.Context, day Date) (IntakeRecord, bool, error)
	Persist(ctx context.Context, records []IntakeRecord) error
}

// TodayPublisher exposes the latest today snapshot to other processes.
type TodayPublisher interface {
	Publish(ctx context.Context, snapshot TodayIntake) error
}
