package intake

import (
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/finedust/pkg/metrics"
)

// HourlyValue is one measurement at an hour (0-23) of a day.
type HourlyValue struct {
	Hour  int     `json:"hour"`
	Value float64 `json:"value"`
}

// DailyValue keys a value by calendar day.
type DailyValue[T any] struct {
	Date  Date `json:"date"`
	Value T    `json:"value"`
}

// Concentration holds one day of hourly dust readings in µg/m³.
type Concentration struct {
	Fine      []HourlyValue `json:"fine"`
	Ultrafine []HourlyValue `json:"ultrafine"`
}

// IntakeRecord is the persisted per-day dose. Immutable once written.
type IntakeRecord struct {
	Date          Date `json:"date"`
	FineDust      int  `json:"fineDust"`
	UltrafineDust int  `json:"ultrafineDust"`
}

// Combined returns the sum of both doses.
func (r IntakeRecord) Combined() int {
	return r.FineDust + r.UltrafineDust
}

// TodayIntake is the always-fresh snapshot for the current day.
type TodayIntake struct {
	Date          Date      `json:"date"`
	FineDust      int       `json:"fineDust"`
	UltrafineDust int       `json:"ultrafineDust"`
	Grade         Grade     `json:"grade"`
	GradeLevel    int       `json:"gradeLevel"`
	RequestID     uuid.UUID `json:"requestId"`
	ComputedAt    time.Time `json:"computedAt"`
}

// WeeklyIntake is the ordered result of a range request.
type WeeklyIntake struct {
	Range      DateRange             `json:"range"`
	Records    []IntakeRecord        `json:"records"`
	Backfilled []Date                `json:"backfilled"`
	Usage      metrics.BackfillUsage `json:"usage"`
	// PersistErr is set when computed records could not be cached. The
	// records are still valid.
	PersistErr error `json:"-"`
}

// Config wires runtime settings for the intake domain.
type Config struct {
	Timezone        *time.Location
	WeekDays        int
	DoseCoefficient float64
	MaxRangeDays    int
	// HistoryDays is how far back the pollution source keeps readings.
	// Missing days older than that cannot be backfilled.
	HistoryDays int
}
