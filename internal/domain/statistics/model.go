package statistics

import (
	"github.com/google/uuid"

	"github.com/yanqian/finedust/internal/domain/intake"
)

// PollutantSeries is the last week plus today for one pollutant.
type PollutantSeries struct {
	Week       []int   `json:"week"`
	Today      int     `json:"today"`
	Total      int     `json:"total"`
	TodayRatio float64 `json:"todayRatio"`
}

// Overview feeds the statistics screen.
type Overview struct {
	Range         intake.DateRange `json:"range"`
	Days          []intake.Date    `json:"days"`
	FineDust      PollutantSeries  `json:"fineDust"`
	UltrafineDust PollutantSeries  `json:"ultrafineDust"`
	Grade         intake.Grade     `json:"grade"`
	RequestID     uuid.UUID        `json:"requestId"`
}

// Config wires runtime settings for the statistics domain.
type Config struct {
	// RetryCount is the number of extra attempts after a failure.
	RetryCount int
}
