package activity

import (
	"context"
	"time"
)

// Sample is the distance a device travelled during one hour.
type Sample struct {
	Hour           time.Time `json:"hour"`
	DistanceMeters float64   `json:"distanceMeters"`
}

// Repository persists motion samples and the health-data consent flag.
type Repository interface {
	// UpsertSamples replaces any existing value for the same hour.
	UpsertSamples(ctx context.Context, samples []Sample) error
	// SamplesBetween returns samples with from <= hour < to, ascending.
	SamplesBetween(ctx context.Context, from, to time.Time) ([]Sample, error)
	Authorization(ctx context.Context) (bool, error)
	SetAuthorization(ctx context.Context, authorized bool) error
}

// Config wires runtime settings for the activity domain.
type Config struct {
	Timezone     *time.Location
	MaxBatchSize int
	FutureLeeway time.Duration
}
