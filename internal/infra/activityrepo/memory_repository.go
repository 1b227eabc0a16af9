package activityrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/finedust/internal/domain/activity"
)

// MemoryRepository is an in-memory activity.Repository used for tests/dev.
type MemoryRepository struct {
	mu         sync.RWMutex
	samples    map[time.Time]float64
	authorized bool
}

// NewMemoryRepository constructs a repo backed by memory. Authorization starts
// in the given state so local runs can skip the consent call.
func NewMemoryRepository(authorized bool) *MemoryRepository {
	return &MemoryRepository{
		samples:    make(map[time.Time]float64),
		authorized: authorized,
	}
}

// UpsertSamples implements activity.Repository.
func (r *MemoryRepository) UpsertSamples(_ context.Context, samples []activity.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sample := range samples {
		r.samples[sample.Hour.UTC()] = sample.DistanceMeters
	}
	return nil
}

// SamplesBetween implements activity.Repository.
func (r *MemoryRepository) SamplesBetween(_ context.Context, from, to time.Time) ([]activity.Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]activity.Sample, 0)
	for hour, distance := range r.samples {
		if hour.Before(from) || !hour.Before(to) {
			continue
		}
		out = append(out, activity.Sample{Hour: hour, DistanceMeters: distance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}

// Authorization implements activity.Repository.
func (r *MemoryRepository) Authorization(context.Context) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authorized, nil
}

// SetAuthorization implements activity.Repository.
func (r *MemoryRepository) SetAuthorization(_ context.Context, authorized bool) error {
	r.mu.Lock()
	r.authorized = authorized
	r.mu.Unlock()
	return nil
}

var _ activity.Repository = (*MemoryRepository)(nil)
