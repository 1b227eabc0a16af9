package snapshot

import (
	"context"
	"sync"

	"github.com/yanqian/finedust/internal/domain/intake"
)

// MemoryPublisher keeps the latest today snapshot in process memory.
type MemoryPublisher struct {
	mu     sync.RWMutex
	latest intake.TodayIntake
	ok     bool
}

// NewMemoryPublisher constructs an empty publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish implements intake.TodayPublisher.
func (p *MemoryPublisher) Publish(_ context.Context, snapshot intake.TodayIntake) error {
	p.mu.Lock()
	p.latest = snapshot
	p.ok = true
	p.mu.Unlock()
	return nil
}

// Latest returns the most recent snapshot, if any.
func (p *MemoryPublisher) Latest(context.Context) (intake.TodayIntake, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.ok, nil
}

var _ intake.TodayPublisher = (*MemoryPublisher)(nil)
