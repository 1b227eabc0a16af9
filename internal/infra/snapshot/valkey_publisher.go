package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/finedust/internal/domain/intake"
)

// ValkeyPublisher shares the today snapshot through a Valkey key so widgets
// and other processes can read it without recomputing.
type ValkeyPublisher struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyPublisher constructs a publisher; ttl <= 0 keeps the key forever.
func NewValkeyPublisher(client valkey.Client, prefix string, ttl time.Duration) *ValkeyPublisher {
	if prefix == "" {
		prefix = "finedust"
	}
	return &ValkeyPublisher{client: client, prefix: prefix, ttl: ttl}
}

func (p *ValkeyPublisher) Publish(ctx context.Context, snapshot intake.TodayIntake) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	builder := p.client.B().Set().Key(p.key()).Value(string(payload))
	var cmd valkey.Completed
	if p.ttl > 0 {
		ttl := p.ttl
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return p.client.Do(ctx, cmd).Error()
}

// Latest reads the shared snapshot back.
func (p *ValkeyPublisher) Latest(ctx context.Context) (intake.TodayIntake, bool, error) {
	payload, err := p.client.Do(ctx, p.client.B().Get().Key(p.key()).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return intake.TodayIntake{}, false, nil
		}
		return intake.TodayIntake{}, false, err
	}
	var snapshot intake.TodayIntake
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return intake.TodayIntake{}, false, err
	}
	return snapshot, true, nil
}

func (p *ValkeyPublisher) key() string {
	return fmt.Sprintf("%s:today", p.prefix)
}

var _ intake.TodayPublisher = (*ValkeyPublisher)(nil)
