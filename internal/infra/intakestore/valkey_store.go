package intakestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/finedust/internal/domain/intake"
)

// ValkeyStore caches intake records in a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore constructs a new store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "finedust"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

func (s *ValkeyStore) Lookup(ctx context.Context, day intake.Date) (intake.IntakeRecord, bool, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(s.recordKey(day)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return intake.IntakeRecord{}, false, nil
		}
		return intake.IntakeRecord{}, false, err
	}
	var rec intake.IntakeRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return intake.IntakeRecord{}, false, err
	}
	return rec, true, nil
}

// Persist writes every record with SET NX so a cached day is never replaced.
func (s *ValkeyStore) Persist(ctx context.Context, records []intake.IntakeRecord) error {
	if len(records) == 0 {
		return nil
	}
	cmds := make(valkey.Commands, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		cmds = append(cmds, s.client.B().Set().Key(s.recordKey(rec.Date)).Value(string(payload)).Nx().Build())
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		// NX on an existing key replies nil.
		if err := resp.Error(); err != nil && !valkey.IsValkeyNil(err) {
			return err
		}
	}
	return nil
}

func (s *ValkeyStore) recordKey(day intake.Date) string {
	return fmt.Sprintf("%s:intake:%s", s.prefix, day)
}

var _ intake.IntakeStore = (*ValkeyStore)(nil)
