package intakestore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/finedust/internal/domain/intake"
)

// PostgresStore implements intake.IntakeStore using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Lookup fetches the record for one day.
func (s *PostgresStore) Lookup(ctx context.Context, day intake.Date) (intake.IntakeRecord, bool, error) {
	var rec intake.IntakeRecord
	var stored time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT day, fine_dust, ultrafine_dust
		FROM intake_records
		WHERE day = $1
	`, day.In(time.UTC)).Scan(&stored, &rec.FineDust, &rec.UltrafineDust)
	if errors.Is(err, pgx.ErrNoRows) {
		return intake.IntakeRecord{}, false, nil
	}
	if err != nil {
		return intake.IntakeRecord{}, false, err
	}
	rec.Date = intake.DateOf(stored)
	return rec, true, nil
}

// Persist inserts all records in one transaction; days already stored keep
// their original values.
func (s *PostgresStore) Persist(ctx context.Context, records []intake.IntakeRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO intake_records (day, fine_dust, ultrafine_dust, created_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (day) DO NOTHING
		`, rec.Date.In(time.UTC), rec.FineDust, rec.UltrafineDust)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var _ intake.IntakeStore = (*PostgresStore)(nil)
