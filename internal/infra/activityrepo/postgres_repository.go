package activityrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/finedust/internal/domain/activity"
)

// PostgresRepository implements activity.Repository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// UpsertSamples writes every sample in one batch; an existing hour is overwritten.
func (r *PostgresRepository) UpsertSamples(ctx context.Context, samples []activity.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(`
			INSERT INTO motion_samples (hour, distance_meters)
			VALUES ($1, $2)
			ON CONFLICT (hour) DO UPDATE SET distance_meters = EXCLUDED.distance_meters
		`, sample.Hour.UTC(), sample.DistanceMeters)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// SamplesBetween returns samples with from <= hour < to.
func (r *PostgresRepository) SamplesBetween(ctx context.Context, from, to time.Time) ([]activity.Sample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT hour, distance_meters
		FROM motion_samples
		WHERE hour >= $1 AND hour < $2
		ORDER BY hour ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.Sample
	for rows.Next() {
		var sample activity.Sample
		if err := rows.Scan(&sample.Hour, &sample.DistanceMeters); err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// Authorization reads the single consent row; a missing row means not authorized.
func (r *PostgresRepository) Authorization(ctx context.Context) (bool, error) {
	var authorized bool
	err := r.pool.QueryRow(ctx, `SELECT authorized FROM motion_authorization WHERE id = 1`).Scan(&authorized)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return authorized, nil
}

// SetAuthorization stores the consent flag.
func (r *PostgresRepository) SetAuthorization(ctx context.Context, authorized bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO motion_authorization (id, authorized, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET authorized = EXCLUDED.authorized, updated_at = EXCLUDED.updated_at
	`, authorized)
	return err
}

var _ activity.Repository = (*PostgresRepository)(nil)
