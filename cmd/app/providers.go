package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/finedust/internal/domain/activity"
	"github.com/yanqian/finedust/internal/domain/auth"
	"github.com/yanqian/finedust/internal/domain/intake"
	"github.com/yanqian/finedust/internal/domain/statistics"
	"github.com/yanqian/finedust/internal/infra/activityrepo"
	"github.com/yanqian/finedust/internal/infra/airkorea"
	"github.com/yanqian/finedust/internal/infra/config"
	"github.com/yanqian/finedust/internal/infra/intakestore"
	"github.com/yanqian/finedust/internal/infra/snapshot"
	httpiface "github.com/yanqian/finedust/internal/interface/http"
	"github.com/yanqian/finedust/internal/scheduler"
	"github.com/yanqian/finedust/pkg/util"
)

const seoulOffset = 9 * time.Hour

func provideLocation(cfg *config.Config) *time.Location {
	return util.LoadLocation(cfg.Intake.Timezone, seoulOffset)
}

func provideIntakeConfig(cfg *config.Config, loc *time.Location) intake.Config {
	return intake.Config{
		Timezone:        loc,
		WeekDays:        cfg.Intake.WeekDays,
		DoseCoefficient: cfg.Intake.DoseCoefficient,
		MaxRangeDays:    cfg.Intake.MaxRangeDays,
		HistoryDays:     cfg.Intake.HistoryDays,
	}
}

func provideActivityConfig(cfg *config.Config, loc *time.Location) activity.Config {
	return activity.Config{
		Timezone:     loc,
		MaxBatchSize: cfg.Activity.MaxBatchSize,
		FutureLeeway: cfg.Activity.FutureLeeway,
	}
}

func provideStatisticsConfig(cfg *config.Config) statistics.Config {
	return statistics.Config{RetryCount: cfg.Intake.RetryCount}
}

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{Secret: cfg.Auth.Secret}
}

func provideSchedulerConfig(cfg *config.Config, loc *time.Location) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Cron:     cfg.Scheduler.Cron,
		Timezone: loc,
	}
}

func provideAirKoreaClient(cfg *config.Config, loc *time.Location, logger *slog.Logger) *airkorea.Client {
	if strings.TrimSpace(cfg.AirKorea.ServiceKey) == "" {
		logger.Warn("airKorea.serviceKey not set, dust requests will be rejected upstream")
	}
	return airkorea.NewClient(airkorea.Config{
		BaseURL:     cfg.AirKorea.BaseURL,
		ServiceKey:  cfg.AirKorea.ServiceKey,
		StationName: cfg.AirKorea.StationName,
		NumOfRows:   cfg.AirKorea.NumOfRows,
		Timeout:     cfg.AirKorea.Timeout,
		Timezone:    loc,
	}, logger)
}

// providePostgresPool returns nil when Postgres is not configured or not
// reachable; callers fall back to memory.
func providePostgresPool(cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, func()) {
	noop := func() {}
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory storage")
		return nil, noop
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory storage", "error", err)
		return nil, noop
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory storage", "error", err)
		return nil, noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory storage", "error", err)
		pool.Close()
		return nil, noop
	}
	logger.Info("postgres storage enabled")
	return pool, pool.Close
}

// provideValkeyClient returns nil when Valkey is disabled or unreachable.
func provideValkeyClient(cfg *config.Config, logger *slog.Logger) (valkey.Client, func()) {
	noop := func() {}
	if !cfg.Valkey.Enabled {
		return nil, noop
	}
	opt, err := buildValkeyOptions(cfg)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory", "error", err)
		return nil, noop
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory", "error", err)
		return nil, noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory", "error", err)
		client.Close()
		return nil, noop
	}
	logger.Info("valkey enabled", "addr", cfg.Valkey.Addr)
	return client, client.Close
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	if strings.Contains(cfg.Valkey.Addr, "://") {
		return valkey.ParseURL(cfg.Valkey.Addr)
	}
	return valkey.ClientOption{InitAddress: []string{cfg.Valkey.Addr}}, nil
}

func provideActivityRepository(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) activity.Repository {
	if pool != nil {
		logger.Info("activity postgres repository enabled")
		return activityrepo.NewPostgresRepository(pool)
	}
	return activityrepo.NewMemoryRepository(cfg.Activity.DefaultAuthorized)
}

// provideIntakeStore prefers the durable Postgres table, then Valkey.
func provideIntakeStore(cfg *config.Config, pool *pgxpool.Pool, client valkey.Client, logger *slog.Logger) intake.IntakeStore {
	switch {
	case pool != nil:
		logger.Info("intake postgres store enabled")
		return intakestore.NewPostgresStore(pool)
	case client != nil:
		logger.Info("intake valkey store enabled")
		return intakestore.NewValkeyStore(client, cfg.Valkey.Prefix)
	default:
		return intakestore.NewMemoryStore()
	}
}

type snapshotStore interface {
	intake.TodayPublisher
	httpiface.SnapshotReader
}

func provideSnapshotStore(cfg *config.Config, client valkey.Client) snapshotStore {
	if client != nil {
		return snapshot.NewValkeyPublisher(client, cfg.Valkey.Prefix, cfg.Valkey.TodayTTL)
	}
	return snapshot.NewMemoryPublisher()
}

func provideTodayPublisher(store snapshotStore) intake.TodayPublisher {
	return store
}

func provideSnapshotReader(store snapshotStore) httpiface.SnapshotReader {
	return store
}
