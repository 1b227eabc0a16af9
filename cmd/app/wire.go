//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/finedust/internal/bootstrap"
	"github.com/yanqian/finedust/internal/domain/activity"
	"github.com/yanqian/finedust/internal/domain/auth"
	"github.com/yanqian/finedust/internal/domain/intake"
	"github.com/yanqian/finedust/internal/domain/statistics"
	"github.com/yanqian/finedust/internal/infra/airkorea"
	"github.com/yanqian/finedust/internal/infra/config"
	httpiface "github.com/yanqian/finedust/internal/interface/http"
	"github.com/yanqian/finedust/internal/scheduler"
	"github.com/yanqian/finedust/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		provideLocation,
		provideIntakeConfig,
		provideActivityConfig,
		provideStatisticsConfig,
		provideAuthConfig,
		provideSchedulerConfig,
		provideAirKoreaClient,
		providePostgresPool,
		provideValkeyClient,
		provideActivityRepository,
		provideIntakeStore,
		provideSnapshotStore,
		provideTodayPublisher,
		provideSnapshotReader,
		activity.NewService,
		intake.NewService,
		statistics.NewService,
		auth.NewService,
		scheduler.New,
		wire.Bind(new(intake.MotionSource), new(*activity.Service)),
		wire.Bind(new(httpiface.MotionRecorder), new(*activity.Service)),
		wire.Bind(new(intake.PollutionSource), new(*airkorea.Client)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
