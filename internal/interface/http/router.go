package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/finedust/internal/domain/auth"
	"github.com/yanqian/finedust/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, authCfg auth.Config, authSvc auth.Service, logger *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	logger = logger.With("component", "http.router")
	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(logger),
		corsMiddleware(cfg.HTTP.AllowOrigins),
		errorHandlingMiddleware(logger),
	)

	router.GET("/healthz", handler.Health)

	api := router.Group("/api/v1")
	api.Use(
		authMiddleware(authCfg, authSvc),
		rateLimitMiddleware(cfg.HTTP.RateLimit, logger),
	)
	{
		api.GET("/intakes/today", handler.Today)
		api.GET("/intakes/today/latest", handler.LatestToday)
		api.GET("/intakes/week", handler.Week)
		api.GET("/statistics", handler.Statistics)
		api.POST("/motion/samples", handler.RecordMotion)
		api.PUT("/motion/authorization", handler.SetAuthorization)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
