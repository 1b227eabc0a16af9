package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/yanqian/finedust/internal/domain/activity"
	"github.com/yanqian/finedust/internal/domain/intake"
	"github.com/yanqian/finedust/internal/domain/statistics"
)

var validate = validator.New()

// MotionRecorder accepts uploads from the device.
type MotionRecorder interface {
	RecordSamples(ctx context.Context, samples []activity.Sample) (int, error)
	SetAuthorization(ctx context.Context, authorized bool) error
}

// SnapshotReader returns the last published today snapshot.
type SnapshotReader interface {
	Latest(ctx context.Context) (intake.TodayIntake, bool, error)
}

// Handler wires the HTTP transport to domain services.
type Handler struct {
	intakeSvc intake.Service
	statsSvc  statistics.Service
	motion    MotionRecorder
	snapshots SnapshotReader
	logger    *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(intakeSvc intake.Service, statsSvc statistics.Service, motion MotionRecorder, snapshots SnapshotReader, logger *slog.Logger) *Handler {
	return &Handler{
		intakeSvc: intakeSvc,
		statsSvc:  statsSvc,
		motion:    motion,
		snapshots: snapshots,
		logger:    logger.With("component", "http.handler"),
	}
}

type weekQuery struct {
	From string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" validate:"omitempty,datetime=2006-01-02"`
}

type weekResponse struct {
	intake.WeeklyIntake
	PersistWarning string `json:"persistWarning,omitempty"`
}

type motionSample struct {
	Hour           time.Time `json:"hour" validate:"required"`
	DistanceMeters float64   `json:"distanceMeters" validate:"gte=0"`
}

type motionSamplesRequest struct {
	Samples []motionSample `json:"samples" validate:"required,min=1,dive"`
}

type authorizationRequest struct {
	Authorized *bool `json:"authorized" validate:"required"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Today computes a fresh intake snapshot for the current day.
func (h *Handler) Today(c *gin.Context) {
	snapshot, err := h.intakeSvc.Today(c.Request.Context())
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// LatestToday returns the last published snapshot without recomputing.
func (h *Handler) LatestToday(c *gin.Context) {
	snapshot, ok, err := h.snapshots.Latest(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusServiceUnavailable, "snapshot_unavailable", errMessage(err), err))
		return
	}
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "no snapshot published yet", nil))
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// Week returns per-day intakes, backfilling days that are not cached yet.
func (h *Handler) Week(c *gin.Context) {
	var q weekQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if err := validate.Struct(q); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "from and to must be YYYY-MM-DD", err))
		return
	}

	r := h.intakeSvc.DefaultWeek()
	if q.From != "" {
		from, err := intake.ParseDate(q.From)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
			return
		}
		r.Start = from
	}
	if q.To != "" {
		to, err := intake.ParseDate(q.To)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
			return
		}
		r.End = to
	}

	week, err := h.intakeSvc.Week(c.Request.Context(), r)
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	resp := weekResponse{WeeklyIntake: week}
	if week.PersistErr != nil {
		resp.PersistWarning = week.PersistErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Statistics returns the week-plus-today overview.
func (h *Handler) Statistics(c *gin.Context) {
	overview, err := h.statsSvc.Overview(c.Request.Context())
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusOK, overview)
}

// RecordMotion stores hourly distance samples uploaded by the device.
func (h *Handler) RecordMotion(c *gin.Context) {
	var req motionSamplesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if err := validate.Struct(req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	samples := make([]activity.Sample, 0, len(req.Samples))
	for _, s := range req.Samples {
		samples = append(samples, activity.Sample{Hour: s.Hour, DistanceMeters: s.DistanceMeters})
	}
	stored, err := h.motion.RecordSamples(c.Request.Context(), samples)
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"stored": stored})
}

// SetAuthorization records the health-data consent state.
func (h *Handler) SetAuthorization(c *gin.Context) {
	var req authorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if err := validate.Struct(req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "authorized is required", err))
		return
	}
	if err := h.motion.SetAuthorization(c.Request.Context(), *req.Authorized); err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.Status(http.StatusNoContent)
}
