package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/finedust/internal/domain/activity"
	"github.com/yanqian/finedust/internal/domain/auth"
	"github.com/yanqian/finedust/internal/domain/intake"
	"github.com/yanqian/finedust/internal/domain/statistics"
	"github.com/yanqian/finedust/internal/infra/config"
	apperrors "github.com/yanqian/finedust/pkg/errors"
)

func TestRouter_TodaySuccess(t *testing.T) {
	snapshot := intake.TodayIntake{
		Date:          intake.Date{Year: 2019, Month: 2, Day: 8},
		FineDust:      70,
		UltrafineDust: 35,
		Grade:         intake.GradeUnhealthy,
		GradeLevel:    3,
		RequestID:     uuid.New(),
	}
	deps := newTestDeps()
	deps.intake.todayFn = func(context.Context) (intake.TodayIntake, error) { return snapshot, nil }

	recorder := performRequest(http.MethodGet, "/api/v1/intakes/today", "", "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusOK, recorder.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, "2019-02-08", got["date"])
	require.Equal(t, float64(70), got["fineDust"])
	require.Equal(t, "unhealthy", got["grade"])
	require.Equal(t, snapshot.RequestID.String(), got["requestId"])
}

func TestRouter_DomainErrorStatuses(t *testing.T) {
	cases := []struct {
		code   string
		status int
	}{
		{intake.CodeInvalidInput, http.StatusBadRequest},
		{intake.CodeAuthorization, http.StatusForbidden},
		{intake.CodeNetwork, http.StatusBadGateway},
		{intake.CodeDataFormat, http.StatusBadGateway},
		{intake.CodeSourceUnavailable, http.StatusServiceUnavailable},
		{intake.CodePersistence, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		deps := newTestDeps()
		deps.intake.todayFn = func(context.Context) (intake.TodayIntake, error) {
			return intake.TodayIntake{}, apperrors.Wrap(tc.code, "failed", nil)
		}
		recorder := performRequest(http.MethodGet, "/api/v1/intakes/today", "", "", newRouterUnderTest(t, deps, ""))
		require.Equal(t, tc.status, recorder.Code, tc.code)
		errBody := decodeErrorBody(t, recorder.Body.Bytes())
		require.Equal(t, tc.code, errBody["error"]["code"])
	}
}

func TestRouter_WeekUsesQueryRange(t *testing.T) {
	deps := newTestDeps()
	var requested intake.DateRange
	deps.intake.weekFn = func(_ context.Context, r intake.DateRange) (intake.WeeklyIntake, error) {
		requested = r
		return intake.WeeklyIntake{
			Range:      r,
			Records:    []intake.IntakeRecord{{Date: r.Start, FineDust: 3, UltrafineDust: 1}},
			PersistErr: errors.New("valkey down"),
		}, nil
	}

	recorder := performRequest(http.MethodGet, "/api/v1/intakes/week?from=2019-01-30&to=2019-02-01", "", "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, intake.Date{Year: 2019, Month: 1, Day: 30}, requested.Start)
	require.Equal(t, intake.Date{Year: 2019, Month: 2, Day: 1}, requested.End)

	var got map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, "valkey down", got["persistWarning"])
	require.Len(t, got["records"], 1)
}

func TestRouter_WeekDefaultsRange(t *testing.T) {
	deps := newTestDeps()
	var requested intake.DateRange
	deps.intake.weekFn = func(_ context.Context, r intake.DateRange) (intake.WeeklyIntake, error) {
		requested = r
		return intake.WeeklyIntake{Range: r}, nil
	}

	recorder := performRequest(http.MethodGet, "/api/v1/intakes/week", "", "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, deps.intake.DefaultWeek(), requested)

	var got map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.NotContains(t, got, "persistWarning")
}

func TestRouter_WeekRejectsMalformedDate(t *testing.T) {
	deps := newTestDeps()
	recorder := performRequest(http.MethodGet, "/api/v1/intakes/week?from=2019/02/01", "", "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, "invalid_request", decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])
	require.Zero(t, deps.intake.weekCalls)
}

func TestRouter_Statistics(t *testing.T) {
	deps := newTestDeps()
	deps.stats.overview = statistics.Overview{FineDust: statistics.PollutantSeries{Week: []int{1, 2}, Today: 3, Total: 6, TodayRatio: 0.5}}

	recorder := performRequest(http.MethodGet, "/api/v1/statistics", "", "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusOK, recorder.Code)

	var got struct {
		FineDust statistics.PollutantSeries `json:"fineDust"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, deps.stats.overview.FineDust, got.FineDust)
}

func TestRouter_RecordMotion(t *testing.T) {
	deps := newTestDeps()
	body := `{"samples":[{"hour":"2019-02-08T09:00:00+09:00","distanceMeters":120.5}]}`

	recorder := performRequest(http.MethodPost, "/api/v1/motion/samples", body, "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusAccepted, recorder.Code)
	require.Len(t, deps.motion.samples, 1)
	require.Equal(t, 120.5, deps.motion.samples[0].DistanceMeters)
	require.True(t, deps.motion.samples[0].Hour.Equal(time.Date(2019, 2, 8, 0, 0, 0, 0, time.UTC)))
}

func TestRouter_RecordMotionValidation(t *testing.T) {
	bodies := []string{
		`{"samples":[]}`,
		`{"samples":[{"hour":"2019-02-08T09:00:00Z","distanceMeters":-1}]}`,
		`{"samples":[{"distanceMeters":10}]}`,
		`{"samples":"nope"}`,
	}
	for _, body := range bodies {
		deps := newTestDeps()
		recorder := performRequest(http.MethodPost, "/api/v1/motion/samples", body, "", newRouterUnderTest(t, deps, ""))
		require.Equal(t, http.StatusBadRequest, recorder.Code, body)
		require.Empty(t, deps.motion.samples, body)
	}
}

func TestRouter_SetAuthorization(t *testing.T) {
	deps := newTestDeps()

	recorder := performRequest(http.MethodPut, "/api/v1/motion/authorization", `{"authorized":true}`, "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.True(t, deps.motion.authorized)

	recorder = performRequest(http.MethodPut, "/api/v1/motion/authorization", `{}`, "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRouter_RetriesTransientWriteFailures(t *testing.T) {
	deps := newTestDeps()
	deps.motion.failures = 1

	recorder := performRequest(http.MethodPut, "/api/v1/motion/authorization", `{"authorized":true}`, "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Equal(t, 2, deps.motion.calls)
}

func TestRouter_LatestToday(t *testing.T) {
	deps := newTestDeps()
	recorder := performRequest(http.MethodGet, "/api/v1/intakes/today/latest", "", "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusNotFound, recorder.Code)

	deps.snapshots.snapshot = intake.TodayIntake{FineDust: 9}
	deps.snapshots.ok = true
	recorder = performRequest(http.MethodGet, "/api/v1/intakes/today/latest", "", "", newRouterUnderTest(t, deps, ""))
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestRouter_BearerTokenRequiredWhenSecretSet(t *testing.T) {
	deps := newTestDeps()
	server := newRouterUnderTest(t, deps, "test-secret")

	recorder := performRequest(http.MethodGet, "/api/v1/statistics", "", "", server)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = performRequest(http.MethodGet, "/api/v1/statistics", "", "Bearer not-a-jwt", server)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, "invalid_token", decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])

	token, err := auth.NewService(auth.Config{Secret: "test-secret"}, newTestLogger()).IssueToken(context.Background(), "iphone-1")
	require.NoError(t, err)
	recorder = performRequest(http.MethodGet, "/api/v1/statistics", "", "Bearer "+token, server)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = performRequest(http.MethodGet, "/healthz", "", "", server)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	deps := newTestDeps()
	cfg := testConfig()
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	server := NewRouter(cfg, newHandler(deps), auth.Config{}, auth.NewService(auth.Config{}, newTestLogger()), newTestLogger())

	require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/api/v1/statistics", "", "", server).Code)
	recorder := performRequest(http.MethodGet, "/api/v1/statistics", "", "", server)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	require.Equal(t, "rate_limit_exceeded", decodeErrorBody(t, recorder.Body.Bytes())["error"]["code"])
}

func performRequest(method, path, body, authorization string, server *http.Server) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

type testDeps struct {
	intake    *stubIntake
	stats     *stubStatistics
	motion    *stubMotion
	snapshots *stubSnapshots
}

func newTestDeps() *testDeps {
	return &testDeps{
		intake:    &stubIntake{},
		stats:     &stubStatistics{},
		motion:    &stubMotion{},
		snapshots: &stubSnapshots{},
	}
}

func newHandler(deps *testDeps) *Handler {
	return NewHandler(deps.intake, deps.stats, deps.motion, deps.snapshots, newTestLogger())
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			Retry: config.RetryConfig{
				Enabled:     true,
				MaxAttempts: 2,
				BaseBackoff: time.Millisecond,
			},
		},
	}
}

func newRouterUnderTest(t *testing.T, deps *testDeps, secret string) *http.Server {
	t.Helper()
	authCfg := auth.Config{Secret: secret}
	return NewRouter(testConfig(), newHandler(deps), authCfg, auth.NewService(authCfg, newTestLogger()), newTestLogger())
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

type stubIntake struct {
	todayFn   func(ctx context.Context) (intake.TodayIntake, error)
	weekFn    func(ctx context.Context, r intake.DateRange) (intake.WeeklyIntake, error)
	weekCalls int
}

func (s *stubIntake) Today(ctx context.Context) (intake.TodayIntake, error) {
	if s.todayFn != nil {
		return s.todayFn(ctx)
	}
	return intake.TodayIntake{}, nil
}

func (s *stubIntake) Week(ctx context.Context, r intake.DateRange) (intake.WeeklyIntake, error) {
	s.weekCalls++
	if s.weekFn != nil {
		return s.weekFn(ctx, r)
	}
	return intake.WeeklyIntake{Range: r}, nil
}

func (s *stubIntake) DefaultWeek() intake.DateRange {
	return intake.DateRange{
		Start: intake.Date{Year: 2019, Month: 2, Day: 2},
		End:   intake.Date{Year: 2019, Month: 2, Day: 7},
	}
}

type stubStatistics struct {
	overview statistics.Overview
	err      error
}

func (s *stubStatistics) Overview(context.Context) (statistics.Overview, error) {
	return s.overview, s.err
}

type stubMotion struct {
	samples    []activity.Sample
	authorized bool
	failures   int
	calls      int
}

func (s *stubMotion) RecordSamples(_ context.Context, samples []activity.Sample) (int, error) {
	s.samples = append(s.samples, samples...)
	return len(samples), nil
}

func (s *stubMotion) SetAuthorization(_ context.Context, authorized bool) error {
	s.calls++
	if s.calls <= s.failures {
		return apperrors.Wrap(intake.CodeSourceUnavailable, "store down", errors.New("conn refused"))
	}
	s.authorized = authorized
	return nil
}

type stubSnapshots struct {
	snapshot intake.TodayIntake
	ok       bool
}

func (s *stubSnapshots) Latest(context.Context) (intake.TodayIntake, bool, error) {
	return s.snapshot, s.ok, nil
}
