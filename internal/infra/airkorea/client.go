package airkorea

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yanqian/finedust/internal/domain/intake"
	apperrors "github.com/yanqian/finedust/pkg/errors"
)

const (
	defaultBaseURL   = "http://apis.data.go.kr/B552584/ArpltnInforInqireSvc"
	measurePath      = "/getMsrstnAcctoRltmMesureDnsty"
	resultCodeOK     = "00"
	dataTimeLayout   = "2006-01-02 15:04"
	defaultNumOfRows = 24 * 31
)

// Config holds the AirKorea connection settings.
type Config struct {
	BaseURL     string
	ServiceKey  string
	StationName string
	NumOfRows   int
	Timeout     time.Duration
	Timezone    *time.Location
	Backoff     BackoffConfig
}

// Client fetches hourly PM10/PM2.5 readings for one measuring station.
type Client struct {
	cfg        Config
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient builds an API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(base, "/")
	if cfg.NumOfRows <= 0 {
		cfg.NumOfRows = defaultNumOfRows
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.FixedZone("Asia/Seoul", 9*60*60)
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		circuit:    newCircuitBreaker("airkorea"),
		logger:     logger.With("component", "airkorea.client"),
	}
}

// ConcentrationForDay implements intake.PollutionSource. Missing hours are
// absent from the series.
func (c *Client) ConcentrationForDay(ctx context.Context, day intake.Date) (intake.Concentration, error) {
	byDay, err := c.fetch(ctx)
	if err != nil {
		return intake.Concentration{}, err
	}
	return byDay[day], nil
}

// ConcentrationForRange implements intake.PollutionSource. Every day of the
// range is present; days without readings carry empty series.
func (c *Client) ConcentrationForRange(ctx context.Context, r intake.DateRange) ([]intake.DailyValue[intake.Concentration], error) {
	if err := r.Validate(); err != nil {
		return nil, apperrors.Wrap(intake.CodeInvalidInput, "invalid date range", err)
	}
	byDay, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]intake.DailyValue[intake.Concentration], 0, r.Len())
	for _, day := range r.Days() {
		out = append(out, intake.DailyValue[intake.Concentration]{Date: day, Value: byDay[day]})
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context) (map[intake.Date]intake.Concentration, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("serviceKey", c.cfg.ServiceKey)
		values.Set("returnType", "json")
		values.Set("numOfRows", strconv.Itoa(c.cfg.NumOfRows))
		values.Set("pageNo", "1")
		values.Set("stationName", c.cfg.StationName)
		values.Set("dataTerm", "MONTH")
		values.Set("ver", "1.3")
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+measurePath+"?"+values.Encode(), nil)
	}

	started := time.Now()
	resp, err := doRequest(ctx, c.httpClient, c.cfg.Backoff, c.circuit, buildRequest)
	if err != nil {
		return nil, apperrors.Wrap(intake.CodeNetwork, "airkorea request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(intake.CodeNetwork, "read airkorea response", err)
	}
	var raw apiResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Wrap(intake.CodeDataFormat, "decode airkorea response", err)
	}
	header := raw.Response.Header
	if header.ResultCode != resultCodeOK {
		return nil, apperrors.Wrap(intake.CodeDataFormat, fmt.Sprintf("airkorea api error: code=%s msg=%s", header.ResultCode, header.ResultMsg), nil)
	}
	byDay, err := normalizeItems(raw.Response.Body.Items, c.cfg.Timezone)
	if err != nil {
		return nil, apperrors.Wrap(intake.CodeDataFormat, "parse airkorea readings", err)
	}
	c.logger.Debug("airkorea readings fetched", "station", c.cfg.StationName, "items", len(raw.Response.Body.Items), "days", len(byDay), "latency", time.Since(started))
	return byDay, nil
}

type apiResponse struct {
	Response struct {
		Header apiHeader `json:"header"`
		Body   apiBody   `json:"body"`
	} `json:"response"`
}

type apiHeader struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
}

type apiBody struct {
	TotalCount int    `json:"totalCount"`
	Items      []item `json:"items"`
}

type item struct {
	DataTime  string `json:"dataTime"`
	PM10Value string `json:"pm10Value"`
	PM25Value string `json:"pm25Value"`
}

// normalizeItems groups readings by local day. The first reading for an
// hour wins; "-" or empty values leave that pollutant's hour absent.
func normalizeItems(items []item, loc *time.Location) (map[intake.Date]intake.Concentration, error) {
	type slot struct {
		day  intake.Date
		hour int
	}
	seenFine := make(map[slot]struct{})
	seenUltra := make(map[slot]struct{})
	out := make(map[intake.Date]intake.Concentration)

	for _, it := range items {
		ts, err := parseDataTime(it.DataTime, loc)
		if err != nil {
			return nil, err
		}
		key := slot{day: intake.DateOf(ts), hour: ts.Hour()}
		conc := out[key.day]

		fine, ok, err := parseValue(it.PM10Value)
		if err != nil {
			return nil, fmt.Errorf("pm10Value at %s: %w", it.DataTime, err)
		}
		if _, dup := seenFine[key]; ok && !dup {
			seenFine[key] = struct{}{}
			conc.Fine = append(conc.Fine, intake.HourlyValue{Hour: key.hour, Value: fine})
		}

		ultra, ok, err := parseValue(it.PM25Value)
		if err != nil {
			return nil, fmt.Errorf("pm25Value at %s: %w", it.DataTime, err)
		}
		if _, dup := seenUltra[key]; ok && !dup {
			seenUltra[key] = struct{}{}
			conc.Ultrafine = append(conc.Ultrafine, intake.HourlyValue{Hour: key.hour, Value: ultra})
		}
		out[key.day] = conc
	}

	for day, conc := range out {
		sortHourly(conc.Fine)
		sortHourly(conc.Ultrafine)
		out[day] = conc
	}
	return out, nil
}

// parseDataTime reads "YYYY-MM-DD HH:MM". AirKorea reports midnight as hour
// 24 of the previous day.
func parseDataTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, " 24:00") {
		ts, err := time.ParseInLocation(dataTimeLayout, strings.TrimSuffix(value, "24:00")+"00:00", loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid dataTime %q: %w", value, err)
		}
		return ts.AddDate(0, 0, 1), nil
	}
	ts, err := time.ParseInLocation(dataTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dataTime %q: %w", value, err)
	}
	return ts, nil
}

func parseValue(value string) (float64, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "-" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func sortHourly(values []intake.HourlyValue) {
	sort.Slice(values, func(i, j int) bool { return values[i].Hour < values[j].Hour })
}

var _ intake.PollutionSource = (*Client)(nil)
