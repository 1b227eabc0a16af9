package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Intake    IntakeConfig    `yaml:"intake"`
	Activity  ActivityConfig  `yaml:"activity"`
	AirKorea  AirKoreaConfig  `yaml:"airKorea"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	AllowOrigins []string        `yaml:"allowOrigins"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
	Retry        RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures retries of idempotent writes that fail with 5xx.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// AuthConfig holds the bearer token secret. An empty secret disables auth.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// IntakeConfig tunes dose aggregation.
type IntakeConfig struct {
	Timezone        string  `yaml:"timezone"`
	WeekDays        int     `yaml:"weekDays"`
	MaxRangeDays    int     `yaml:"maxRangeDays"`
	HistoryDays     int     `yaml:"historyDays"`
	DoseCoefficient float64 `yaml:"doseCoefficient"`
	RetryCount      int     `yaml:"retryCount"`
}

// ActivityConfig bounds motion sample uploads.
type ActivityConfig struct {
	MaxBatchSize      int           `yaml:"maxBatchSize"`
	FutureLeeway      time.Duration `yaml:"futureLeeway"`
	DefaultAuthorized bool          `yaml:"defaultAuthorized"`
}

// AirKoreaConfig points at the air quality API.
type AirKoreaConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	ServiceKey  string        `yaml:"serviceKey"`
	StationName string        `yaml:"stationName"`
	NumOfRows   int           `yaml:"numOfRows"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// ValkeyConfig contains connection information for cache storage.
type ValkeyConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Prefix   string        `yaml:"prefix"`
	TodayTTL time.Duration `yaml:"todayTtl"`
}

// SchedulerConfig controls the weekly cache warm-up job.
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// Load reads configuration from .env, a YAML file and environment variables.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	if v := os.Getenv("HTTP_ALLOW_ORIGINS"); v != "" {
		cfg.HTTP.AllowOrigins = splitList(v)
	}
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")
	setBool(&cfg.HTTP.Retry.Enabled, "HTTP_RETRY_ENABLED")
	setInt(&cfg.HTTP.Retry.MaxAttempts, "HTTP_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.HTTP.Retry.BaseBackoff, "HTTP_RETRY_BASE_BACKOFF")

	setString(&cfg.Auth.Secret, "AUTH_SECRET")

	setString(&cfg.Intake.Timezone, "INTAKE_TIMEZONE")
	setInt(&cfg.Intake.WeekDays, "INTAKE_WEEK_DAYS")
	setInt(&cfg.Intake.MaxRangeDays, "INTAKE_MAX_RANGE_DAYS")
	setInt(&cfg.Intake.HistoryDays, "INTAKE_HISTORY_DAYS")
	setInt(&cfg.Intake.RetryCount, "INTAKE_RETRY_COUNT")
	if v := os.Getenv("INTAKE_DOSE_COEFFICIENT"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Intake.DoseCoefficient = parsed
		}
	}

	setInt(&cfg.Activity.MaxBatchSize, "ACTIVITY_MAX_BATCH_SIZE")
	setBool(&cfg.Activity.DefaultAuthorized, "ACTIVITY_DEFAULT_AUTHORIZED")

	setString(&cfg.AirKorea.BaseURL, "AIRKOREA_BASE_URL")
	setString(&cfg.AirKorea.ServiceKey, "AIRKOREA_SERVICE_KEY")
	setString(&cfg.AirKorea.StationName, "AIRKOREA_STATION_NAME")
	setInt(&cfg.AirKorea.NumOfRows, "AIRKOREA_NUM_OF_ROWS")
	setDuration(&cfg.AirKorea.Timeout, "AIRKOREA_TIMEOUT")

	setString(&cfg.Postgres.DSN, "POSTGRES_DSN")
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MinConns = int32(parsed)
		}
	}

	setBool(&cfg.Valkey.Enabled, "VALKEY_ENABLED")
	setString(&cfg.Valkey.Addr, "VALKEY_ADDR")
	setString(&cfg.Valkey.Prefix, "VALKEY_PREFIX")
	setDuration(&cfg.Valkey.TodayTTL, "VALKEY_TODAY_TTL")

	setBool(&cfg.Scheduler.Enabled, "SCHEDULER_ENABLED")
	setString(&cfg.Scheduler.Cron, "SCHEDULER_CRON")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
			},
		},
		Intake: IntakeConfig{
			Timezone:        "Asia/Seoul",
			WeekDays:        6,
			MaxRangeDays:    31,
			HistoryDays:     30,
			DoseCoefficient: 1,
			RetryCount:      2,
		},
		Activity: ActivityConfig{
			MaxBatchSize: 24 * 31,
			FutureLeeway: time.Hour,
		},
		AirKorea: AirKoreaConfig{
			BaseURL:     "http://apis.data.go.kr/B552584/ArpltnInforInqireSvc",
			StationName: "종로구",
			NumOfRows:   24 * 31,
			Timeout:     10 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
		},
		Valkey: ValkeyConfig{
			Prefix:   "finedust",
			TodayTTL: 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Cron:    "0 6 * * *",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if strings.TrimSpace(c.Intake.Timezone) == "" {
		return errors.New("intake.timezone cannot be empty")
	}
	if c.Intake.WeekDays <= 0 {
		return errors.New("intake.weekDays must be positive")
	}
	if c.Intake.MaxRangeDays < c.Intake.WeekDays {
		return errors.New("intake.maxRangeDays must cover intake.weekDays")
	}
	if c.Intake.HistoryDays < c.Intake.WeekDays {
		return errors.New("intake.historyDays must cover intake.weekDays")
	}
	if c.Intake.DoseCoefficient <= 0 {
		return errors.New("intake.doseCoefficient must be positive")
	}
	if c.Intake.RetryCount < 0 {
		return errors.New("intake.retryCount cannot be negative")
	}
	if c.Activity.MaxBatchSize <= 0 {
		return errors.New("activity.maxBatchSize must be positive")
	}
	if c.Activity.FutureLeeway < 0 {
		return errors.New("activity.futureLeeway cannot be negative")
	}
	if strings.TrimSpace(c.AirKorea.BaseURL) == "" {
		return errors.New("airKorea.baseUrl cannot be empty")
	}
	if strings.TrimSpace(c.AirKorea.StationName) == "" {
		return errors.New("airKorea.stationName cannot be empty")
	}
	if c.AirKorea.NumOfRows <= 0 {
		return errors.New("airKorea.numOfRows must be positive")
	}
	if c.Postgres.MaxConns < 0 || c.Postgres.MinConns < 0 {
		return errors.New("postgres pool sizes cannot be negative")
	}
	if c.Valkey.Enabled && strings.TrimSpace(c.Valkey.Addr) == "" {
		return errors.New("valkey.addr cannot be empty when valkey is enabled")
	}
	if c.Valkey.TodayTTL < 0 {
		return errors.New("valkey.todayTtl cannot be negative")
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.Cron) == "" {
		return errors.New("scheduler.cron cannot be empty when the scheduler is enabled")
	}
	return nil
}
