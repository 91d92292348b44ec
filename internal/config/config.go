package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	CacheBackendMemory   = "memory"
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	AnalysisBaseURL        string        `mapstructure:"ANALYSIS_BASE_URL"`
	AnalysisRequestTimeout time.Duration `mapstructure:"ANALYSIS_REQUEST_TIMEOUT"`
	PollMaxAttempts        int           `mapstructure:"POLL_MAX_ATTEMPTS"`
	PollInterval           time.Duration `mapstructure:"POLL_INTERVAL"`

	DraftDebounce   time.Duration `mapstructure:"DRAFT_DEBOUNCE"`
	DraftTTL        time.Duration `mapstructure:"DRAFT_TTL"`
	AnalysisTTL     time.Duration `mapstructure:"ANALYSIS_TTL"`
	HistoryPageSize int           `mapstructure:"HISTORY_PAGE_SIZE"`

	CacheBackend    string `mapstructure:"CACHE_BACKEND"`
	CacheMaxEntries int    `mapstructure:"CACHE_MAX_ENTRIES"`
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL        string `mapstructure:"REDIS_URL"`

	ServiceTokenSecret   string `mapstructure:"SERVICE_TOKEN_SECRET"`
	ServiceTokenIssuer   string `mapstructure:"SERVICE_TOKEN_ISSUER"`
	ServiceTokenAudience string `mapstructure:"SERVICE_TOKEN_AUDIENCE"`

	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"ANALYSIS_BASE_URL", "ANALYSIS_REQUEST_TIMEOUT", "POLL_MAX_ATTEMPTS", "POLL_INTERVAL",
	"DRAFT_DEBOUNCE", "DRAFT_TTL", "ANALYSIS_TTL", "HISTORY_PAGE_SIZE",
	"CACHE_BACKEND", "CACHE_MAX_ENTRIES", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"SERVICE_TOKEN_SECRET", "SERVICE_TOKEN_ISSUER", "SERVICE_TOKEN_AUDIENCE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ANALYSIS_BASE_URL", "http://localhost:8090")
	v.SetDefault("ANALYSIS_REQUEST_TIMEOUT", "15s")
	v.SetDefault("POLL_MAX_ATTEMPTS", 30)
	v.SetDefault("POLL_INTERVAL", "2s")
	v.SetDefault("DRAFT_DEBOUNCE", "2s")
	v.SetDefault("DRAFT_TTL", "1h")
	v.SetDefault("ANALYSIS_TTL", "24h")
	v.SetDefault("HISTORY_PAGE_SIZE", 10)
	v.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("CACHE_MAX_ENTRIES", 500)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SERVICE_TOKEN_ISSUER", "caseflow")
	v.SetDefault("SERVICE_TOKEN_AUDIENCE", "diagnostics")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks cross-field constraints. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error

	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when CACHE_BACKEND is postgres"))
		}
	case CacheBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when CACHE_BACKEND is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be memory, postgres or redis, got %q", c.CacheBackend))
	}

	if c.AnalysisBaseURL == "" {
		errs = append(errs, errors.New("ANALYSIS_BASE_URL is required"))
	}
	if c.PollMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1, got %d", c.PollMaxAttempts))
	}
	if c.HistoryPageSize < 1 {
		errs = append(errs, fmt.Errorf("HISTORY_PAGE_SIZE must be at least 1, got %d", c.HistoryPageSize))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"ANALYSIS_REQUEST_TIMEOUT", c.AnalysisRequestTimeout},
		{"POLL_INTERVAL", c.PollInterval},
		{"DRAFT_DEBOUNCE", c.DraftDebounce},
		{"DRAFT_TTL", c.DraftTTL},
		{"ANALYSIS_TTL", c.AnalysisTTL},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.d))
		}
	}

	if c.IsProduction() {
		if c.AuthSigningKey == "" {
			errs = append(errs, errors.New("AUTH_SIGNING_KEY is required in production"))
		}
		if c.ServiceTokenSecret == "" {
			errs = append(errs, errors.New("SERVICE_TOKEN_SECRET is required in production"))
		}
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			errs = append(errs, errors.New("TLS_CERT_FILE is required when TLS_ENABLED is true"))
		}
		if c.TLSKeyFile == "" {
			errs = append(errs, errors.New("TLS_KEY_FILE is required when TLS_ENABLED is true"))
		}
	}

	return errors.Join(errs...)
}
