package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	ListenAddr string
	Debug     bool

	// Storage.
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseDSN    string
	RedisAddr      string // empty disables redis-backed stores
	RedisPassword  string

	// Session subsystem. The original design hardcoded 30s for both the idle
	// timeout and the lockout window; they are demo-scale values, kept as
	// defaults but overridable.
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration
	LoginMaxAttempts     int
	LoginLockoutWindow   time.Duration
	CookieSecure         bool

	// Uploads and static assets.
	UploadDir       string
	UploadMaxBytes  int64
	PublicDir       string

	// Server lifecycle.
	ReadHeaderTimeout        time.Duration
	ShutdownTimeout          time.Duration
	ShutdownHTTPDrainTimeout time.Duration

	// Observability.
	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
}

// Load reads configuration from the environment, after merging an optional
// .env file (existing environment variables win).
func Load() (*Config, error) {
	return LoadWithEnvFile(".env")
}

func LoadWithEnvFile(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		Env:        getEnv("APP_ENV", "development"),
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		Debug:      getBool("DEBUG", false),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "file:tradepost.db?cache=shared"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),

		SessionIdleTimeout:   getDuration("SESSION_IDLE_TIMEOUT", 30*time.Second),
		SessionSweepInterval: getDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		LoginMaxAttempts:     getInt("LOGIN_MAX_ATTEMPTS", 3),
		LoginLockoutWindow:   getDuration("LOGIN_LOCKOUT_WINDOW", 30*time.Second),
		CookieSecure:         getBool("COOKIE_SECURE", true),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		UploadMaxBytes: getInt64("UPLOAD_MAX_BYTES", 100<<20),
		PublicDir:      getEnv("PUBLIC_DIR", "public"),

		ReadHeaderTimeout:        getDuration("READ_HEADER_TIMEOUT", 5*time.Second),
		ShutdownTimeout:          getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		ShutdownHTTPDrainTimeout: getDuration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 10*time.Second),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "tradepost"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getBool("OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:         getBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           getBool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: getDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Env, "invalid", classifyConfigLoadError(err))
		return nil, fmt.Errorf("validate config: %w", err)
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "valid", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN must not be empty")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.LoginMaxAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be at least 1")
	}
	if c.LoginLockoutWindow <= 0 {
		return fmt.Errorf("LOGIN_LOCKOUT_WINDOW must be positive")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}
