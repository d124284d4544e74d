package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrFatalConfig marks configuration problems that must abort a run before any
// record is processed.
var ErrFatalConfig = errors.New("fatal configuration error")

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config holds application configuration. It is loaded once and handed to
// each component's constructor.
type Config struct {
	Mode      string
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	RateLimit RateLimitConfig
	Import    ImportConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Validate reports ErrFatalConfig when no connection string was resolved.
func (m MongoDBConfig) Validate() error {
	if m.URI == "" {
		return fmt.Errorf("%w: no MongoDB connection string for this mode", ErrFatalConfig)
	}
	if m.Database == "" {
		return fmt.Errorf("%w: MONGODB_DATABASE is empty", ErrFatalConfig)
	}
	return nil
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type ImportConfig struct {
	Schema       string
	LogDir       string
	Concurrency  int
	PostConflict string
}

// MetricsConfig points batch runs at a Prometheus Pushgateway. Runs are
// short-lived, so their counters are pushed instead of scraped.
type MetricsConfig struct {
	PushgatewayURL string
	Job            string
}

// LoadConfig loads configuration from environment variables and an optional .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_MODE", ModeDevelopment)
	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("MONGODB_DATABASE", "qabase")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("RUN_LOCK_TTL", 900)
	v.SetDefault("MINIO_BUCKET", "qabase-import-logs")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("IMPORT_SCHEMA", "qa")
	v.SetDefault("IMPORT_LOG_DIR", "logs")
	v.SetDefault("IMPORT_CONCURRENCY", 8)
	v.SetDefault("IMPORT_POST_CONFLICT", "last-write-wins")
	v.SetDefault("PUSHGATEWAY_JOB", "qabase")

	mode := strings.ToLower(strings.TrimSpace(v.GetString("APP_MODE")))
	if mode != ModeDevelopment && mode != ModeProduction {
		return nil, fmt.Errorf("%w: APP_MODE must be %q or %q, got %q", ErrFatalConfig, ModeDevelopment, ModeProduction, mode)
	}

	cfg := &Config{
		Mode: mode,
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      mongoURIForMode(v, mode),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			LockTTL:  time.Duration(v.GetInt("RUN_LOCK_TTL")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Import: ImportConfig{
			Schema:       v.GetString("IMPORT_SCHEMA"),
			LogDir:       v.GetString("IMPORT_LOG_DIR"),
			Concurrency:  v.GetInt("IMPORT_CONCURRENCY"),
			PostConflict: v.GetString("IMPORT_POST_CONFLICT"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: strings.TrimSpace(v.GetString("PUSHGATEWAY_URL")),
			Job:            v.GetString("PUSHGATEWAY_JOB"),
		},
	}
	if cfg.Import.Concurrency <= 0 {
		cfg.Import.Concurrency = 1
	}

	return cfg, nil
}

// mongoURIForMode picks the connection string for the deployment mode and
// falls back to MONGODB_URI when the mode-specific one is unset.
func mongoURIForMode(v *viper.Viper, mode string) string {
	key := "MONGODB_URI_DEV"
	if mode == ModeProduction {
		key = "MONGODB_URI_PROD"
	}
	if uri := strings.TrimSpace(v.GetString(key)); uri != "" {
		return uri
	}
	return strings.TrimSpace(v.GetString("MONGODB_URI"))
}
