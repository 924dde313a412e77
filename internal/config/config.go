package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Auth       AuthConfig       `mapstructure:"auth"`
	AI         AIConfig         `mapstructure:"ai"`
	Suggestion SuggestionConfig `mapstructure:"suggestion"`
	Export     ExportConfig     `mapstructure:"export"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins splits the comma separated websocket origin allow-list.
func (a APIConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(a.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port for go-redis and asynq.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig describes how identity provider tokens are verified.
type AuthConfig struct {
	PublicKeyPath  string `mapstructure:"public_key_path"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	Issuer         string `mapstructure:"issuer"`
	Audience       string `mapstructure:"audience"`
}

// AIConfig points at an OpenAI-compatible chat completions endpoint.
type AIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SuggestionConfig tunes the suggestion pipeline.
type SuggestionConfig struct {
	RateLimitPerHour       int           `mapstructure:"rate_limit_per_hour"`
	RequeueAfter           time.Duration `mapstructure:"requeue_after"`
	MaxJobDescriptionBytes int           `mapstructure:"max_job_description_bytes"`
}

// ExportConfig controls headless chromium rendering.
type ExportConfig struct {
	ChromiumBin   string        `mapstructure:"chromium_bin"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	LinkTTL       time.Duration `mapstructure:"link_ttl"`
}

// WorkerConfig contains asynq server settings.
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LogConfig selects slog level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "resumeforge")
	v.SetDefault("database.user", "resumeforge")
	v.SetDefault("database.password", "resumeforge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "resume-exports")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.public_key_path", "keys/idp_public.pem")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", 2*time.Minute)
	v.SetDefault("suggestion.rate_limit_per_hour", 30)
	v.SetDefault("suggestion.requeue_after", 2*time.Minute)
	v.SetDefault("suggestion.max_job_description_bytes", 20000)
	v.SetDefault("export.timeout", 30*time.Second)
	v.SetDefault("export.max_concurrent", 2)
	v.SetDefault("export.link_ttl", 15*time.Minute)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.metrics_addr", ":9091")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                             "API_PORT",
		"api.allowed_origins":                  "API_ALLOWED_ORIGINS",
		"database.host":                        "DATABASE_HOST",
		"database.port":                        "DATABASE_PORT",
		"database.name":                        "POSTGRES_DB",
		"database.user":                        "POSTGRES_USER",
		"database.password":                    "POSTGRES_PASSWORD",
		"database.sslmode":                     "DATABASE_SSLMODE",
		"redis.host":                           "REDIS_HOST",
		"redis.port":                           "REDIS_PORT",
		"minio.endpoint":                       "MINIO_ENDPOINT",
		"minio.public_endpoint":                "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":                  "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":              "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                        "MINIO_USE_SSL",
		"minio.bucket":                         "MINIO_BUCKET",
		"minio.region":                         "MINIO_REGION",
		"minio.bucket_lookup":                  "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":             "MINIO_AUTO_CREATE_BUCKET",
		"auth.public_key_path":                 "AUTH_PUBLIC_KEY_PATH",
		"auth.private_key_path":                "AUTH_PRIVATE_KEY_PATH",
		"auth.issuer":                          "AUTH_ISSUER",
		"auth.audience":                        "AUTH_AUDIENCE",
		"ai.base_url":                          "AI_BASE_URL",
		"ai.api_key":                           "AI_API_KEY",
		"ai.model":                             "AI_MODEL",
		"ai.timeout":                           "AI_TIMEOUT",
		"suggestion.rate_limit_per_hour":       "SUGGESTION_RATE_LIMIT_PER_HOUR",
		"suggestion.requeue_after":             "SUGGESTION_REQUEUE_AFTER",
		"suggestion.max_job_description_bytes": "SUGGESTION_MAX_JOB_DESCRIPTION_BYTES",
		"export.chromium_bin":                  "EXPORT_CHROMIUM_BIN",
		"export.timeout":                       "EXPORT_TIMEOUT",
		"export.max_concurrent":                "EXPORT_MAX_CONCURRENT",
		"export.link_ttl":                      "EXPORT_LINK_TTL",
		"worker.concurrency":                   "WORKER_CONCURRENCY",
		"worker.metrics_addr":                  "WORKER_METRICS_ADDR",
		"log.level":                            "LOG_LEVEL",
		"log.format":                           "LOG_FORMAT",
		"sentry.dsn":                           "SENTRY_DSN",
		"sentry.environment":                   "SENTRY_ENVIRONMENT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.PublicKeyPath == "" {
		return errors.New("auth public key path is required")
	}
	if cfg.AI.BaseURL == "" {
		return errors.New("ai base url is required")
	}
	if cfg.AI.Model == "" {
		return errors.New("ai model is required")
	}
	if cfg.AI.Timeout <= 0 {
		return errors.New("ai timeout must be positive")
	}
	if cfg.Suggestion.RequeueAfter <= 0 {
		return errors.New("suggestion requeue_after must be positive")
	}
	if cfg.Suggestion.MaxJobDescriptionBytes <= 0 {
		return errors.New("suggestion max_job_description_bytes must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
