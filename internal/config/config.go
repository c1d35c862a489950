package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// maxPresignTTL is the longest lifetime a SigV4 presigned URL may have.
const maxPresignTTL = 7 * 24 * time.Hour

// Config holds all configuration for the finetunehub server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Queue    QueueConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           string
	MaxUploadBytes     int64
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// StorageConfig describes the S3-compatible bucket holding job artifacts.
// Endpoint is only set for non-AWS providers such as MinIO.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	URLTTL          time.Duration
}

type QueueConfig struct {
	Backend  string
	Name     string
	Region   string
	Endpoint string
}

var defaults = map[string]string{
	"PORT":                       "3000",
	"ENV":                        "development",
	"LOG_LEVEL":                  "info",
	"MAX_UPLOAD_BYTES":           "33554432",
	"RATE_LIMIT_PER_MINUTE":      "60",
	"DATABASE_MAX_OPEN_CONNS":    "25",
	"DATABASE_MAX_IDLE_CONNS":    "5",
	"DATABASE_CONN_MAX_LIFETIME": "5m",
	"TOKEN_TTL":                  "24h",
	"STORAGE_REGION":             "us-east-1",
	"STORAGE_USE_PATH_STYLE":     "false",
	"ARTIFACT_URL_TTL":           "168h",
	"QUEUE_BACKEND":              "redis",
	"QUEUE_NAME":                 "job_queue",
	"QUEUE_REGION":               "us-east-1",
}

// knownKeys are the only environment variables read into the config.
var knownKeys = map[string]bool{
	"DATABASE_URL":              true,
	"REDIS_URL":                 true,
	"JWT_SECRET":                true,
	"STORAGE_BUCKET":            true,
	"STORAGE_ENDPOINT":          true,
	"STORAGE_ACCESS_KEY_ID":     true,
	"STORAGE_SECRET_ACCESS_KEY": true,
	"QUEUE_ENDPOINT":            true,
}

func init() {
	for k := range defaults {
		knownKeys[k] = true
	}
}

var validQueueBackends = map[string]bool{
	"redis": true,
	"sqs":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load layers defaults, the optional dotenv file at envFile, and the process
// environment (highest precedence), then validates the result.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load(envFile string) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if envFile != "" {
		if err := k.Load(file.Provider(envFile), dotenv.Parser()); err != nil {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	// Empty variables are skipped so they do not mask defaults or the env file.
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if value == "" || !knownKeys[key] {
			return "", nil
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               intValue(k, "PORT"),
			Env:                k.String("ENV"),
			LogLevel:           strings.ToLower(k.String("LOG_LEVEL")),
			MaxUploadBytes:     int64(intValue(k, "MAX_UPLOAD_BYTES")),
			RateLimitPerMinute: intValue(k, "RATE_LIMIT_PER_MINUTE"),
		},
		Database: DatabaseConfig{
			URL:             k.String("DATABASE_URL"),
			MaxOpenConns:    intValue(k, "DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    intValue(k, "DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: durationValue(k, "DATABASE_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			URL: k.String("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: k.String("JWT_SECRET"),
			TokenTTL:  durationValue(k, "TOKEN_TTL"),
		},
		Storage: StorageConfig{
			Bucket:          k.String("STORAGE_BUCKET"),
			Region:          k.String("STORAGE_REGION"),
			Endpoint:        k.String("STORAGE_ENDPOINT"),
			AccessKeyID:     k.String("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: k.String("STORAGE_SECRET_ACCESS_KEY"),
			UsePathStyle:    boolValue(k, "STORAGE_USE_PATH_STYLE"),
			URLTTL:          durationValue(k, "ARTIFACT_URL_TTL"),
		},
		Queue: QueueConfig{
			Backend:  strings.ToLower(k.String("QUEUE_BACKEND")),
			Name:     k.String("QUEUE_NAME"),
			Region:   k.String("QUEUE_REGION"),
			Endpoint: k.String("QUEUE_ENDPOINT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}
	if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
		return fmt.Errorf("STORAGE_ACCESS_KEY_ID and STORAGE_SECRET_ACCESS_KEY must be set together")
	}
	if c.Storage.URLTTL <= 0 || c.Storage.URLTTL > maxPresignTTL {
		return fmt.Errorf("ARTIFACT_URL_TTL must be between 1s and %s, got %s", maxPresignTTL, c.Storage.URLTTL)
	}

	if !validQueueBackends[c.Queue.Backend] {
		return fmt.Errorf("QUEUE_BACKEND must be one of redis, sqs; got %q", c.Queue.Backend)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("QUEUE_NAME must not be empty")
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c ServerConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// intValue parses key, falling back to its default when the value is not a number.
func intValue(k *koanf.Koanf, key string) int {
	if i, err := strconv.Atoi(strings.TrimSpace(k.String(key))); err == nil {
		return i
	}
	i, _ := strconv.Atoi(defaults[key])
	return i
}

func durationValue(k *koanf.Koanf, key string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(k.String(key))); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaults[key])
	return d
}

func boolValue(k *koanf.Koanf, key string) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(k.String(key))); err == nil {
		return b
	}
	b, _ := strconv.ParseBool(defaults[key])
	return b
}
