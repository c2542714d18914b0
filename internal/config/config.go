package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Notification backends
const (
	NotifyLocal = "local"
	NotifyRedis = "redis"
)

// Config holds the full service configuration
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Notify   NotifyConfig
	Auth     AuthConfig
	Log      LogConfig
	CORS     CORSConfig
	Metrics  MetricsConfig
	Visits   VisitsConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PublicBaseURL string
}

type StorageConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type CacheConfig struct {
	Enabled  bool
	Type     string
	TokenTTL time.Duration
}

type NotifyConfig struct {
	Backend       string
	QueueSize     int
	SinkTimeout   time.Duration
	ChannelPrefix string
	KafkaBrokers  []string
	KafkaTopic    string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string

	// WebSocketOrigins are the cross-origin pages allowed to open /ws.
	// Separate from AllowedOrigins because /ws accepts the token in the query.
	WebSocketOrigins []string
}

type MetricsConfig struct {
	Enabled bool
}

type VisitsConfig struct {
	// RequireStartBeforeIssue rejects prescriptions for visits still Waiting.
	RequireStartBeforeIssue bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			Port:          getIntEnv("SERVER_PORT", 8000),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:5173"), "/"),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", StoragePostgres),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getIntEnv("DB_PORT", 5432),
			User:     getEnv("DB_USER", "clinicflow"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "clinicflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getIntEnv("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:  getBoolEnv("CACHE_ENABLED", true),
			Type:     getEnv("CACHE_TYPE", "memory"),
			TokenTTL: getDuration("CACHE_TOKEN_TTL", 5*time.Minute),
		},
		Notify: NotifyConfig{
			Backend:       getEnv("NOTIFY_BACKEND", NotifyLocal),
			QueueSize:     getIntEnv("NOTIFY_QUEUE_SIZE", 1024),
			SinkTimeout:   getDuration("NOTIFY_SINK_TIMEOUT", 2*time.Second),
			ChannelPrefix: getEnv("NOTIFY_CHANNEL_PREFIX", "clinicflow:clinic"),
			KafkaBrokers:  getStringSliceEnv("KAFKA_BROKERS", nil),
			KafkaTopic:    getEnv("KAFKA_TOPIC", "clinicflow.visit-events"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getStringSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getStringSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
			WebSocketOrigins: getStringSliceEnv("WS_ALLOWED_ORIGINS", nil),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("METRICS_ENABLED", true),
		},
		Visits: VisitsConfig{
			RequireStartBeforeIssue: getBoolEnv("VISITS_REQUIRE_START_BEFORE_ISSUE", false),
		},
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}

	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER: %q", c.Storage.Driver)
	}

	if c.Cache.Enabled && c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("unsupported CACHE_TYPE: %q", c.Cache.Type)
	}

	switch c.Notify.Backend {
	case NotifyLocal, NotifyRedis:
	default:
		return fmt.Errorf("unsupported NOTIFY_BACKEND: %q", c.Notify.Backend)
	}
	if c.Notify.QueueSize <= 0 {
		return errors.New("NOTIFY_QUEUE_SIZE must be positive")
	}

	return nil
}

// UsesRedis reports whether any component needs a redis connection
func (c *Config) UsesRedis() bool {
	return (c.Cache.Enabled && c.Cache.Type == "redis") || c.Notify.Backend == NotifyRedis
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
