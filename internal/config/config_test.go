package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, NotifyLocal, cfg.Notify.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TokenTTL)
	assert.False(t, cfg.Visits.RequireStartBeforeIssue)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.CORS.WebSocketOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CACHE_TOKEN_TTL", "30s")
	t.Setenv("VISITS_REQUIRE_START_BEFORE_ISSUE", "true")
	t.Setenv("PUBLIC_BASE_URL", "https://clinic.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.Cache.TokenTTL)
	assert.True(t, cfg.Visits.RequireStartBeforeIssue)
	assert.Equal(t, "https://clinic.example.com", cfg.Server.PublicBaseURL)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		t.Setenv("JWT_SECRET", "0123456789abcdef0123")
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"bad storage", func(c *Config) { c.Storage.Driver = "mongo" }, true},
		{"bad cache", func(c *Config) { c.Cache.Type = "memcached" }, true},
		{"cache disabled ignores type", func(c *Config) { c.Cache.Enabled = false; c.Cache.Type = "x" }, false},
		{"bad notify", func(c *Config) { c.Notify.Backend = "sns" }, true},
		{"zero queue", func(c *Config) { c.Notify.QueueSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUsesRedis(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Enabled: true, Type: "memory"}, Notify: NotifyConfig{Backend: NotifyLocal}}
	assert.False(t, cfg.UsesRedis())

	cfg.Notify.Backend = NotifyRedis
	assert.True(t, cfg.UsesRedis())

	cfg.Notify.Backend = NotifyLocal
	cfg.Cache.Type = "redis"
	assert.True(t, cfg.UsesRedis())
}
