package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "user-content", cfg.StorageBucket)
	assert.Equal(t, 2*time.Minute, cfg.CacheConfig().ListStaleTime)
	assert.Equal(t, 10*time.Minute, cfg.CacheConfig().DetailStaleTime)
	assert.Equal(t, 1, cfg.CacheConfig().ReadRetries)
	assert.Equal(t, "http://localhost:3000/auth/callback", cfg.OAuthRedirectURL())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DRIVER", " Postgres ")
	t.Setenv("DATABASE_URL", "postgres://luxicle@localhost/luxicle?sslmode=disable")
	t.Setenv("CACHE_LIST_STALE_TIME", "30s")
	t.Setenv("REQUIRE_EMAIL_CONFIRMATION", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheConfig().ListStaleTime)
	assert.True(t, cfg.AuthConfig().RequireEmailConfirmation)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luxicle.yml")
	body := "PORT: \"7070\"\nSITE_URL: https://luxicle.example.com/\nALLOW_SELF_FOLLOW: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.True(t, cfg.AllowSelfFollow)
	assert.Equal(t, "https://luxicle.example.com", cfg.AuthConfig().SiteURL)
	assert.Equal(t, "https://luxicle.example.com/auth/callback", cfg.OAuthRedirectURL())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Env:                  "development",
			Port:                 "8080",
			DatabaseDriver:       "sqlite",
			DatabaseURL:          ":memory:",
			RedisURL:             "redis://localhost:6379/0",
			JWTSecret:            devJWTSecret,
			AccessTTL:            time.Hour,
			RefreshTTL:           24 * time.Hour,
			SiteURL:              "http://localhost:3000",
			StorageBackend:       "memory",
			StorageBucket:        "user-content",
			CacheCapacity:        1000,
			CacheShards:          4,
			CacheTTL:             time.Hour,
			CacheListStaleTime:   time.Minute,
			CacheDetailStaleTime: time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, true},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, true},
		{"bad port", func(c *Config) { c.Port = "http" }, true},
		{"bad site", func(c *Config) { c.SiteURL = "not a url" }, true},
		{"negative retries", func(c *Config) { c.CacheReadRetries = -1 }, true},
		{"production with dev secret", func(c *Config) {
			c.Env = "production"
			c.DatabaseDriver = "postgres"
			c.StorageBackend = "gcs"
		}, true},
		{"production with sqlite", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "a-real-production-secret-of-enough-length"
			c.StorageBackend = "gcs"
		}, true},
		{"production ready", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "a-real-production-secret-of-enough-length"
			c.DatabaseDriver = "postgres"
			c.StorageBackend = "gcs"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
