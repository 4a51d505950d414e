// Package config loads application configuration from an optional .env
// file, an optional YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/robby3000/luxicle/cache"
	"github.com/robby3000/luxicle/internal/auth"
)

const devJWTSecret = "luxicle-dev-secret-change-me-in-production"

type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Port     string `mapstructure:"PORT"`

	// DatabaseDriver is "postgres" or "sqlite".
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	JWTSecret                string        `mapstructure:"JWT_SECRET"`
	AccessTTL                time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTTL               time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	RequireEmailConfirmation bool          `mapstructure:"REQUIRE_EMAIL_CONFIRMATION"`
	SiteURL                  string        `mapstructure:"SITE_URL"`
	AllowedOrigins           string        `mapstructure:"ALLOWED_ORIGINS"`
	SecureCookies            bool          `mapstructure:"SECURE_COOKIES"`

	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`

	// StorageBackend is "gcs" or "memory".
	StorageBackend    string `mapstructure:"STORAGE_BACKEND"`
	StorageBucket     string `mapstructure:"STORAGE_BUCKET"`
	StoragePublicBase string `mapstructure:"STORAGE_PUBLIC_BASE"`
	// StorageEndpoint points the GCS client at an emulator when set.
	StorageEndpoint string `mapstructure:"STORAGE_ENDPOINT"`

	AllowSelfFollow bool `mapstructure:"ALLOW_SELF_FOLLOW"`

	CacheCapacity        int           `mapstructure:"CACHE_CAPACITY"`
	CacheShards          int           `mapstructure:"CACHE_SHARDS"`
	CacheTTL             time.Duration `mapstructure:"CACHE_TTL"`
	CacheListStaleTime   time.Duration `mapstructure:"CACHE_LIST_STALE_TIME"`
	CacheDetailStaleTime time.Duration `mapstructure:"CACHE_DETAIL_STALE_TIME"`
	CacheReadRetries     int           `mapstructure:"CACHE_READ_RETRIES"`
}

func setDefaults(v *viper.Viper) {
	cc := cache.DefaultConfig()
	ac := auth.DefaultConfig()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "file:luxicle.db?cache=shared&_foreign_keys=on")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("ACCESS_TOKEN_TTL", ac.AccessTTL)
	v.SetDefault("REFRESH_TOKEN_TTL", ac.RefreshTTL)
	v.SetDefault("REQUIRE_EMAIL_CONFIRMATION", false)
	v.SetDefault("SITE_URL", ac.SiteURL)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("SECURE_COOKIES", false)
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("STORAGE_BUCKET", "user-content")
	v.SetDefault("STORAGE_PUBLIC_BASE", "")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("ALLOW_SELF_FOLLOW", false)
	v.SetDefault("CACHE_CAPACITY", cc.Capacity)
	v.SetDefault("CACHE_SHARDS", cc.NumShards)
	v.SetDefault("CACHE_TTL", cc.TTL)
	v.SetDefault("CACHE_LIST_STALE_TIME", cc.ListStaleTime)
	v.SetDefault("CACHE_DETAIL_STALE_TIME", cc.DetailStaleTime)
	v.SetDefault("CACHE_READ_RETRIES", cc.ReadRetries)
}

// Load reads .env (if present), then the YAML file at path (optional; when
// empty, config.yml is looked up in the working directory), then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In("postgres", "sqlite")),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.RedisURL, validation.Required),
		validation.Field(&c.JWTSecret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.SiteURL, validation.Required, is.URL),
		validation.Field(&c.StorageBackend, validation.Required, validation.In("gcs", "memory")),
		validation.Field(&c.StorageBucket, validation.Required),
		validation.Field(&c.CacheReadRetries, validation.Min(0)),
	)
	if err != nil {
		return err
	}

	if c.IsProduction() {
		if c.JWTSecret == devJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if c.DatabaseDriver != "postgres" {
			return errors.New("DATABASE_DRIVER must be postgres in production")
		}
		if c.StorageBackend != "gcs" {
			return errors.New("STORAGE_BACKEND must be gcs in production")
		}
	}

	if err := c.CacheConfig().Validate(); err != nil {
		return err
	}
	return c.AuthConfig().Validate()
}

func (c Config) CacheConfig() cache.Config {
	cc := cache.DefaultConfig()
	cc.Capacity = c.CacheCapacity
	cc.NumShards = c.CacheShards
	cc.TTL = c.CacheTTL
	cc.ListStaleTime = c.CacheListStaleTime
	cc.DetailStaleTime = c.CacheDetailStaleTime
	cc.ReadRetries = c.CacheReadRetries
	return cc
}

func (c Config) AuthConfig() auth.Config {
	ac := auth.DefaultConfig()
	ac.JWTSecret = c.JWTSecret
	ac.AccessTTL = c.AccessTTL
	ac.RefreshTTL = c.RefreshTTL
	ac.RequireEmailConfirmation = c.RequireEmailConfirmation
	ac.SiteURL = strings.TrimRight(c.SiteURL, "/")
	return ac
}

// OAuthRedirectURL is the callback registered with every provider.
func (c Config) OAuthRedirectURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/auth/callback"
}
