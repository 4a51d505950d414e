package cache

import (
	"time"

	"github.com/robby3000/luxicle/internal/cacheinfra"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration

	// ListStaleTime is the staleness window for list-like scopes.
	ListStaleTime time.Duration
	// DetailStaleTime is the staleness window for single-row scopes.
	DetailStaleTime time.Duration
	// ReadRetries is how many times a failed fetch is retried. Mutations never retry.
	ReadRetries    int
	RetryBaseDelay time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	infra := cacheinfra.DefaultConfig()
	return Config{
		Capacity:           infra.Capacity,
		NumShards:          infra.NumShards,
		TTL:                infra.TTL,
		EvictionPercentage: infra.EvictionPercentage,
		EvictionInterval:   infra.EvictionInterval,
		ListStaleTime:      2 * time.Minute,
		DetailStaleTime:    10 * time.Minute,
		ReadRetries:        1,
		RetryBaseDelay:     100 * time.Millisecond,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.toInternal().Validate(); err != nil {
		return err
	}
	if c.ListStaleTime < 0 {
		return &cacheinfra.ConfigError{Field: "ListStaleTime", Message: "must be non-negative"}
	}
	if c.DetailStaleTime < 0 {
		return &cacheinfra.ConfigError{Field: "DetailStaleTime", Message: "must be non-negative"}
	}
	if c.ReadRetries < 0 {
		return &cacheinfra.ConfigError{Field: "ReadRetries", Message: "must be non-negative"}
	}
	if c.RetryBaseDelay < 0 {
		return &cacheinfra.ConfigError{Field: "RetryBaseDelay", Message: "must be non-negative"}
	}
	return nil
}

// NewCacheService constructs the default entry store using the provided configuration.
func NewCacheService(cfg Config) (CacheService, error) {
	svc, err := cacheinfra.NewSturdycService[*Entry](cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func (c Config) staleTimeFor(k Key) time.Duration {
	if k.Scope.IsCollection() {
		return c.ListStaleTime
	}
	return c.DetailStaleTime
}
