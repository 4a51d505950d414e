// Package di wires the application together from a loaded configuration.
package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/cenkalti/backoff/v5"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/robby3000/luxicle/cache"
	"github.com/robby3000/luxicle/internal/auth"
	"github.com/robby3000/luxicle/internal/config"
	"github.com/robby3000/luxicle/internal/observability"
	"github.com/robby3000/luxicle/internal/server"
	"github.com/robby3000/luxicle/internal/session"
	"github.com/robby3000/luxicle/internal/storage"
	"github.com/robby3000/luxicle/internal/store"
	"github.com/robby3000/luxicle/repositorycache"
)

// connectTimeout bounds the startup retries against the database and Redis.
const connectTimeout = 30 * time.Second

// Container owns every long-lived component. Build it once at startup and
// Close it on shutdown.
type Container struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	registry *prometheus.Registry

	db      *bun.DB
	rdb     *redis.Client
	bucket  storage.Bucket
	mailer  auth.Mailer
	store   *store.Store
	cache   *cache.QueryCache
	data    *repositorycache.Store
	auth    *auth.Service
	uploads *storage.Uploader
	server  *server.Server
	tokens  auth.TokenStore
	client  *auth.LocalClient
	session *session.Store

	closers []func() error
}

type Option func(*Container)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Container) {
		if log != nil {
			c.log = log
		}
	}
}

// WithDB uses db instead of opening DATABASE_URL. The caller keeps ownership.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithRedis uses rdb instead of dialing REDIS_URL. The caller keeps ownership.
func WithRedis(rdb *redis.Client) Option {
	return func(c *Container) {
		c.rdb = rdb
	}
}

// WithBucket overrides the bucket chosen by STORAGE_BACKEND.
func WithBucket(b storage.Bucket) Option {
	return func(c *Container) {
		c.bucket = b
	}
}

// WithMailer replaces the log mailer.
func WithMailer(m auth.Mailer) Option {
	return func(c *Container) {
		c.mailer = m
	}
}

// WithTokenStore keeps the session's tokens in ts. Defaults to memory.
func WithTokenStore(ts auth.TokenStore) Option {
	return func(c *Container) {
		c.tokens = ts
	}
}

func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("di: nil config")
	}
	c := &Container{
		cfg:      cfg,
		log:      zap.NewNop().Sugar(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.build(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg := c.cfg
	if c.db == nil {
		db, err := OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		c.db = db
		c.closers = append(c.closers, db.Close)
	}
	c.store = store.New(c.db,
		store.WithLogger(c.log.Named("store")),
		store.WithAllowSelfFollow(cfg.AllowSelfFollow),
	)

	qc, err := cache.New(cfg.CacheConfig(),
		cache.WithLogger(c.log.Named("cache")),
		cache.WithRecorder(observability.NewCacheMetrics(c.registry)),
	)
	if err != nil {
		return fmt.Errorf("query cache: %w", err)
	}
	c.cache = qc
	c.data = repositorycache.New(c.store, qc, repositorycache.WithLogger(c.log.Named("repositorycache")))

	if c.rdb == nil {
		rdb, err := OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		c.rdb = rdb
		c.closers = append(c.closers, rdb.Close)
	}

	if c.mailer == nil {
		c.mailer = auth.NewLogMailer(c.log.Named("mailer"))
	}
	authOpts := []auth.Option{
		auth.WithLogger(c.log.Named("auth")),
		auth.WithMailer(c.mailer),
	}
	if cfg.GitHubClientID != "" {
		authOpts = append(authOpts, auth.WithProvider(auth.GitHub(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.OAuthRedirectURL())))
	}
	if cfg.GoogleClientID != "" {
		authOpts = append(authOpts, auth.WithProvider(auth.Google(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL())))
	}
	svc, err := auth.New(cfg.AuthConfig(), c.data.Accounts(), c.rdb, authOpts...)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	c.auth = svc

	if c.tokens == nil {
		c.tokens = auth.NewMemoryTokenStore()
	}
	c.client = auth.NewLocalClient(c.auth, c.tokens, auth.WithClientLogger(c.log.Named("client")))
	c.session = session.New(c.client, session.WithLogger(c.log.Named("session")))
	c.closers = append(c.closers, func() error {
		c.session.Close()
		return nil
	})
	if err := c.session.Start(ctx); err != nil {
		c.log.Warnw("initial session fetch failed", "error", err)
	}

	if c.bucket == nil {
		bucket, err := c.openBucket(ctx)
		if err != nil {
			return err
		}
		c.bucket = bucket
	}
	c.uploads = storage.NewUploader(c.bucket, storage.WithLogger(c.log.Named("storage")))

	scfg := server.DefaultConfig()
	scfg.SiteURL = cfg.SiteURL
	scfg.AllowedOrigins = cfg.AllowedOrigins
	scfg.SecureCookies = cfg.SecureCookies
	scfg.RefreshTTL = cfg.RefreshTTL
	prom := fiberprometheus.NewWithRegistry(c.registry, "luxicle", "http", "", nil)
	c.server = server.New(scfg, c.auth, c.data, c.uploads,
		server.WithLogger(c.log.Named("http")),
		server.WithMetrics(prom),
	)

	c.log.Infow("container ready",
		"env", cfg.Env,
		"database", cfg.DatabaseDriver,
		"storage", c.bucket.Name(),
		"oauth_providers", c.auth.Providers(),
		"session", c.session.State().Status,
	)
	return nil
}

func (c *Container) openBucket(ctx context.Context) (storage.Bucket, error) {
	cfg := c.cfg
	if cfg.StorageBackend != "gcs" {
		return storage.NewMemoryBucket(cfg.StorageBucket, cfg.StoragePublicBase), nil
	}

	var opts []option.ClientOption
	if cfg.StorageEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.StorageEndpoint), option.WithoutAuthentication())
	}
	bucket, err := storage.NewGCSBucket(ctx, cfg.StorageBucket, cfg.StoragePublicBase, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs bucket %s: %w", cfg.StorageBucket, err)
	}
	c.closers = append(c.closers, bucket.Close)
	return bucket, nil
}

// OpenDB opens and pings a bun database for driver "postgres" or "sqlite",
// retrying the ping while the server comes up.
func OpenDB(ctx context.Context, driver, dsn string) (*bun.DB, error) {
	var db *bun.DB
	switch driver {
	case "postgres":
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqldb.SetMaxOpenConns(25)
		sqldb.SetMaxIdleConns(5)
		sqldb.SetConnMaxLifetime(30 * time.Minute)
		db = bun.NewDB(sqldb, pgdialect.New())
	case "sqlite":
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	ping := func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	}
	if _, err := backoff.Retry(ctx, ping, backoff.WithMaxElapsedTime(connectTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// OpenRedis parses a redis:// URL and pings the server, retrying while it comes up.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ping := func() (string, error) {
		return rdb.Ping(ctx).Result()
	}
	if _, err := backoff.Retry(ctx, ping, backoff.WithMaxElapsedTime(connectTimeout)); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (c *Container) Config() *config.Config {
	return c.cfg
}

func (c *Container) Logger() *zap.SugaredLogger {
	return c.log
}

func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Container) DB() *bun.DB {
	return c.db
}

func (c *Container) Redis() *redis.Client {
	return c.rdb
}

func (c *Container) Store() *store.Store {
	return c.store
}

func (c *Container) QueryCache() *cache.QueryCache {
	return c.cache
}

func (c *Container) Data() *repositorycache.Store {
	return c.data
}

func (c *Container) Auth() *auth.Service {
	return c.auth
}

// Client is the in-process auth client behind Session.
func (c *Container) Client() *auth.LocalClient {
	return c.client
}

// Session is the auth state for this process, started at build and closed with the container.
func (c *Container) Session() *session.Store {
	return c.session
}

func (c *Container) Bucket() storage.Bucket {
	return c.bucket
}

func (c *Container) Uploader() *storage.Uploader {
	return c.uploads
}

func (c *Container) Server() *server.Server {
	return c.server
}

// Close releases what the container opened itself, last opened first.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
