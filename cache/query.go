package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/robby3000/luxicle/internal/apperr"
)

// QueryCache maps keys to the latest successful fetch result, coalesces
// concurrent fetches and tracks staleness. It owns every write to its
// CacheService: reads store on resolve, mutations go through Seed, Merge,
// Invalidate and Remove.
type QueryCache struct {
	backend  CacheService
	cfg      Config
	group    singleflight.Group
	log      *zap.SugaredLogger
	recorder Recorder
	now      func() time.Time

	// mu serializes writes to backend and guards inflight.
	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	invalidated bool
	// superseded is set when a mutation wrote the key while the fetch ran.
	superseded bool
}

// Option configures a QueryCache.
type Option func(*QueryCache)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(q *QueryCache) {
		if log != nil {
			q.log = log
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(q *QueryCache) {
		if r != nil {
			q.recorder = r
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(q *QueryCache) {
		if now != nil {
			q.now = now
		}
	}
}

// New builds a QueryCache on the default sturdyc entry store.
func New(cfg Config, opts ...Option) (*QueryCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := NewCacheService(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithService(backend, cfg, opts...), nil
}

// NewWithService builds a QueryCache on a caller-supplied entry store.
func NewWithService(backend CacheService, cfg Config, opts ...Option) *QueryCache {
	q := &QueryCache{
		backend:  backend,
		cfg:      cfg,
		log:      zap.NewNop().Sugar(),
		recorder: nopRecorder{},
		now:      time.Now,
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ReadOption adjusts a single Read.
type ReadOption func(*readOptions)

type readOptions struct {
	enabled    bool
	staleTime  time.Duration
	retries    int
	background bool
}

// Enabled gates the read. A disabled read returns ErrDisabled without fetching
// and without serving cached data.
func Enabled(enabled bool) ReadOption {
	return func(o *readOptions) { o.enabled = enabled }
}

// StaleTime overrides the per-scope staleness window.
func StaleTime(d time.Duration) ReadOption {
	return func(o *readOptions) { o.staleTime = d }
}

// Retries overrides the configured retry count for this read.
func Retries(n int) ReadOption {
	return func(o *readOptions) { o.retries = n }
}

// RefreshInBackground serves a time-stale value immediately and refetches it
// asynchronously. Entries marked stale by Invalidate are always refetched inline.
func RefreshInBackground() ReadOption {
	return func(o *readOptions) { o.background = true }
}

func (q *QueryCache) resolve(key Key, opts []ReadOption) readOptions {
	o := readOptions{
		enabled:   true,
		staleTime: q.cfg.staleTimeFor(key),
		retries:   q.cfg.ReadRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (q *QueryCache) fresh(e *Entry, staleTime time.Duration) bool {
	return !e.Stale && q.now().Sub(e.FetchedAt) < staleTime
}

func (q *QueryCache) read(ctx context.Context, key Key, fetch func(context.Context) (any, error), opts ...ReadOption) (any, error) {
	o := q.resolve(key, opts)
	if !o.enabled {
		return nil, ErrDisabled
	}

	ks := key.String()
	if e, ok := q.backend.Get(ctx, ks); ok {
		if q.fresh(e, o.staleTime) {
			q.recorder.Hit(key.Entity)
			return e.Value, nil
		}
		if !e.Stale && o.background {
			q.recorder.Hit(key.Entity)
			q.refreshAsync(ctx, key, ks, fetch, o)
			return e.Value, nil
		}
	}

	q.recorder.Miss(key.Entity)

	// The fetch outlives any single caller: others may be waiting on it.
	detached := context.WithoutCancel(ctx)
	v, err, _ := q.group.Do(ks, func() (any, error) {
		if e, ok := q.backend.Get(detached, ks); ok && q.fresh(e, o.staleTime) {
			return e.Value, nil
		}
		return q.fetch(detached, key, ks, fetch, o)
	})
	return v, err
}

func (q *QueryCache) refreshAsync(ctx context.Context, key Key, ks string, fetch func(context.Context) (any, error), o readOptions) {
	detached := context.WithoutCancel(ctx)
	q.group.DoChan(ks, func() (any, error) {
		return q.fetch(detached, key, ks, fetch, o)
	})
}

func (q *QueryCache) fetch(ctx context.Context, key Key, ks string, fetch func(context.Context) (any, error), o readOptions) (any, error) {
	q.mu.Lock()
	fl := &flight{}
	q.inflight[ks] = fl
	q.mu.Unlock()

	v, err := q.withRetry(ctx, fetch, o.retries)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight[ks] == fl {
		delete(q.inflight, ks)
	}

	if err != nil {
		q.recorder.FetchError(key.Entity)
		q.log.Warnw("cache fetch failed", "key", ks, "error", err)
		return nil, err
	}

	if fl.superseded {
		return v, nil
	}

	entry := &Entry{Value: v, FetchedAt: q.now(), Stale: fl.invalidated}
	if setErr := q.backend.Set(ctx, ks, entry); setErr != nil {
		q.log.Errorw("cache store failed", "key", ks, "error", setErr)
	}
	return v, nil
}

func (q *QueryCache) withRetry(ctx context.Context, fetch func(context.Context) (any, error), retries int) (any, error) {
	if retries <= 0 {
		return fetch(ctx)
	}

	b := backoff.NewExponentialBackOff()
	if q.cfg.RetryBaseDelay > 0 {
		b.InitialInterval = q.cfg.RetryBaseDelay
	}

	op := func() (any, error) {
		v, err := fetch(ctx)
		if err != nil && !shouldRetry(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(uint(retries+1)))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, err
	}
	return v, nil
}

// shouldRetry retries store and transport failures and any error the
// application did not classify. Caller mistakes are never retried.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrDisabled) {
		return false
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return apperr.Retryable(err)
	}
	return true
}

// Invalidate marks every entry under the given prefixes stale without
// removing it, so the next Read refetches. Fetches already in flight for a
// matching key store their result as stale. It returns the number of entries marked.
func (q *QueryCache) Invalidate(ctx context.Context, prefixes ...Prefix) int {
	if len(prefixes) == 0 {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for ks, fl := range q.inflight {
		if matchesAny(prefixes, ks) {
			fl.invalidated = true
		}
	}

	marked := 0
	for _, ks := range q.backend.Keys(ctx) {
		if !matchesAny(prefixes, ks) {
			continue
		}
		e, ok := q.backend.Get(ctx, ks)
		if !ok || e.Stale {
			continue
		}
		stale := *e
		stale.Stale = true
		if err := q.backend.Set(ctx, ks, &stale); err != nil {
			q.log.Errorw("cache invalidate failed", "key", ks, "error", err)
			continue
		}
		marked++
	}

	q.log.Debugw("cache invalidated", "prefixes", prefixes, "marked", marked)
	return marked
}

// Remove drops the entries for the given keys.
func (q *QueryCache) Remove(ctx context.Context, keys ...Key) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, k := range keys {
		ks := k.String()
		if fl, ok := q.inflight[ks]; ok {
			fl.invalidated = true
		}
		if err := q.backend.Delete(ctx, ks); err != nil {
			q.log.Errorw("cache remove failed", "key", ks, "error", err)
		}
	}
}

// IsStale reports whether a Read of key would refetch. Missing keys are stale.
func (q *QueryCache) IsStale(ctx context.Context, key Key) bool {
	e, ok := q.backend.Get(ctx, key.String())
	if !ok {
		return true
	}
	return !q.fresh(e, q.cfg.staleTimeFor(key))
}

func (q *QueryCache) seed(ctx context.Context, key Key, value any) {
	q.update(ctx, key, func(any, bool) any { return value })
}

func (q *QueryCache) update(ctx context.Context, key Key, fn func(prev any, ok bool) any) {
	ks := key.String()

	q.mu.Lock()
	defer q.mu.Unlock()

	var prev any
	e, ok := q.backend.Get(ctx, ks)
	if ok {
		prev = e.Value
	}

	// A fetch started before this write may carry older data.
	if fl, inFlight := q.inflight[ks]; inFlight {
		fl.superseded = true
	}

	entry := &Entry{Value: fn(prev, ok), FetchedAt: q.now()}
	if err := q.backend.Set(ctx, ks, entry); err != nil {
		q.log.Errorw("cache write failed", "key", ks, "error", err)
	}
}

func matchesAny(prefixes []Prefix, key string) bool {
	for _, p := range prefixes {
		if p.Matches(key) {
			return true
		}
	}
	return false
}
