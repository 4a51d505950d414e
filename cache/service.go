package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDisabled is returned by Read when the read was declared disabled.
	// Nothing was fetched and no cached value was served.
	ErrDisabled = errors.New("cache: read disabled")

	// ErrInvalidResultType is returned when a cached value does not have the type the caller asked for.
	ErrInvalidResultType = errors.New("cache: invalid result type")
)

// KeySerializer builds a cache key from a namespace and arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(namespace string, args ...any) string
}

// FetchFn loads a value from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Entry is what the query cache keeps per key.
type Entry struct {
	Value     any
	FetchedAt time.Time
	Stale     bool
}

// CacheService stores entries by canonical key. The sturdyc adapter in
// internal/cacheinfra is the default implementation.
type CacheService interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) []string
}

// Recorder receives read outcomes per entity.
type Recorder interface {
	Hit(entity Entity)
	Miss(entity Entity)
	FetchError(entity Entity)
}

type nopRecorder struct{}

func (nopRecorder) Hit(Entity)        {}
func (nopRecorder) Miss(Entity)       {}
func (nopRecorder) FetchError(Entity) {}

// Read returns the value cached under key, fetching it when the entry is
// missing or stale. Concurrent reads of the same key share one fetch.
func Read[T any](ctx context.Context, q *QueryCache, key Key, fetch FetchFn[T], opts ...ReadOption) (T, error) {
	result, err := q.read(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		return v, err
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return assertResult[T](result)
}

// Seed stores value under key as a fresh entry.
func Seed[T any](ctx context.Context, q *QueryCache, key Key, value T) {
	q.seed(ctx, key, value)
}

// Merge replaces the value under key with fn(previous). cached is false when
// nothing (or a value of another type) was stored; the result is stored fresh either way.
func Merge[T any](ctx context.Context, q *QueryCache, key Key, fn func(prev T, cached bool) T) {
	q.update(ctx, key, func(prev any, ok bool) any {
		var typed T
		if ok {
			typed, ok = prev.(T)
		}
		return fn(typed, ok)
	})
}

// Peek returns the cached value under key without fetching, fresh or stale.
func Peek[T any](ctx context.Context, q *QueryCache, key Key) (T, bool) {
	var zero T
	e, ok := q.backend.Get(ctx, key.String())
	if !ok {
		return zero, false
	}
	v, err := assertResult[T](e.Value)
	if err != nil {
		return zero, false
	}
	return v, true
}

func assertResult[T any](result any) (T, error) {
	var zero T
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrInvalidResultType, result, zero)
	}
	return typed, nil
}
