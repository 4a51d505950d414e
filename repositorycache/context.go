package repositorycache

import (
	"context"

	"github.com/robby3000/luxicle/cache"
)

type readOptionsContextKey struct{}

// WithReadOptions attaches read options to the context. Every cached read made
// with the context applies them before its explicit options, so an HTTP
// middleware can gate reads for a whole request.
func WithReadOptions(ctx context.Context, opts ...cache.ReadOption) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(opts) == 0 {
		return ctx
	}

	combined := append(readOptionsFromContext(ctx), opts...)
	return context.WithValue(ctx, readOptionsContextKey{}, combined)
}

func readOptionsFromContext(ctx context.Context) []cache.ReadOption {
	if ctx == nil {
		return nil
	}
	if opts, ok := ctx.Value(readOptionsContextKey{}).([]cache.ReadOption); ok {
		return append([]cache.ReadOption(nil), opts...)
	}
	return nil
}

func (s *Store) readOptions(ctx context.Context, explicit []cache.ReadOption) []cache.ReadOption {
	fromCtx := readOptionsFromContext(ctx)
	if len(fromCtx) == 0 {
		return explicit
	}
	return append(fromCtx, explicit...)
}
