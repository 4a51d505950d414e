// Package cache is the query-result cache that sits between callers and the
// data-access layer.
//
// # Overview
//
// A QueryCache maps a Key to the latest successful result of a fetch and the
// time it was fetched. Reads are served from the cache while the entry is
// fresh; otherwise the fetch runs once per key no matter how many callers ask
// for it concurrently:
//
//	profile, err := cache.Read(ctx, qc, cache.DetailKey(cache.EntityUsers, id),
//		func(ctx context.Context) (*models.UserProfile, error) {
//			return db.GetUserProfile(ctx, id)
//		})
//
// # Keys
//
// Keys are structured: an entity, a scope, an optional id and optional params.
// Key.String renders them canonically with KeySeparator between segments, so
// prefixes line up with the structure:
//
//	luxicles::detail::<id>
//	luxicles::search::struct:{CategoryID:cat1,Query:art}
//
// ScopePrefix(EntityLuxicles, ScopeSearch) selects every luxicle search
// regardless of its filters.
//
// # Staleness
//
// Collection scopes use Config.ListStaleTime and the rest use
// Config.DetailStaleTime. Invalidate marks entries stale but keeps them, so
// Peek still sees the last value while the next Read refetches.
//
// # Gating and retries
//
// Enabled(false) turns a read into a no-op that returns ErrDisabled. Failed
// fetches are retried Config.ReadRetries times with exponential backoff unless
// the error is a caller mistake (validation, not found, conflict, forbidden,
// unauthorized). A failed fetch never changes what is cached.
//
// # Storage
//
// Entries live in a CacheService. NewCacheService returns the sturdyc-backed
// store from internal/cacheinfra, whose TTL only bounds memory.
package cache
