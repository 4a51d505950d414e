// Package repositorycache decorates the data-access store with the query cache.
//
// # Overview
//
// Store wraps a Repository (normally *store.Store) and exposes the same
// methods. Reads go through cache.Read under structured keys; writes call the
// base repository first and only touch the cache once it succeeds:
//
//	base := store.New(db)
//	qc, err := cache.New(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	cached := repositorycache.New(base, qc)
//
//	challenge, err := cached.GetChallenge(ctx, id)
//
// # Write policy
//
// Creates seed the detail key with the returned row and mark the entity's
// lists and searches stale. Updates merge the returned row over the cached
// detail, keeping values the response does not carry (follow counts,
// preloaded relations), and seed the key when nothing was cached. Follow and
// unfollow mark both profiles and every follow list stale.
//
// A failed write leaves the cache untouched and is never retried.
//
// # Per-request options
//
// WithReadOptions attaches cache.ReadOption values to a context. The HTTP
// layer uses it to disable reads for signed-out requests:
//
//	ctx = repositorycache.WithReadOptions(ctx, cache.Enabled(false))
//	_, err := cached.GetUserProfile(ctx, id) // cache.ErrDisabled
//
// Explicit options passed to a read are applied after the context ones.
//
// Comments, reactions, messages and flags pass straight through.
package repositorycache
