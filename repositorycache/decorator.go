package repositorycache

import (
	"context"

	"go.uber.org/zap"

	"github.com/robby3000/luxicle/cache"
	"github.com/robby3000/luxicle/internal/models"
	"github.com/robby3000/luxicle/internal/store"
)

// Interface assertion to ensure *store.Store satisfies Repository
var _ Repository = (*store.Store)(nil)

// Repository is the data-access surface the cached Store decorates.
type Repository interface {
	GetUserProfile(ctx context.Context, id string) (*models.UserProfile, error)
	GetUserProfileByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	CreateUserProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error)
	UpdateUserProfile(ctx context.Context, id string, in models.UpdateProfileInput) (*models.UserProfile, error)
	SetPassword(ctx context.Context, id, hash string) error
	ConfirmEmail(ctx context.Context, id string) (*models.UserProfile, error)
	SearchUsers(ctx context.Context, in models.UserSearch) ([]models.UserProfile, error)

	Follow(ctx context.Context, followerID, followeeID string) (*models.Follow, error)
	Unfollow(ctx context.Context, followerID, followeeID string) error
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	ListFollowers(ctx context.Context, userID string) ([]models.UserProfile, error)
	ListFollowing(ctx context.Context, userID string) ([]models.UserProfile, error)

	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	CreateCategory(ctx context.Context, in models.CreateCategoryInput) (*models.Category, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
	ListPopularTags(ctx context.Context, limit int) ([]models.Tag, error)
	CreateTag(ctx context.Context, in models.CreateTagInput) (*models.Tag, error)
	RecountTagUsage(ctx context.Context) error

	ListChallenges(ctx context.Context, f models.ChallengeFilter) ([]models.Challenge, error)
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	CreateChallenge(ctx context.Context, in models.CreateChallengeInput) (*models.Challenge, error)

	CreateLuxicle(ctx context.Context, in models.CreateLuxicleInput) (*models.Luxicle, error)
	GetLuxicle(ctx context.Context, id string) (*models.Luxicle, error)
	UpdateLuxicle(ctx context.Context, id, callerID string, in models.UpdateLuxicleInput) (*models.Luxicle, error)
	SearchLuxicles(ctx context.Context, in models.LuxicleSearch) ([]models.Luxicle, error)

	CreateComment(ctx context.Context, luxicleID, userID, body string) (*models.Comment, error)
	ListComments(ctx context.Context, luxicleID string) ([]models.Comment, error)
	CreateReaction(ctx context.Context, luxicleID, userID, kind string) (*models.Reaction, error)
	ListReactions(ctx context.Context, luxicleID string) ([]models.Reaction, error)
	SendMessage(ctx context.Context, senderID, recipientID, body string) (*models.Message, error)
	ListMessages(ctx context.Context, userID string) ([]models.Message, error)
	CreateFlag(ctx context.Context, luxicleID, reporterID, reason string) (*models.Flag, error)
	ListFlags(ctx context.Context, luxicleID string) ([]models.Flag, error)
}

// Store decorates a Repository: reads go through the query cache and writes
// update it after the base call succeeds.
type Store struct {
	base  Repository
	cache *cache.QueryCache
	log   *zap.SugaredLogger
}

type Option func(*Store)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Store that wraps base with the query cache
func New(base Repository, qc *cache.QueryCache, opts ...Option) *Store {
	s := &Store{
		base:  base,
		cache: qc,
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the underlying query cache, mostly for tests and admin tooling.
func (s *Store) Cache() *cache.QueryCache {
	return s.cache
}

func usernameKey(username string) cache.Key {
	return cache.Key{Entity: cache.EntityUsers, Scope: cache.ScopeUsername, ID: models.NormalizeUsername(username)}
}

func followEdgeKey(followerID, followeeID string) cache.Key {
	return cache.Key{Entity: cache.EntityUsers, Scope: cache.ScopeFollowEdge, ID: followerID, Params: followeeID}
}

func popularTagsKey(limit int) cache.Key {
	return cache.Key{Entity: cache.EntityTags, Scope: cache.ScopePopular, Params: limit}
}

// ---- reads ----

func (s *Store) GetUserProfile(ctx context.Context, id string, opts ...cache.ReadOption) (*models.UserProfile, error) {
	return cache.Read(ctx, s.cache, cache.DetailKey(cache.EntityUsers, id), func(ctx context.Context) (*models.UserProfile, error) {
		return s.base.GetUserProfile(ctx, id)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) GetUserProfileByUsername(ctx context.Context, username string, opts ...cache.ReadOption) (*models.UserProfile, error) {
	return cache.Read(ctx, s.cache, usernameKey(username), func(ctx context.Context) (*models.UserProfile, error) {
		return s.base.GetUserProfileByUsername(ctx, username)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) SearchUsers(ctx context.Context, in models.UserSearch, opts ...cache.ReadOption) ([]models.UserProfile, error) {
	in = in.Normalize()
	return cache.Read(ctx, s.cache, cache.SearchKey(cache.EntityUsers, in), func(ctx context.Context) ([]models.UserProfile, error) {
		return s.base.SearchUsers(ctx, in)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) IsFollowing(ctx context.Context, followerID, followeeID string, opts ...cache.ReadOption) (bool, error) {
	return cache.Read(ctx, s.cache, followEdgeKey(followerID, followeeID), func(ctx context.Context) (bool, error) {
		return s.base.IsFollowing(ctx, followerID, followeeID)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) ListFollowers(ctx context.Context, userID string, opts ...cache.ReadOption) ([]models.UserProfile, error) {
	key := cache.Key{Entity: cache.EntityUsers, Scope: cache.ScopeFollowers, ID: userID}
	return cache.Read(ctx, s.cache, key, func(ctx context.Context) ([]models.UserProfile, error) {
		return s.base.ListFollowers(ctx, userID)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) ListFollowing(ctx context.Context, userID string, opts ...cache.ReadOption) ([]models.UserProfile, error) {
	key := cache.Key{Entity: cache.EntityUsers, Scope: cache.ScopeFollowing, ID: userID}
	return cache.Read(ctx, s.cache, key, func(ctx context.Context) ([]models.UserProfile, error) {
		return s.base.ListFollowing(ctx, userID)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) ListCategories(ctx context.Context, opts ...cache.ReadOption) ([]models.Category, error) {
	return cache.Read(ctx, s.cache, cache.ListKey(cache.EntityCategories, nil), s.base.ListCategories, s.readOptions(ctx, opts)...)
}

func (s *Store) GetCategory(ctx context.Context, id string, opts ...cache.ReadOption) (*models.Category, error) {
	return cache.Read(ctx, s.cache, cache.DetailKey(cache.EntityCategories, id), func(ctx context.Context) (*models.Category, error) {
		return s.base.GetCategory(ctx, id)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) ListTags(ctx context.Context, opts ...cache.ReadOption) ([]models.Tag, error) {
	return cache.Read(ctx, s.cache, cache.ListKey(cache.EntityTags, nil), s.base.ListTags, s.readOptions(ctx, opts)...)
}

func (s *Store) ListPopularTags(ctx context.Context, limit int, opts ...cache.ReadOption) ([]models.Tag, error) {
	limit = models.ClampLimit(limit, models.DefaultSearchLimit)
	return cache.Read(ctx, s.cache, popularTagsKey(limit), func(ctx context.Context) ([]models.Tag, error) {
		return s.base.ListPopularTags(ctx, limit)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) ListChallenges(ctx context.Context, f models.ChallengeFilter, opts ...cache.ReadOption) ([]models.Challenge, error) {
	f = f.Normalize()
	return cache.Read(ctx, s.cache, cache.ListKey(cache.EntityChallenges, f), func(ctx context.Context) ([]models.Challenge, error) {
		return s.base.ListChallenges(ctx, f)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) GetChallenge(ctx context.Context, id string, opts ...cache.ReadOption) (*models.Challenge, error) {
	return cache.Read(ctx, s.cache, cache.DetailKey(cache.EntityChallenges, id), func(ctx context.Context) (*models.Challenge, error) {
		return s.base.GetChallenge(ctx, id)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) GetLuxicle(ctx context.Context, id string, opts ...cache.ReadOption) (*models.Luxicle, error) {
	return cache.Read(ctx, s.cache, cache.DetailKey(cache.EntityLuxicles, id), func(ctx context.Context) (*models.Luxicle, error) {
		return s.base.GetLuxicle(ctx, id)
	}, s.readOptions(ctx, opts)...)
}

func (s *Store) SearchLuxicles(ctx context.Context, in models.LuxicleSearch, opts ...cache.ReadOption) ([]models.Luxicle, error) {
	in = in.Normalize()
	return cache.Read(ctx, s.cache, cache.SearchKey(cache.EntityLuxicles, in), func(ctx context.Context) ([]models.Luxicle, error) {
		return s.base.SearchLuxicles(ctx, in)
	}, s.readOptions(ctx, opts)...)
}

// ListLuxiclesByUser is SearchLuxicles without text, cached under the list scope.
func (s *Store) ListLuxiclesByUser(ctx context.Context, userID string, limit, offset int, opts ...cache.ReadOption) ([]models.Luxicle, error) {
	return s.listLuxicles(ctx, models.LuxicleSearch{UserID: userID, Limit: limit, Offset: offset}, opts)
}

func (s *Store) ListLuxiclesByChallenge(ctx context.Context, challengeID string, limit, offset int, opts ...cache.ReadOption) ([]models.Luxicle, error) {
	return s.listLuxicles(ctx, models.LuxicleSearch{ChallengeID: challengeID, Limit: limit, Offset: offset}, opts)
}

func (s *Store) listLuxicles(ctx context.Context, in models.LuxicleSearch, opts []cache.ReadOption) ([]models.Luxicle, error) {
	in = in.Normalize()
	return cache.Read(ctx, s.cache, cache.ListKey(cache.EntityLuxicles, in), func(ctx context.Context) ([]models.Luxicle, error) {
		return s.base.SearchLuxicles(ctx, in)
	}, s.readOptions(ctx, opts)...)
}

// GetUserByEmail bypasses the cache; auth needs the current password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	return s.base.GetUserByEmail(ctx, email)
}

// ---- writes ----

func (s *Store) CreateUserProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error) {
	created, err := s.base.CreateUserProfile(ctx, p)
	if err != nil {
		return nil, err
	}
	cache.Seed(ctx, s.cache, cache.DetailKey(cache.EntityUsers, created.ID), created)
	cache.Seed(ctx, s.cache, usernameKey(created.Username), created)
	s.invalidate(ctx, "profile created", cache.CollectionPrefixes(cache.EntityUsers)...)
	return created, nil
}

// UpdateUserProfile merges the returned row into the cached profile, keeping the
// cached follow counts, and re-keys the username entry.
func (s *Store) UpdateUserProfile(ctx context.Context, id string, in models.UpdateProfileInput) (*models.UserProfile, error) {
	prev, hadPrev := cache.Peek[*models.UserProfile](ctx, s.cache, cache.DetailKey(cache.EntityUsers, id))

	updated, err := s.base.UpdateUserProfile(ctx, id, in)
	if err != nil {
		return nil, err
	}

	var merged *models.UserProfile
	cache.Merge(ctx, s.cache, cache.DetailKey(cache.EntityUsers, id), func(prev *models.UserProfile, cached bool) *models.UserProfile {
		merged = mergeProfile(prev, cached, updated)
		return merged
	})
	switch {
	case hadPrev && prev != nil && prev.Username != merged.Username:
		s.cache.Remove(ctx, usernameKey(prev.Username))
	case !hadPrev && in.Username != nil:
		// The old username is unknown, so every username entry may be the old one.
		s.invalidate(ctx, "username changed", cache.ScopePrefix(cache.EntityUsers, cache.ScopeUsername))
	}
	cache.Seed(ctx, s.cache, usernameKey(merged.Username), merged)

	// Luxicles embed their owner's profile.
	prefixes := append(cache.CollectionPrefixes(cache.EntityUsers), cache.EntityPrefix(cache.EntityLuxicles))
	s.invalidate(ctx, "profile updated", prefixes...)
	return merged, nil
}

func (s *Store) SetPassword(ctx context.Context, id, hash string) error {
	return s.base.SetPassword(ctx, id, hash)
}

func (s *Store) ConfirmEmail(ctx context.Context, id string) (*models.UserProfile, error) {
	p, err := s.base.ConfirmEmail(ctx, id)
	if err != nil {
		return nil, err
	}
	cache.Seed(ctx, s.cache, cache.DetailKey(cache.EntityUsers, p.ID), p)
	cache.Seed(ctx, s.cache, usernameKey(p.Username), p)
	return p, nil
}

// Follow marks both profiles (their counts) and the follow lists stale.
func (s *Store) Follow(ctx context.Context, followerID, followeeID string) (*models.Follow, error) {
	f, err := s.base.Follow(ctx, followerID, followeeID)
	if err != nil {
		return nil, err
	}
	cache.Seed(ctx, s.cache, followEdgeKey(followerID, followeeID), true)
	s.invalidateFollow(ctx, followerID, followeeID)
	return f, nil
}

func (s *Store) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if err := s.base.Unfollow(ctx, followerID, followeeID); err != nil {
		return err
	}
	cache.Seed(ctx, s.cache, followEdgeKey(followerID, followeeID), false)
	s.invalidateFollow(ctx, followerID, followeeID)
	return nil
}

func (s *Store) invalidateFollow(ctx context.Context, followerID, followeeID string) {
	s.invalidate(ctx, "follow graph changed",
		cache.DetailKey(cache.EntityUsers, followerID).Exact(),
		cache.DetailKey(cache.EntityUsers, followeeID).Exact(),
		cache.ScopePrefix(cache.EntityUsers, cache.ScopeUsername),
		cache.ScopePrefix(cache.EntityUsers, cache.ScopeFollowers),
		cache.ScopePrefix(cache.EntityUsers, cache.ScopeFollowing),
	)
}

func (s *Store) CreateCategory(ctx context.Context, in models.CreateCategoryInput) (*models.Category, error) {
	c, err := s.base.CreateCategory(ctx, in)
	if err != nil {
		return nil, err
	}
	cache.Seed(ctx, s.cache, cache.DetailKey(cache.EntityCategories, c.ID), c)
	s.invalidate(ctx, "category created", cache.CollectionPrefixes(cache.EntityCategories)...)
	return c, nil
}

func (s *Store) CreateTag(ctx context.Context, in models.CreateTagInput) (*models.Tag, error) {
	t, err := s.base.CreateTag(ctx, in)
	if err != nil {
		return nil, err
	}
	cache.Seed(ctx, s.cache, cache.DetailKey(cache.EntityTags, t.ID), t)
	s.invalidate(ctx, "tag created", cache.CollectionPrefixes(cache.EntityTags)...)
	return t, nil
}

// RecountTagUsage marks every tag key stale once the counts are rebuilt.
func (s *Store) RecountTagUsage(ctx context.Context) error {
	if err := s.base.RecountTagUsage(ctx); err != nil {
		return err
	}
	s.invalidate(ctx, "tag usage recounted", cache.EntityPrefix(cache.EntityTags))
	return nil
}

// CreateChallenge seeds the detail key and marks challenge and tag collections
// stale, since linking tags changes their usage counts.
func (s *Store) CreateChallenge(ctx context.Context, in models.CreateChallengeInput) (*models.Challenge, error) {
	c, err := s.base.CreateChallenge(ctx, in)
	if err != nil {
		return nil, err
	}
	cache.Seed(ctx, s.cache, cache.DetailKey(cache.EntityChallenges, c.ID), c)
	prefixes := append(cache.CollectionPrefixes(cache.EntityChallenges), cache.CollectionPrefixes(cache.EntityTags)...)
	s.invalidate(ctx, "challenge created", prefixes...)
	return c, nil
}

// CreateLuxicle seeds the detail key and marks luxicle collections, the parent
// challenge (its submission count) and tag collections stale.
func (s *Store) CreateLuxicle(ctx context.Context, in models.CreateLuxicleInput) (*models.Luxicle, error) {
	l, err := s.base.CreateLuxicle(ctx, in)
	if err != nil {
		return nil, err
	}
	cache.Seed(ctx, s.cache, cache.DetailKey(cache.EntityLuxicles, l.ID), l)

	prefixes := cache.CollectionPrefixes(cache.EntityLuxicles)
	prefixes = append(prefixes, cache.DetailKey(cache.EntityChallenges, l.ChallengeID).Exact())
	prefixes = append(prefixes, cache.CollectionPrefixes(cache.EntityChallenges)...)
	prefixes = append(prefixes, cache.CollectionPrefixes(cache.EntityTags)...)
	s.invalidate(ctx, "luxicle created", prefixes...)
	return l, nil
}

// UpdateLuxicle merges the returned row over the cached detail, keeping cached
// relations the response lacks.
func (s *Store) UpdateLuxicle(ctx context.Context, id, callerID string, in models.UpdateLuxicleInput) (*models.Luxicle, error) {
	updated, err := s.base.UpdateLuxicle(ctx, id, callerID, in)
	if err != nil {
		return nil, err
	}

	var merged *models.Luxicle
	cache.Merge(ctx, s.cache, cache.DetailKey(cache.EntityLuxicles, id), func(prev *models.Luxicle, cached bool) *models.Luxicle {
		merged = mergeLuxicle(prev, cached, updated)
		return merged
	})
	s.invalidate(ctx, "luxicle updated", cache.CollectionPrefixes(cache.EntityLuxicles)...)
	return merged, nil
}

// ---- pass-through ----

func (s *Store) CreateComment(ctx context.Context, luxicleID, userID, body string) (*models.Comment, error) {
	return s.base.CreateComment(ctx, luxicleID, userID, body)
}

func (s *Store) ListComments(ctx context.Context, luxicleID string) ([]models.Comment, error) {
	return s.base.ListComments(ctx, luxicleID)
}

func (s *Store) CreateReaction(ctx context.Context, luxicleID, userID, kind string) (*models.Reaction, error) {
	return s.base.CreateReaction(ctx, luxicleID, userID, kind)
}

func (s *Store) ListReactions(ctx context.Context, luxicleID string) ([]models.Reaction, error) {
	return s.base.ListReactions(ctx, luxicleID)
}

func (s *Store) SendMessage(ctx context.Context, senderID, recipientID, body string) (*models.Message, error) {
	return s.base.SendMessage(ctx, senderID, recipientID, body)
}

func (s *Store) ListMessages(ctx context.Context, userID string) ([]models.Message, error) {
	return s.base.ListMessages(ctx, userID)
}

func (s *Store) CreateFlag(ctx context.Context, luxicleID, reporterID, reason string) (*models.Flag, error) {
	return s.base.CreateFlag(ctx, luxicleID, reporterID, reason)
}

func (s *Store) ListFlags(ctx context.Context, luxicleID string) ([]models.Flag, error) {
	return s.base.ListFlags(ctx, luxicleID)
}

// ---- helpers ----

func (s *Store) invalidate(ctx context.Context, reason string, prefixes ...cache.Prefix) {
	n := s.cache.Invalidate(ctx, prefixes...)
	s.log.Debugw("cache invalidated", "reason", reason, "prefixes", len(prefixes), "entries", n)
}

// mergeProfile overlays the persisted columns of updated on the cached profile.
// Follow counts are not columns and stay as cached.
func mergeProfile(prev *models.UserProfile, cached bool, updated *models.UserProfile) *models.UserProfile {
	merged := *updated
	if cached && prev != nil {
		merged.FollowersCount = prev.FollowersCount
		merged.FollowingCount = prev.FollowingCount
	}
	return &merged
}

// mergeLuxicle overlays updated on the cached luxicle, keeping relations the
// update response did not carry.
func mergeLuxicle(prev *models.Luxicle, cached bool, updated *models.Luxicle) *models.Luxicle {
	merged := *updated
	if !cached || prev == nil {
		return &merged
	}
	if merged.User == nil {
		merged.User = prev.User
	}
	if merged.Category == nil && merged.CategoryID != nil && prev.Category != nil && prev.Category.ID == *merged.CategoryID {
		merged.Category = prev.Category
	}
	if merged.Tags == nil {
		merged.Tags = prev.Tags
	}
	if merged.Items == nil {
		merged.Items = prev.Items
	}
	return &merged
}
