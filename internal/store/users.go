package store

import (
	"context"
	"strings"

	"github.com/uptrace/bun"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

const (
	followersCountExpr = "(SELECT COUNT(*) FROM follows AS fc WHERE fc.followee_id = u.id) AS followers_count"
	followingCountExpr = "(SELECT COUNT(*) FROM follows AS fc WHERE fc.follower_id = u.id) AS following_count"
)

func (s *Store) profileQuery(p *models.UserProfile) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(p).
		ColumnExpr("u.*").
		ColumnExpr(followersCountExpr).
		ColumnExpr(followingCountExpr)
}

// GetUserProfile returns the profile with its follower and following counts.
func (s *Store) GetUserProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	p := new(models.UserProfile)
	if err := s.profileQuery(p).Where("u.id = ?", id).Scan(ctx); err != nil {
		return nil, apperr.FromStore(err, "profile", id)
	}
	return p, nil
}

func (s *Store) GetUserProfileByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	username = models.NormalizeUsername(username)
	p := new(models.UserProfile)
	if err := s.profileQuery(p).Where("u.username = ?", username).Scan(ctx); err != nil {
		return nil, apperr.FromStore(err, "profile", username)
	}
	return p, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p := new(models.UserProfile)
	if err := s.db.NewSelect().Model(p).Where("u.email = ?", email).Scan(ctx); err != nil {
		return nil, apperr.FromStore(err, "user", email)
	}
	return p, nil
}

// CreateUserProfile inserts p. An empty ID is generated; duplicates of email or
// username are a Conflict.
func (s *Store) CreateUserProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error) {
	if p.ID == "" {
		p.ID = s.newID()
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Username = models.NormalizeUsername(p.Username)
	now := s.timestamp()
	p.CreatedAt, p.UpdatedAt = now, now

	if _, err := s.db.NewInsert().Model(p).Exec(ctx); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, &apperr.Error{Kind: apperr.KindConflict, Message: "email or username already registered", Err: err}
		}
		return nil, apperr.FromStore(err, "profile", p.ID)
	}
	return p, nil
}

// UpdateUserProfile validates the patch, writes only the provided columns and
// returns the full profile.
func (s *Store) UpdateUserProfile(ctx context.Context, id string, in models.UpdateProfileInput) (*models.UserProfile, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}
	if in.IsEmpty() {
		return s.GetUserProfile(ctx, id)
	}

	p := &models.UserProfile{ID: id, UpdatedAt: s.timestamp()}
	in.ApplyTo(p)

	res, err := s.db.NewUpdate().
		Model(p).
		Column(append(in.Columns(), "updated_at")...).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, &apperr.Error{Kind: apperr.KindConflict, Message: "username is already taken", Err: err}
		}
		return nil, apperr.FromStore(err, "profile", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NewNotFound("profile", id)
	}
	return s.GetUserProfile(ctx, id)
}

// SetPassword stores a new bcrypt hash for the user.
func (s *Store) SetPassword(ctx context.Context, id, hash string) error {
	res, err := s.db.NewUpdate().
		Model((*models.UserProfile)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = ?", s.timestamp()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperr.FromStore(err, "user", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NewNotFound("user", id)
	}
	return nil
}

// ConfirmEmail stamps email_confirmed_at once; later calls keep the first stamp.
func (s *Store) ConfirmEmail(ctx context.Context, id string) (*models.UserProfile, error) {
	now := s.timestamp()
	_, err := s.db.NewUpdate().
		Model((*models.UserProfile)(nil)).
		Set("email_confirmed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("email_confirmed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, apperr.FromStore(err, "user", id)
	}
	return s.GetUserProfile(ctx, id)
}

// SearchUsers matches the query against username or display name.
func (s *Store) SearchUsers(ctx context.Context, in models.UserSearch) ([]models.UserProfile, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}

	pattern := likePattern(in.Query)
	users := make([]models.UserProfile, 0)
	err := s.db.NewSelect().
		Model(&users).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where(`LOWER(u.username) LIKE ? ESCAPE '\'`, pattern).
				WhereOr(`LOWER(u.display_name) LIKE ? ESCAPE '\'`, pattern)
		}).
		OrderExpr("u.username ASC").
		Limit(in.Limit).
		Offset(in.Offset).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "users")
	}
	return users, nil
}

// Follow creates the follower -> followee edge. Following twice is a Conflict.
func (s *Store) Follow(ctx context.Context, followerID, followeeID string) (*models.Follow, error) {
	if followerID == "" || followeeID == "" {
		return nil, apperr.NewValidation("follower and followee are required")
	}
	if followerID == followeeID && !s.allowSelfFollow {
		return nil, apperr.NewValidation("users cannot follow themselves")
	}

	exists, err := s.db.NewSelect().Model((*models.UserProfile)(nil)).Where("u.id = ?", followeeID).Exists(ctx)
	if err != nil {
		return nil, apperr.FromStore(err, "profile", followeeID)
	}
	if !exists {
		return nil, apperr.NewNotFound("profile", followeeID)
	}

	f := &models.Follow{
		ID:         s.newID(),
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  s.timestamp(),
	}
	if _, err := s.db.NewInsert().Model(f).Exec(ctx); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, &apperr.Error{Kind: apperr.KindConflict, Message: "already following", Err: err}
		}
		return nil, apperr.FromStore(err, "follow", followeeID)
	}
	return f, nil
}

// Unfollow removes the edge. Removing a missing edge is NotFound.
func (s *Store) Unfollow(ctx context.Context, followerID, followeeID string) error {
	res, err := s.db.NewDelete().
		Model((*models.Follow)(nil)).
		Where("follower_id = ?", followerID).
		Where("followee_id = ?", followeeID).
		Exec(ctx)
	if err != nil {
		return apperr.FromStore(err, "follow", followeeID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NewNotFound("follow", followeeID)
	}
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	ok, err := s.db.NewSelect().
		Model((*models.Follow)(nil)).
		Where("f.follower_id = ?", followerID).
		Where("f.followee_id = ?", followeeID).
		Exists(ctx)
	if err != nil {
		return false, classify(err, "follows")
	}
	return ok, nil
}

// ListFollowers returns the profiles following userID, newest edge first.
func (s *Store) ListFollowers(ctx context.Context, userID string) ([]models.UserProfile, error) {
	return s.listFollowEdge(ctx, "f.follower_id = u.id", "f.followee_id = ?", userID)
}

// ListFollowing returns the profiles userID follows, newest edge first.
func (s *Store) ListFollowing(ctx context.Context, userID string) ([]models.UserProfile, error) {
	return s.listFollowEdge(ctx, "f.followee_id = u.id", "f.follower_id = ?", userID)
}

func (s *Store) listFollowEdge(ctx context.Context, join, where, userID string) ([]models.UserProfile, error) {
	users := make([]models.UserProfile, 0)
	err := s.db.NewSelect().
		Model(&users).
		Join("JOIN follows AS f ON "+join).
		Where(where, userID).
		OrderExpr("f.created_at DESC").
		Limit(models.MaxLimit).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "follows")
	}
	return users, nil
}
