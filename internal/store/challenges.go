package store

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

// ListChallenges returns challenges newest-opening first. The tag filter is
// applied to the fetched page and keeps challenges sharing any listed tag.
func (s *Store) ListChallenges(ctx context.Context, f models.ChallengeFilter) ([]models.Challenge, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}

	challenges := make([]models.Challenge, 0)
	q := s.db.NewSelect().
		Model(&challenges).
		Relation("Category").
		Relation("Tags").
		OrderExpr("c.opens_at DESC").
		Limit(f.Limit).
		Offset(f.Offset)

	if f.CategoryID != "" {
		q = q.Where("c.category_id = ?", f.CategoryID)
	}
	if f.Search != "" {
		q = q.Where(`LOWER(c.title) LIKE ? ESCAPE '\'`, likePattern(f.Search))
	}
	if f.Featured {
		q = q.Where("c.is_featured = ?", true)
	}
	if f.Active {
		now := s.timestamp()
		q = q.Where("c.opens_at <= ?", now).
			WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("c.closes_at IS NULL").WhereOr("c.closes_at > ?", now)
			})
	}

	if err := q.Scan(ctx); err != nil {
		return nil, classify(err, "challenges")
	}

	if len(f.TagIDs) == 0 {
		return challenges, nil
	}
	filtered := make([]models.Challenge, 0, len(challenges))
	for _, c := range challenges {
		if models.IntersectsAny(c.TagIDs(), f.TagIDs) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	c := new(models.Challenge)
	err := s.db.NewSelect().
		Model(c).
		Relation("Category").
		Relation("Tags").
		Where("c.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, apperr.FromStore(err, "challenge", id)
	}
	return c, nil
}

// CreateChallenge inserts the challenge and its tag links in one transaction.
func (s *Store) CreateChallenge(ctx context.Context, in models.CreateChallengeInput) (*models.Challenge, error) {
	now := s.timestamp()
	in.Normalize(now)
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}

	c := &models.Challenge{
		ID:            s.newID(),
		Title:         in.Title,
		Description:   in.Description,
		Rules:         in.Rules,
		CoverImageURL: in.CoverImageURL,
		CategoryID:    in.CategoryID,
		OpensAt:       in.OpensAt,
		ClosesAt:      in.ClosesAt,
		IsFeatured:    in.IsFeatured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		if err := checkTags(ctx, tx, in.TagIDs); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
			return err
		}
		links := make([]models.ChallengeTag, len(in.TagIDs))
		for i, tagID := range in.TagIDs {
			links[i] = models.ChallengeTag{ChallengeID: c.ID, TagID: tagID}
		}
		return linkTags(ctx, tx, links, in.TagIDs)
	})
	if err != nil {
		return nil, apperr.FromStore(err, "challenge", c.ID)
	}

	s.log.Infow("challenge created", "challenge_id", c.ID, "tags", len(in.TagIDs))
	return s.GetChallenge(ctx, c.ID)
}

func checkCategory(ctx context.Context, tx bun.Tx, id *string) error {
	if id == nil {
		return nil
	}
	ok, err := tx.NewSelect().Model((*models.Category)(nil)).Where("cat.id = ?", *id).Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NewValidation("unknown category id")
	}
	return nil
}
