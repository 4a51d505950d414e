package store

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

// CreateLuxicle writes the luxicle, its items and tag links in one transaction,
// bumping the challenge submission count and the tag usage counts.
func (s *Store) CreateLuxicle(ctx context.Context, in models.CreateLuxicleInput) (*models.Luxicle, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}

	now := s.timestamp()
	l := &models.Luxicle{
		ID:          s.newID(),
		UserID:      in.UserID,
		ChallengeID: in.ChallengeID,
		CategoryID:  in.CategoryID,
		Title:       in.Title,
		Description: in.Description,
		IsPublished: in.Published(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := tx.NewSelect().Model((*models.Challenge)(nil)).Where("c.id = ?", in.ChallengeID).Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NewNotFound("challenge", in.ChallengeID)
		}
		if err := checkCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		if err := checkTags(ctx, tx, in.TagIDs); err != nil {
			return err
		}

		if _, err := tx.NewInsert().Model(l).Exec(ctx); err != nil {
			return err
		}

		if len(in.Items) > 0 {
			items := make([]*models.LuxicleItem, len(in.Items))
			for i, it := range in.Items {
				items[i] = &models.LuxicleItem{
					ID:            s.newID(),
					LuxicleID:     l.ID,
					Position:      it.Position,
					Title:         it.Title,
					Description:   it.Description,
					MediaURL:      it.MediaURL,
					ItemType:      it.ItemType,
					EmbedProvider: it.EmbedProvider,
					EmbedData:     it.EmbedData,
					CreatedAt:     now,
				}
			}
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return err
			}
		}

		links := make([]models.LuxicleTag, len(in.TagIDs))
		for i, tagID := range in.TagIDs {
			links[i] = models.LuxicleTag{LuxicleID: l.ID, TagID: tagID}
		}
		if err := linkTags(ctx, tx, links, in.TagIDs); err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model((*models.Challenge)(nil)).
			Set("submission_count = submission_count + 1").
			Where("id = ?", in.ChallengeID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(err, "luxicle", l.ID)
	}

	s.log.Infow("luxicle created",
		"luxicle_id", l.ID,
		"user_id", l.UserID,
		"challenge_id", l.ChallengeID,
		"items", len(in.Items),
	)
	return s.GetLuxicle(ctx, l.ID)
}

// GetLuxicle loads the luxicle with its owner, category, tags and items by position.
func (s *Store) GetLuxicle(ctx context.Context, id string) (*models.Luxicle, error) {
	l := new(models.Luxicle)
	err := s.db.NewSelect().
		Model(l).
		Relation("User").
		Relation("Category").
		Relation("Tags").
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("li.position ASC")
		}).
		Where("l.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, apperr.FromStore(err, "luxicle", id)
	}
	return l, nil
}

// UpdateLuxicle writes the patch only when callerID owns the row. A miss is
// NotFound when the row is absent and Forbidden when someone else owns it.
func (s *Store) UpdateLuxicle(ctx context.Context, id, callerID string, in models.UpdateLuxicleInput) (*models.Luxicle, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}

	l := &models.Luxicle{ID: id, UpdatedAt: s.timestamp()}
	in.ApplyTo(l)

	res, err := s.db.NewUpdate().
		Model(l).
		Column(append(in.Columns(), "updated_at")...).
		Where("id = ?", id).
		Where("user_id = ?", callerID).
		Exec(ctx)
	if err != nil {
		return nil, apperr.FromStore(err, "luxicle", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		exists, err := s.db.NewSelect().Model((*models.Luxicle)(nil)).Where("l.id = ?", id).Exists(ctx)
		if err != nil {
			return nil, apperr.FromStore(err, "luxicle", id)
		}
		if exists {
			return nil, apperr.NewForbidden("only the owner can update this luxicle")
		}
		return nil, apperr.NewNotFound("luxicle", id)
	}
	return s.GetLuxicle(ctx, id)
}

// SearchLuxicles composes the text, category, user and challenge predicates over
// published luxicles, newest first. Tags filter the fetched page with an ANY match.
func (s *Store) SearchLuxicles(ctx context.Context, in models.LuxicleSearch) ([]models.Luxicle, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}

	luxicles := make([]models.Luxicle, 0)
	if err := s.searchQuery(&luxicles, in).Scan(ctx); err != nil {
		return nil, classify(err, "luxicles")
	}

	if len(in.TagIDs) == 0 {
		return luxicles, nil
	}
	filtered := make([]models.Luxicle, 0, len(luxicles))
	for _, l := range luxicles {
		if models.IntersectsAny(l.TagIDs(), in.TagIDs) {
			filtered = append(filtered, l)
		}
	}
	return filtered, nil
}

// searchQuery builds the SELECT behind SearchLuxicles for an already validated search.
func (s *Store) searchQuery(dest *[]models.Luxicle, in models.LuxicleSearch) *bun.SelectQuery {
	q := s.db.NewSelect().
		Model(dest).
		Relation("User").
		Relation("Category").
		Relation("Tags").
		Where("l.is_published = ?", true).
		OrderExpr("l.created_at DESC").
		Limit(in.Limit).
		Offset(in.Offset)

	if in.Query != "" {
		q = s.textMatch(q, in.Query)
	}
	if in.CategoryID != "" {
		q = q.Where("l.category_id = ?", in.CategoryID)
	}
	if in.UserID != "" {
		q = q.Where("l.user_id = ?", in.UserID)
	}
	if in.ChallengeID != "" {
		q = q.Where("l.challenge_id = ?", in.ChallengeID)
	}
	return q
}

func (s *Store) textMatch(q *bun.SelectQuery, text string) *bun.SelectQuery {
	if s.isPostgres() {
		return q.Where(
			"to_tsvector('english', l.title || ' ' || COALESCE(l.description, '')) @@ websearch_to_tsquery('english', ?)",
			text,
		)
	}
	pattern := likePattern(text)
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where(`LOWER(l.title) LIKE ? ESCAPE '\'`, pattern).
			WhereOr(`LOWER(l.description) LIKE ? ESCAPE '\'`, pattern)
	})
}

func (s *Store) ListLuxiclesByUser(ctx context.Context, userID string, limit, offset int) ([]models.Luxicle, error) {
	return s.SearchLuxicles(ctx, models.LuxicleSearch{UserID: userID, Limit: limit, Offset: offset})
}

func (s *Store) ListLuxiclesByChallenge(ctx context.Context, challengeID string, limit, offset int) ([]models.Luxicle, error) {
	return s.SearchLuxicles(ctx, models.LuxicleSearch{ChallengeID: challengeID, Limit: limit, Offset: offset})
}
