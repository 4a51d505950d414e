package store

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := make([]models.Category, 0)
	if err := s.db.NewSelect().Model(&categories).OrderExpr("cat.name ASC").Scan(ctx); err != nil {
		return nil, classify(err, "categories")
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	c := new(models.Category)
	if err := s.db.NewSelect().Model(c).Where("cat.id = ?", id).Scan(ctx); err != nil {
		return nil, apperr.FromStore(err, "category", id)
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, in models.CreateCategoryInput) (*models.Category, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}
	c := &models.Category{
		ID:          s.newID(),
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		CreatedAt:   s.timestamp(),
	}
	if _, err := s.db.NewInsert().Model(c).Exec(ctx); err != nil {
		return nil, apperr.FromStore(err, "category", in.Slug)
	}
	return c, nil
}

func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	tags := make([]models.Tag, 0)
	if err := s.db.NewSelect().Model(&tags).OrderExpr("t.name ASC").Scan(ctx); err != nil {
		return nil, classify(err, "tags")
	}
	return tags, nil
}

// ListPopularTags orders by usage_count, breaking ties by name.
func (s *Store) ListPopularTags(ctx context.Context, limit int) ([]models.Tag, error) {
	tags := make([]models.Tag, 0)
	err := s.db.NewSelect().
		Model(&tags).
		OrderExpr("t.usage_count DESC").
		OrderExpr("t.name ASC").
		Limit(models.ClampLimit(limit, models.DefaultSearchLimit)).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "tags")
	}
	return tags, nil
}

func (s *Store) CreateTag(ctx context.Context, in models.CreateTagInput) (*models.Tag, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}
	t := &models.Tag{
		ID:        s.newID(),
		Name:      in.Name,
		Slug:      in.Slug,
		CreatedAt: s.timestamp(),
	}
	if _, err := s.db.NewInsert().Model(t).Exec(ctx); err != nil {
		return nil, apperr.FromStore(err, "tag", in.Slug)
	}
	return t, nil
}

// RecountTagUsage rebuilds every usage_count from the junction tables.
func (s *Store) RecountTagUsage(ctx context.Context) error {
	_, err := s.db.NewUpdate().
		Model((*models.Tag)(nil)).
		Set(`usage_count = (SELECT COUNT(*) FROM challenge_tags AS ct WHERE ct.tag_id = ?TableAlias.id) +
			(SELECT COUNT(*) FROM luxicle_tags AS lt WHERE lt.tag_id = ?TableAlias.id)`).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return classify(err, "tags")
	}
	return nil
}

// linkTags inserts junction rows for ids and bumps their usage counts.
func linkTags[J any](ctx context.Context, tx bun.Tx, rows []J, tagIDs []string) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return err
	}
	_, err := tx.NewUpdate().
		Model((*models.Tag)(nil)).
		Set("usage_count = usage_count + 1").
		Where("id IN (?)", bun.In(tagIDs)).
		Exec(ctx)
	return err
}

// checkTags fails with a Validation error when any id does not name a tag.
func checkTags(ctx context.Context, tx bun.Tx, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	n, err := tx.NewSelect().Model((*models.Tag)(nil)).Where("t.id IN (?)", bun.In(tagIDs)).Count(ctx)
	if err != nil {
		return err
	}
	if n != len(tagIDs) {
		return apperr.NewValidation("unknown tag id")
	}
	return nil
}
