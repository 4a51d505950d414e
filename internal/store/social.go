package store

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/uptrace/bun"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

func validText(field, value string, max int) error {
	if err := validation.Validate(value, validation.Required, validation.Length(1, max)); err != nil {
		return apperr.WrapValidation(validation.Errors{field: err})
	}
	return nil
}

// requireLuxicle reports NotFound when no luxicle has the given id.
func (s *Store) requireLuxicle(ctx context.Context, id string) error {
	exists, err := s.db.NewSelect().Model((*models.Luxicle)(nil)).Where("l.id = ?", id).Exists(ctx)
	if err != nil {
		return apperr.FromStore(err, "luxicle", id)
	}
	if !exists {
		return apperr.NewNotFound("luxicle", id)
	}
	return nil
}

func (s *Store) CreateComment(ctx context.Context, luxicleID, userID, body string) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if err := validText("body", body, 2000); err != nil {
		return nil, err
	}
	if err := s.requireLuxicle(ctx, luxicleID); err != nil {
		return nil, err
	}
	c := &models.Comment{
		ID:        s.newID(),
		LuxicleID: luxicleID,
		UserID:    userID,
		Body:      body,
		CreatedAt: s.timestamp(),
	}
	if _, err := s.db.NewInsert().Model(c).Exec(ctx); err != nil {
		return nil, apperr.FromStore(err, "comment", c.ID)
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, luxicleID string) ([]models.Comment, error) {
	comments := make([]models.Comment, 0)
	err := s.db.NewSelect().
		Model(&comments).
		Where("cm.luxicle_id = ?", luxicleID).
		OrderExpr("cm.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "comments")
	}
	return comments, nil
}

// CreateReaction records one reaction of a kind per user and luxicle; repeats are a Conflict.
func (s *Store) CreateReaction(ctx context.Context, luxicleID, userID, kind string) (*models.Reaction, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if err := validText("kind", kind, 32); err != nil {
		return nil, err
	}
	if err := s.requireLuxicle(ctx, luxicleID); err != nil {
		return nil, err
	}
	r := &models.Reaction{
		ID:        s.newID(),
		LuxicleID: luxicleID,
		UserID:    userID,
		Kind:      kind,
		CreatedAt: s.timestamp(),
	}
	if _, err := s.db.NewInsert().Model(r).Exec(ctx); err != nil {
		return nil, apperr.FromStore(err, "reaction", kind)
	}
	return r, nil
}

func (s *Store) ListReactions(ctx context.Context, luxicleID string) ([]models.Reaction, error) {
	reactions := make([]models.Reaction, 0)
	err := s.db.NewSelect().
		Model(&reactions).
		Where("r.luxicle_id = ?", luxicleID).
		OrderExpr("r.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "reactions")
	}
	return reactions, nil
}

func (s *Store) SendMessage(ctx context.Context, senderID, recipientID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if err := validText("body", body, 4000); err != nil {
		return nil, err
	}
	if recipientID == "" {
		return nil, apperr.NewValidation("recipient is required")
	}
	exists, err := s.db.NewSelect().Model((*models.UserProfile)(nil)).Where("u.id = ?", recipientID).Exists(ctx)
	if err != nil {
		return nil, apperr.FromStore(err, "profile", recipientID)
	}
	if !exists {
		return nil, apperr.NewNotFound("profile", recipientID)
	}
	m := &models.Message{
		ID:          s.newID(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   s.timestamp(),
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return nil, apperr.FromStore(err, "message", m.ID)
	}
	return m, nil
}

// ListMessages returns messages sent or received by userID, newest first.
func (s *Store) ListMessages(ctx context.Context, userID string) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	err := s.db.NewSelect().
		Model(&messages).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("m.sender_id = ?", userID).WhereOr("m.recipient_id = ?", userID)
		}).
		OrderExpr("m.created_at DESC").
		Limit(models.MaxLimit).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "messages")
	}
	return messages, nil
}

func (s *Store) CreateFlag(ctx context.Context, luxicleID, reporterID, reason string) (*models.Flag, error) {
	reason = strings.TrimSpace(reason)
	if err := validText("reason", reason, 500); err != nil {
		return nil, err
	}
	if err := s.requireLuxicle(ctx, luxicleID); err != nil {
		return nil, err
	}
	f := &models.Flag{
		ID:         s.newID(),
		LuxicleID:  luxicleID,
		ReporterID: reporterID,
		Reason:     reason,
		CreatedAt:  s.timestamp(),
	}
	if _, err := s.db.NewInsert().Model(f).Exec(ctx); err != nil {
		return nil, apperr.FromStore(err, "flag", f.ID)
	}
	return f, nil
}

// ListFlags returns the reports against luxicleID, or every report when it is empty.
func (s *Store) ListFlags(ctx context.Context, luxicleID string) ([]models.Flag, error) {
	flags := make([]models.Flag, 0)
	q := s.db.NewSelect().Model(&flags).OrderExpr("fl.created_at DESC")
	if luxicleID != "" {
		q = q.Where("fl.luxicle_id = ?", luxicleID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify(err, "flags")
	}
	return flags, nil
}
