package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Category struct {
	bun.BaseModel `bun:"table:categories,alias:cat"`

	ID          string    `bun:"id,pk" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Slug        string    `bun:"slug,notnull,unique" json:"slug"`
	Description string    `bun:"description" json:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Tag.UsageCount is a denormalized counter; RecountTagUsage rebuilds it from the junction tables.
type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID         string    `bun:"id,pk" json:"id"`
	Name       string    `bun:"name,notnull" json:"name"`
	Slug       string    `bun:"slug,notnull,unique" json:"slug"`
	UsageCount int       `bun:"usage_count,notnull" json:"usage_count"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Challenge is a time-windowed prompt answered with luxicles.
type Challenge struct {
	bun.BaseModel `bun:"table:challenges,alias:c"`

	ID              string     `bun:"id,pk" json:"id"`
	Title           string     `bun:"title,notnull" json:"title"`
	Description     string     `bun:"description" json:"description"`
	Rules           string     `bun:"rules" json:"rules"`
	CoverImageURL   string     `bun:"cover_image_url" json:"cover_image_url"`
	CategoryID      *string    `bun:"category_id" json:"category_id"`
	Category        *Category  `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	OpensAt         time.Time  `bun:"opens_at,notnull" json:"opens_at"`
	ClosesAt        *time.Time `bun:"closes_at" json:"closes_at"`
	IsFeatured      bool       `bun:"is_featured,notnull" json:"is_featured"`
	SubmissionCount int        `bun:"submission_count,notnull" json:"submission_count"`
	Tags            []Tag      `bun:"m2m:challenge_tags,join:Challenge=Tag" json:"tags"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// IsActive reports opens_at <= now < closes_at, with a null closes_at never closing.
func (c *Challenge) IsActive(now time.Time) bool {
	if now.Before(c.OpensAt) {
		return false
	}
	return c.ClosesAt == nil || now.Before(*c.ClosesAt)
}

func (c *Challenge) TagIDs() []string {
	return tagIDs(c.Tags)
}

type ChallengeTag struct {
	bun.BaseModel `bun:"table:challenge_tags"`

	ChallengeID string     `bun:"challenge_id,pk"`
	Challenge   *Challenge `bun:"rel:belongs-to,join:challenge_id=id"`
	TagID       string     `bun:"tag_id,pk"`
	Tag         *Tag       `bun:"rel:belongs-to,join:tag_id=id"`
}

func tagIDs(tags []Tag) []string {
	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids
}

// IntersectsAny reports whether have shares at least one id with want.
// An empty want matches everything.
func IntersectsAny(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, id := range have {
		set[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
