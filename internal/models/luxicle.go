package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Luxicle is a ranked list submitted to a challenge. Only its owner may change it.
type Luxicle struct {
	bun.BaseModel `bun:"table:luxicles,alias:l"`

	ID          string         `bun:"id,pk" json:"id"`
	UserID      string         `bun:"user_id,notnull" json:"user_id"`
	User        *UserProfile   `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	ChallengeID string         `bun:"challenge_id,notnull" json:"challenge_id"`
	CategoryID  *string        `bun:"category_id" json:"category_id"`
	Category    *Category      `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	Title       string         `bun:"title,notnull" json:"title"`
	Description string         `bun:"description" json:"description"`
	IsPublished bool           `bun:"is_published,notnull" json:"is_published"`
	ViewCount   int            `bun:"view_count,notnull" json:"view_count"`
	Tags        []Tag          `bun:"m2m:luxicle_tags,join:Luxicle=Tag" json:"tags"`
	Items       []*LuxicleItem `bun:"rel:has-many,join:id=luxicle_id" json:"items"`
	CreatedAt   time.Time      `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull" json:"updated_at"`
}

func (l *Luxicle) TagIDs() []string {
	return tagIDs(l.Tags)
}

// LuxicleItem is one ranked entry. Position orders items within a luxicle.
type LuxicleItem struct {
	bun.BaseModel `bun:"table:luxicle_items,alias:li"`

	ID            string         `bun:"id,pk" json:"id"`
	LuxicleID     string         `bun:"luxicle_id,notnull" json:"luxicle_id"`
	Position      int            `bun:"position,notnull" json:"position"`
	Title         string         `bun:"title,notnull" json:"title"`
	Description   string         `bun:"description" json:"description"`
	MediaURL      string         `bun:"media_url" json:"media_url"`
	ItemType      string         `bun:"item_type" json:"item_type"`
	EmbedProvider string         `bun:"embed_provider" json:"embed_provider,omitempty"`
	EmbedData     map[string]any `bun:"embed_data,type:jsonb,nullzero" json:"embed_data,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
}

type LuxicleTag struct {
	bun.BaseModel `bun:"table:luxicle_tags"`

	LuxicleID string   `bun:"luxicle_id,pk"`
	Luxicle   *Luxicle `bun:"rel:belongs-to,join:luxicle_id=id"`
	TagID     string   `bun:"tag_id,pk"`
	Tag       *Tag     `bun:"rel:belongs-to,join:tag_id=id"`
}
