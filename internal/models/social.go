package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Comment struct {
	bun.BaseModel `bun:"table:comments,alias:cm"`

	ID        string    `bun:"id,pk" json:"id"`
	LuxicleID string    `bun:"luxicle_id,notnull" json:"luxicle_id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Body      string    `bun:"body,notnull" json:"body"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type Reaction struct {
	bun.BaseModel `bun:"table:reactions,alias:r"`

	ID        string    `bun:"id,pk" json:"id"`
	LuxicleID string    `bun:"luxicle_id,notnull,unique:reactions_once" json:"luxicle_id"`
	UserID    string    `bun:"user_id,notnull,unique:reactions_once" json:"user_id"`
	Kind      string    `bun:"kind,notnull,unique:reactions_once" json:"kind"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID          string     `bun:"id,pk" json:"id"`
	SenderID    string     `bun:"sender_id,notnull" json:"sender_id"`
	RecipientID string     `bun:"recipient_id,notnull" json:"recipient_id"`
	Body        string     `bun:"body,notnull" json:"body"`
	ReadAt      *time.Time `bun:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Flag is a moderation report against a luxicle.
type Flag struct {
	bun.BaseModel `bun:"table:flags,alias:fl"`

	ID         string    `bun:"id,pk" json:"id"`
	LuxicleID  string    `bun:"luxicle_id,notnull" json:"luxicle_id"`
	ReporterID string    `bun:"reporter_id,notnull" json:"reporter_id"`
	Reason     string    `bun:"reason,notnull" json:"reason"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}
