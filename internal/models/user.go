package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserProfile is the public profile row. The id matches the auth identity and never changes.
type UserProfile struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                  string     `bun:"id,pk" json:"id"`
	Email               string     `bun:"email,notnull,unique" json:"email"`
	Username            string     `bun:"username,notnull,unique" json:"username"`
	DisplayName         string     `bun:"display_name" json:"display_name"`
	Bio                 string     `bun:"bio" json:"bio"`
	AvatarURL           string     `bun:"avatar_url" json:"avatar_url"`
	CoverURL            string     `bun:"cover_url" json:"cover_url"`
	Location            string     `bun:"location" json:"location"`
	WebsiteURL          string     `bun:"website_url" json:"website_url"`
	TwitterHandle       string     `bun:"twitter_handle" json:"twitter_handle"`
	InstagramHandle     string     `bun:"instagram_handle" json:"instagram_handle"`
	OnboardingCompleted bool       `bun:"onboarding_completed,notnull" json:"onboarding_completed"`
	PasswordHash        string     `bun:"password_hash" json:"-"`
	EmailConfirmedAt    *time.Time `bun:"email_confirmed_at" json:"email_confirmed_at,omitempty"`
	CreatedAt           time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	// Derived from the follows table, never persisted.
	FollowersCount int `bun:"followers_count,scanonly" json:"followers_count"`
	FollowingCount int `bun:"following_count,scanonly" json:"following_count"`
}

// Follow is one edge of the follow graph.
type Follow struct {
	bun.BaseModel `bun:"table:follows,alias:f"`

	ID         string    `bun:"id,pk" json:"id"`
	FollowerID string    `bun:"follower_id,notnull,unique:follows_pair" json:"follower_id"`
	FolloweeID string    `bun:"followee_id,notnull,unique:follows_pair" json:"followee_id"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}
