package models

import (
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	MaxLimit = 100

	DefaultChallengeLimit = 10
	DefaultSearchLimit    = 20
)

var (
	usernamePattern  = regexp.MustCompile(`^[a-z0-9_]+$`)
	twitterPattern   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	instagramPattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
	httpURLPattern   = regexp.MustCompile(`^https?://`)
)

// RegisterInput is the payload of a password sign-up.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

func (in *RegisterInput) Normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = NormalizeUsername(in.Username)
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email,
			validation.Required.Error("email is required"),
			is.EmailFormat.Error("invalid email format")),
		validation.Field(&in.Password,
			validation.Required.Error("password is required"),
			validation.Length(8, 72).Error("password must be at least 8 characters long")),
		validation.Field(&in.Username,
			validation.Required.Error("username is required"),
			validation.Length(3, 30).Error("username must be between 3 and 30 characters long"),
			validation.Match(usernamePattern).Error("username may only contain letters, numbers and underscores")),
	)
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in SignInInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required.Error("email is required")),
		validation.Field(&in.Password, validation.Required.Error("password is required")),
	)
}

// UpdateProfileInput is a partial profile patch. Nil fields are left untouched.
type UpdateProfileInput struct {
	Username            *string `json:"username,omitempty"`
	DisplayName         *string `json:"display_name,omitempty"`
	Bio                 *string `json:"bio,omitempty"`
	AvatarURL           *string `json:"avatar_url,omitempty"`
	CoverURL            *string `json:"cover_url,omitempty"`
	Location            *string `json:"location,omitempty"`
	WebsiteURL          *string `json:"website_url,omitempty"`
	TwitterHandle       *string `json:"twitter_handle,omitempty"`
	InstagramHandle     *string `json:"instagram_handle,omitempty"`
	OnboardingCompleted *bool   `json:"onboarding_completed,omitempty"`
}

func (in *UpdateProfileInput) Normalize() {
	if in.Username != nil {
		v := NormalizeUsername(*in.Username)
		in.Username = &v
	}
	if in.TwitterHandle != nil {
		v := normalizeHandle(*in.TwitterHandle)
		in.TwitterHandle = &v
	}
	if in.InstagramHandle != nil {
		v := normalizeHandle(*in.InstagramHandle)
		in.InstagramHandle = &v
	}
	for _, f := range []**string{&in.DisplayName, &in.Bio, &in.Location, &in.WebsiteURL} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}
}

func (in UpdateProfileInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.NilOrNotEmpty.Error("username cannot be empty"),
			validation.Length(3, 30),
			validation.Match(usernamePattern).Error("username may only contain letters, numbers and underscores")),
		validation.Field(&in.DisplayName, validation.Length(0, 50)),
		validation.Field(&in.Bio, validation.Length(0, 160)),
		validation.Field(&in.Location, validation.Length(0, 100)),
		validation.Field(&in.WebsiteURL,
			validation.Length(0, 100),
			is.URL,
			validation.Match(httpURLPattern).Error("must be an http or https URL")),
		validation.Field(&in.TwitterHandle,
			validation.Length(0, 15),
			validation.Match(twitterPattern)),
		validation.Field(&in.InstagramHandle,
			validation.Length(0, 30),
			validation.Match(instagramPattern)),
	)
}

func (in UpdateProfileInput) IsEmpty() bool {
	return len(in.Columns()) == 0
}

// Columns lists the columns the patch writes, in table order.
func (in UpdateProfileInput) Columns() []string {
	var cols []string
	add := func(set bool, col string) {
		if set {
			cols = append(cols, col)
		}
	}
	add(in.Username != nil, "username")
	add(in.DisplayName != nil, "display_name")
	add(in.Bio != nil, "bio")
	add(in.AvatarURL != nil, "avatar_url")
	add(in.CoverURL != nil, "cover_url")
	add(in.Location != nil, "location")
	add(in.WebsiteURL != nil, "website_url")
	add(in.TwitterHandle != nil, "twitter_handle")
	add(in.InstagramHandle != nil, "instagram_handle")
	add(in.OnboardingCompleted != nil, "onboarding_completed")
	return cols
}

// ApplyTo copies the provided fields onto p.
func (in UpdateProfileInput) ApplyTo(p *UserProfile) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(&p.Username, in.Username)
	setStr(&p.DisplayName, in.DisplayName)
	setStr(&p.Bio, in.Bio)
	setStr(&p.AvatarURL, in.AvatarURL)
	setStr(&p.CoverURL, in.CoverURL)
	setStr(&p.Location, in.Location)
	setStr(&p.WebsiteURL, in.WebsiteURL)
	setStr(&p.TwitterHandle, in.TwitterHandle)
	setStr(&p.InstagramHandle, in.InstagramHandle)
	if in.OnboardingCompleted != nil {
		p.OnboardingCompleted = *in.OnboardingCompleted
	}
}

type CreateCategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (in *CreateCategoryInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
}

func (in CreateCategoryInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&in.Slug, validation.Required, validation.Length(1, 60)),
	)
}

type CreateTagInput struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (in *CreateTagInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
}

func (in CreateTagInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&in.Slug, validation.Required, validation.Length(1, 60)),
	)
}

type CreateChallengeInput struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Rules         string     `json:"rules"`
	CoverImageURL string     `json:"cover_image_url"`
	CategoryID    *string    `json:"category_id"`
	OpensAt       time.Time  `json:"opens_at"`
	ClosesAt      *time.Time `json:"closes_at"`
	IsFeatured    bool       `json:"is_featured"`
	TagIDs        []string   `json:"tag_ids"`
}

// Normalize defaults OpensAt to now and dedupes the tag ids.
func (in *CreateChallengeInput) Normalize(now time.Time) {
	in.Title = strings.TrimSpace(in.Title)
	if in.OpensAt.IsZero() {
		in.OpensAt = now
	}
	in.OpensAt = in.OpensAt.UTC()
	if in.ClosesAt != nil {
		v := in.ClosesAt.UTC()
		in.ClosesAt = &v
	}
	if in.CategoryID != nil && *in.CategoryID == "" {
		in.CategoryID = nil
	}
	in.TagIDs = NormalizeIDs(in.TagIDs)
}

func (in CreateChallengeInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.CoverImageURL, is.URL),
		validation.Field(&in.ClosesAt, validation.By(func(any) error {
			if in.ClosesAt != nil && in.ClosesAt.Before(in.OpensAt) {
				return validation.NewError("validation_closes_before_opens", "must not be before opens_at")
			}
			return nil
		})),
	)
}

type LuxicleItemInput struct {
	Position      int            `json:"position"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	MediaURL      string         `json:"media_url"`
	ItemType      string         `json:"item_type"`
	EmbedProvider string         `json:"embed_provider"`
	EmbedData     map[string]any `json:"embed_data"`
}

func (in LuxicleItemInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Position, validation.Min(0)),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.MediaURL, is.URL),
	)
}

type CreateLuxicleInput struct {
	UserID      string             `json:"-"`
	ChallengeID string             `json:"challenge_id"`
	CategoryID  *string            `json:"category_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	IsPublished *bool              `json:"is_published"`
	Items       []LuxicleItemInput `json:"items"`
	TagIDs      []string           `json:"tag_ids"`
}

// Normalize numbers unpositioned items by their order and dedupes tag ids.
func (in *CreateLuxicleInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	if in.CategoryID != nil && *in.CategoryID == "" {
		in.CategoryID = nil
	}
	for i := range in.Items {
		if in.Items[i].Position == 0 {
			in.Items[i].Position = i + 1
		}
	}
	in.TagIDs = NormalizeIDs(in.TagIDs)
}

func (in CreateLuxicleInput) Published() bool {
	return in.IsPublished == nil || *in.IsPublished
}

func (in CreateLuxicleInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.UserID, validation.Required),
		validation.Field(&in.ChallengeID, validation.Required),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Items),
	)
}

type UpdateLuxicleInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
	IsPublished *bool   `json:"is_published,omitempty"`
}

func (in UpdateLuxicleInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
	)
}

func (in UpdateLuxicleInput) Columns() []string {
	var cols []string
	if in.Title != nil {
		cols = append(cols, "title")
	}
	if in.Description != nil {
		cols = append(cols, "description")
	}
	if in.CategoryID != nil {
		cols = append(cols, "category_id")
	}
	if in.IsPublished != nil {
		cols = append(cols, "is_published")
	}
	return cols
}

// ApplyTo copies the provided fields onto l. An empty CategoryID clears it.
func (in UpdateLuxicleInput) ApplyTo(l *Luxicle) {
	if in.Title != nil {
		l.Title = *in.Title
	}
	if in.Description != nil {
		l.Description = *in.Description
	}
	if in.CategoryID != nil {
		if *in.CategoryID == "" {
			l.CategoryID = nil
		} else {
			v := *in.CategoryID
			l.CategoryID = &v
		}
	}
	if in.IsPublished != nil {
		l.IsPublished = *in.IsPublished
	}
}

// ChallengeFilter selects challenges. Featured and Active only filter when true.
type ChallengeFilter struct {
	CategoryID string   `json:"category_id" query:"category_id"`
	TagIDs     []string `json:"tag_ids" query:"tag_ids"`
	Search     string   `json:"search" query:"search"`
	Featured   bool     `json:"featured" query:"featured"`
	Active     bool     `json:"active" query:"active"`
	Limit      int      `json:"limit" query:"limit"`
	Offset     int      `json:"offset" query:"offset"`
}

// Normalize returns the canonical form of f, so equal filters build equal cache keys.
func (f ChallengeFilter) Normalize() ChallengeFilter {
	f.CategoryID = strings.TrimSpace(f.CategoryID)
	f.Search = strings.TrimSpace(f.Search)
	f.TagIDs = NormalizeIDs(f.TagIDs)
	f.Limit = ClampLimit(f.Limit, DefaultChallengeLimit)
	return f
}

func (f ChallengeFilter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Offset, validation.Min(0)),
		validation.Field(&f.Search, validation.Length(0, 200)),
	)
}

type LuxicleSearch struct {
	Query       string   `json:"query" query:"query"`
	CategoryID  string   `json:"category_id" query:"category_id"`
	UserID      string   `json:"user_id" query:"user_id"`
	ChallengeID string   `json:"challenge_id" query:"challenge_id"`
	TagIDs      []string `json:"tag_ids" query:"tag_ids"`
	Limit       int      `json:"limit" query:"limit"`
	Offset      int      `json:"offset" query:"offset"`
}

func (s LuxicleSearch) Normalize() LuxicleSearch {
	s.Query = strings.TrimSpace(s.Query)
	s.CategoryID = strings.TrimSpace(s.CategoryID)
	s.UserID = strings.TrimSpace(s.UserID)
	s.ChallengeID = strings.TrimSpace(s.ChallengeID)
	s.TagIDs = NormalizeIDs(s.TagIDs)
	s.Limit = ClampLimit(s.Limit, DefaultSearchLimit)
	return s
}

func (s LuxicleSearch) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Offset, validation.Min(0)),
		validation.Field(&s.Query, validation.Length(0, 200)),
	)
}

type UserSearch struct {
	Query  string `json:"query" query:"query"`
	Limit  int    `json:"limit" query:"limit"`
	Offset int    `json:"offset" query:"offset"`
}

func (s UserSearch) Normalize() UserSearch {
	s.Query = strings.TrimSpace(s.Query)
	s.Limit = ClampLimit(s.Limit, DefaultSearchLimit)
	return s
}

func (s UserSearch) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Query, validation.Required.Error("search query is required"), validation.Length(1, 100)),
		validation.Field(&s.Offset, validation.Min(0)),
	)
}

// ClampLimit applies def to a non-positive limit and caps it at MaxLimit.
func ClampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// NormalizeIDs trims, dedupes and sorts ids. Empty input yields nil.
func NormalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
