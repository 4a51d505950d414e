package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"Music":               "music",
		"Sci-Fi":              "sci-fi",
		"Classic Literature":  "classic-literature",
		"RPG":                 "rpg",
		"StreetFood":          "street-food",
		"  Web  Development ": "web-development",
		"Top10 Albums":        "top-10-albums",
		"AI & ML!":            "ai-ml",
		"東京":                  "東京",
		"音楽 アニメ":              "音楽-アニメ",
		"Кино":                "кино",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func TestSlugifyWithoutWordCharacters(t *testing.T) {
	notes := Slugify("🎵🎶")
	assert.Regexp(t, `^x-[0-9a-z]+$`, notes)
	assert.Equal(t, notes, Slugify(" 🎵🎶 "), "surrounding space is ignored")
	assert.NotEqual(t, notes, Slugify("🎸"))
	assert.Equal(t, "", Slugify("   "))

	in := CreateTagInput{Name: "★★★"}
	in.Normalize()
	assert.NotEmpty(t, in.Slug)
	assert.NoError(t, in.Validate())
}

func TestChallengeIsActive(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Challenge{OpensAt: past}).IsActive(now))
	assert.True(t, (&Challenge{OpensAt: now, ClosesAt: &future}).IsActive(now))
	assert.False(t, (&Challenge{OpensAt: future}).IsActive(now))
	assert.False(t, (&Challenge{OpensAt: past, ClosesAt: &now}).IsActive(now))
}

func TestIntersectsAny(t *testing.T) {
	assert.True(t, IntersectsAny([]string{"a"}, nil))
	assert.True(t, IntersectsAny(nil, nil))
	assert.True(t, IntersectsAny([]string{"a", "b"}, []string{"c", "b"}))
	assert.False(t, IntersectsAny([]string{"a"}, []string{"c"}))
	assert.False(t, IntersectsAny(nil, []string{"c"}))
}

func TestNormalizeIDs(t *testing.T) {
	assert.Nil(t, NormalizeIDs(nil))
	assert.Nil(t, NormalizeIDs([]string{" ", ""}))
	assert.Equal(t, []string{"a", "b", "c"}, NormalizeIDs([]string{"c", "a", " b", "a"}))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20))
	assert.Equal(t, 20, ClampLimit(-3, 20))
	assert.Equal(t, 7, ClampLimit(7, 20))
	assert.Equal(t, MaxLimit, ClampLimit(1000, 20))
}

func TestRegisterInputValidate(t *testing.T) {
	valid := RegisterInput{Email: " Alice@Example.com ", Password: "hunter2hunter2", Username: "Alice_W"}
	valid.Normalize()
	require.NoError(t, valid.Validate())
	assert.Equal(t, "alice@example.com", valid.Email)
	assert.Equal(t, "alice_w", valid.Username)

	cases := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"missing email", RegisterInput{Password: "longenough", Username: "abc"}, "email"},
		{"bad email", RegisterInput{Email: "nope", Password: "longenough", Username: "abc"}, "email"},
		{"short password", RegisterInput{Email: "a@b.co", Password: "short", Username: "abc"}, "password"},
		{"short username", RegisterInput{Email: "a@b.co", Password: "longenough", Username: "ab"}, "username"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestUpdateProfileInput(t *testing.T) {
	in := UpdateProfileInput{
		Username:        strPtr(" NewName "),
		TwitterHandle:   strPtr("@luxi"),
		InstagramHandle: strPtr("@luxi.gram"),
		WebsiteURL:      strPtr("https://luxicle.example"),
	}
	in.Normalize()
	require.NoError(t, in.Validate())
	assert.Equal(t, "newname", *in.Username)
	assert.Equal(t, "luxi", *in.TwitterHandle)
	assert.Equal(t, "luxi.gram", *in.InstagramHandle)
	assert.Equal(t, []string{"username", "website_url", "twitter_handle", "instagram_handle"}, in.Columns())

	p := &UserProfile{Username: "old", Bio: "kept"}
	in.ApplyTo(p)
	assert.Equal(t, "newname", p.Username)
	assert.Equal(t, "kept", p.Bio)

	assert.True(t, UpdateProfileInput{}.IsEmpty())

	bad := []UpdateProfileInput{
		{Username: strPtr("")},
		{Username: strPtr("no spaces")},
		{Bio: strPtr(strings.Repeat("x", 161))},
		{WebsiteURL: strPtr("ftp://files.example")},
		{TwitterHandle: strPtr("waytoolonghandle_x")},
	}
	for _, b := range bad {
		b.Normalize()
		assert.Error(t, b.Validate())
	}
}

func TestCreateChallengeInput(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	in := CreateChallengeInput{Title: " Best Albums ", TagIDs: []string{"t2", "t1", "t2"}, CategoryID: strPtr("")}
	in.Normalize(now)
	require.NoError(t, in.Validate())
	assert.Equal(t, "Best Albums", in.Title)
	assert.Equal(t, now, in.OpensAt)
	assert.Nil(t, in.CategoryID)
	assert.Equal(t, []string{"t1", "t2"}, in.TagIDs)

	before := now.Add(-time.Hour)
	in.ClosesAt = &before
	assert.Error(t, in.Validate())

	assert.Error(t, (&CreateChallengeInput{}).Validate())
}

func TestCreateLuxicleInput(t *testing.T) {
	in := CreateLuxicleInput{
		UserID:      "u1",
		ChallengeID: "c1",
		Title:       "My list",
		Items:       []LuxicleItemInput{{Title: "first"}, {Title: "second"}},
	}
	in.Normalize()
	require.NoError(t, in.Validate())
	assert.Equal(t, 1, in.Items[0].Position)
	assert.Equal(t, 2, in.Items[1].Position)
	assert.True(t, in.Published())

	in.Items = append(in.Items, LuxicleItemInput{Position: 3})
	assert.Error(t, in.Validate())

	assert.Error(t, (&CreateLuxicleInput{Title: "x"}).Validate())
}

func TestUpdateLuxicleInput(t *testing.T) {
	published := false
	in := UpdateLuxicleInput{Title: strPtr("renamed"), CategoryID: strPtr(""), IsPublished: &published}
	require.NoError(t, in.Validate())
	assert.Equal(t, []string{"title", "category_id", "is_published"}, in.Columns())

	cat := "c1"
	l := &Luxicle{Title: "old", CategoryID: &cat, IsPublished: true}
	in.ApplyTo(l)
	assert.Equal(t, "renamed", l.Title)
	assert.Nil(t, l.CategoryID)
	assert.False(t, l.IsPublished)

	assert.Error(t, UpdateLuxicleInput{Title: strPtr("")}.Validate())
}

func TestFilterNormalize(t *testing.T) {
	a := ChallengeFilter{TagIDs: []string{"b", "a"}, Search: " x "}.Normalize()
	b := ChallengeFilter{TagIDs: []string{"a", "b", "a"}, Search: "x", Limit: DefaultChallengeLimit}.Normalize()
	assert.Equal(t, a, b)

	assert.Error(t, ChallengeFilter{Offset: -1}.Validate())
	assert.Equal(t, DefaultSearchLimit, LuxicleSearch{}.Normalize().Limit)

	assert.Error(t, UserSearch{Query: "  "}.Normalize().Validate())
	assert.NoError(t, UserSearch{Query: "al"}.Normalize().Validate())
}
