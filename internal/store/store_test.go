package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
	"github.com/robby3000/luxicle/internal/store"
	"github.com/robby3000/luxicle/pkg/testsupport"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

type fixture struct {
	st         *store.Store
	clock      *testsupport.Clock
	users      []*models.UserProfile
	categories map[string]*models.Category
	tags       map[string]*models.Tag
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	clock := testsupport.NewClock(epoch)
	st := testsupport.NewStore(t, append([]store.Option{store.WithClock(clock.Now)}, opts...)...)
	f := &fixture{
		st:         st,
		clock:      clock,
		users:      testsupport.CreateUsers(t, st),
		categories: map[string]*models.Category{},
		tags:       map[string]*models.Tag{},
	}

	catalog := testsupport.LoadCatalog(t)
	for _, in := range catalog.Categories {
		c, err := st.CreateCategory(ctx, in)
		require.NoError(t, err)
		f.categories[c.Slug] = c
	}
	for _, in := range catalog.Tags {
		tag, err := st.CreateTag(ctx, in)
		require.NoError(t, err)
		f.tags[tag.Slug] = tag
	}
	return f
}

func (f *fixture) challenge(t *testing.T, in models.CreateChallengeInput) *models.Challenge {
	t.Helper()
	f.clock.Advance(time.Minute)
	c, err := f.st.CreateChallenge(context.Background(), in)
	require.NoError(t, err)
	return c
}

func (f *fixture) luxicle(t *testing.T, in models.CreateLuxicleInput) *models.Luxicle {
	t.Helper()
	f.clock.Advance(time.Minute)
	l, err := f.st.CreateLuxicle(context.Background(), in)
	require.NoError(t, err)
	return l
}

func TestMigrateIsRepeatable(t *testing.T) {
	st := testsupport.NewStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestGetUserProfileNotFound(t *testing.T) {
	f := newFixture(t)

	p, err := f.st.GetUserProfile(context.Background(), "missing")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateUserProfileConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.st.CreateUserProfile(context.Background(), &models.UserProfile{Email: "ADA@example.com", Username: "someone"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.st.CreateUserProfile(context.Background(), &models.UserProfile{Email: "new@example.com", Username: "Ada"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateUserProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.users[0]

	f.clock.Advance(time.Hour)
	updated, err := f.st.UpdateUserProfile(ctx, ada.ID, models.UpdateProfileInput{
		DisplayName:   strPtr("Countess"),
		TwitterHandle: strPtr("@ada"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Countess", updated.DisplayName)
	assert.Equal(t, "ada", updated.TwitterHandle)
	assert.Equal(t, ada.Bio, updated.Bio)
	assert.Equal(t, epoch.Add(time.Hour), updated.UpdatedAt.UTC())

	t.Run("username taken", func(t *testing.T) {
		_, err := f.st.UpdateUserProfile(ctx, ada.ID, models.UpdateProfileInput{Username: strPtr("Grace_H")})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("invalid patch never reaches the store", func(t *testing.T) {
		_, err := f.st.UpdateUserProfile(ctx, ada.ID, models.UpdateProfileInput{Username: strPtr("x")})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.st.UpdateUserProfile(ctx, "missing", models.UpdateProfileInput{Bio: strPtr("hi")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestFollowGraph(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada, grace, linus := f.users[0], f.users[1], f.users[2]

	_, err := f.st.Follow(ctx, ada.ID, grace.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.st.Follow(ctx, linus.ID, grace.ID)
	require.NoError(t, err)

	_, err = f.st.Follow(ctx, ada.ID, grace.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.st.Follow(ctx, ada.ID, ada.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.st.Follow(ctx, ada.ID, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	following, err := f.st.IsFollowing(ctx, ada.ID, grace.ID)
	require.NoError(t, err)
	assert.True(t, following)

	profile, err := f.st.GetUserProfile(ctx, grace.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.FollowersCount)
	assert.Equal(t, 0, profile.FollowingCount)

	followers, err := f.st.ListFollowers(ctx, grace.ID)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, linus.ID, followers[0].ID)

	followingList, err := f.st.ListFollowing(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, followingList, 1)
	assert.Equal(t, grace.ID, followingList[0].ID)

	require.NoError(t, f.st.Unfollow(ctx, ada.ID, grace.ID))
	assert.ErrorIs(t, f.st.Unfollow(ctx, ada.ID, grace.ID), apperr.ErrNotFound)
}

func TestSelfFollowCanBeAllowed(t *testing.T) {
	f := newFixture(t, store.WithAllowSelfFollow(true))
	ada := f.users[0]

	_, err := f.st.Follow(context.Background(), ada.ID, ada.ID)
	assert.NoError(t, err)
}

func TestSearchUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	found, err := f.st.SearchUsers(ctx, models.UserSearch{Query: "gra"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "grace_h", found[0].Username)

	found, err = f.st.SearchUsers(ctx, models.UserSearch{Query: "linus t."})
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = f.st.SearchUsers(ctx, models.UserSearch{Query: "_"})
	require.NoError(t, err)
	assert.Len(t, found, 1, "underscore is matched literally")

	_, err = f.st.SearchUsers(ctx, models.UserSearch{Query: " "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCategoriesAndTags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	categories, err := f.st.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Movies", categories[0].Name)

	_, err = f.st.CreateCategory(ctx, models.CreateCategoryInput{Name: "Music"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.st.GetCategory(ctx, f.categories["music"].ID)
	require.NoError(t, err)
	assert.Equal(t, "music", got.Slug)

	tags, err := f.st.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Indie", "Rock", "Sci-Fi"}, []string{tags[0].Name, tags[1].Name, tags[2].Name})
}

func TestChallengeCreateAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	music := f.categories["music"].ID
	movies := f.categories["movies"].ID

	albums := f.challenge(t, models.CreateChallengeInput{
		Title:      "Top 10 Albums",
		CategoryID: &music,
		IsFeatured: true,
		TagIDs:     []string{f.tags["rock"].ID, f.tags["indie"].ID},
	})
	closed := epoch
	trilogy := f.challenge(t, models.CreateChallengeInput{
		Title:      "Favorite Trilogy",
		CategoryID: &movies,
		OpensAt:    epoch.Add(-48 * time.Hour),
		ClosesAt:   &closed,
		TagIDs:     []string{f.tags["sci-fi"].ID},
	})
	upcoming := f.challenge(t, models.CreateChallengeInput{
		Title:      "Next Big Album",
		CategoryID: &music,
		OpensAt:    epoch.Add(72 * time.Hour),
	})

	assert.Len(t, albums.Tags, 2)
	require.NotNil(t, albums.Category)
	assert.Equal(t, "music", albums.Category.Slug)

	all, err := f.st.ListChallenges(ctx, models.ChallengeFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{upcoming.ID, albums.ID, trilogy.ID}, challengeIDs(all))

	cases := []struct {
		name   string
		filter models.ChallengeFilter
		want   []string
	}{
		{"category", models.ChallengeFilter{CategoryID: music}, []string{upcoming.ID, albums.ID}},
		{"featured", models.ChallengeFilter{Featured: true}, []string{albums.ID}},
		{"active", models.ChallengeFilter{Active: true}, []string{albums.ID}},
		{"search", models.ChallengeFilter{Search: "album"}, []string{upcoming.ID, albums.ID}},
		{"any tag", models.ChallengeFilter{TagIDs: []string{f.tags["sci-fi"].ID, f.tags["indie"].ID}}, []string{albums.ID, trilogy.ID}},
		{"category and tag", models.ChallengeFilter{CategoryID: movies, TagIDs: []string{f.tags["rock"].ID}}, []string{}},
		{"limit", models.ChallengeFilter{Limit: 1}, []string{upcoming.ID}},
		{"offset", models.ChallengeFilter{Limit: 1, Offset: 2}, []string{trilogy.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.st.ListChallenges(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, challengeIDs(got))
		})
	}

	tags, err := f.st.ListPopularTags(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, 1, tags[0].UsageCount)
}

func TestCreateChallengeRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before := epoch.Add(-time.Hour)
	_, err := f.st.CreateChallenge(ctx, models.CreateChallengeInput{Title: "Backwards", OpensAt: epoch, ClosesAt: &before})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.st.CreateChallenge(ctx, models.CreateChallengeInput{Title: "Ghost tag", TagIDs: []string{"nope"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	all, err := f.st.ListChallenges(ctx, models.ChallengeFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "failed transactions leave nothing behind")

	_, err = f.st.GetChallenge(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateLuxicle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.users[0]
	challenge := f.challenge(t, models.CreateChallengeInput{Title: "Top 10 Albums"})

	l := f.luxicle(t, models.CreateLuxicleInput{
		UserID:      ada.ID,
		ChallengeID: challenge.ID,
		Title:       "My albums",
		Items: []models.LuxicleItemInput{
			{Position: 2, Title: "Second"},
			{Position: 1, Title: "First", EmbedData: map[string]any{"provider": "spotify"}},
		},
		TagIDs: []string{f.tags["rock"].ID},
	})

	require.NotNil(t, l.User)
	assert.Equal(t, ada.Username, l.User.Username)
	require.Len(t, l.Items, 2)
	assert.Equal(t, "First", l.Items[0].Title)
	assert.Equal(t, "spotify", l.Items[0].EmbedData["provider"])
	assert.Equal(t, []string{f.tags["rock"].ID}, l.TagIDs())
	assert.True(t, l.IsPublished)

	c, err := f.st.GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.SubmissionCount)

	popular, err := f.st.ListPopularTags(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "rock", popular[0].Slug)
	assert.Equal(t, 1, popular[0].UsageCount)

	require.NoError(t, f.st.RecountTagUsage(ctx))
	popular, err = f.st.ListPopularTags(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, popular[0].UsageCount)

	_, err = f.st.CreateLuxicle(ctx, models.CreateLuxicleInput{UserID: ada.ID, ChallengeID: "missing", Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateLuxicleOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada, grace := f.users[0], f.users[1]
	challenge := f.challenge(t, models.CreateChallengeInput{Title: "Top 10 Albums"})
	l := f.luxicle(t, models.CreateLuxicleInput{UserID: ada.ID, ChallengeID: challenge.ID, Title: "Original"})

	_, err := f.st.UpdateLuxicle(ctx, l.ID, grace.ID, models.UpdateLuxicleInput{Title: strPtr("Hijacked")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	unchanged, err := f.st.GetLuxicle(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", unchanged.Title)

	_, err = f.st.UpdateLuxicle(ctx, "missing", ada.ID, models.UpdateLuxicleInput{Title: strPtr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	unpublish := false
	updated, err := f.st.UpdateLuxicle(ctx, l.ID, ada.ID, models.UpdateLuxicleInput{Title: strPtr("Renamed"), IsPublished: &unpublish})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.False(t, updated.IsPublished)
}

func TestSearchLuxiclesComposition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada, grace := f.users[0], f.users[1]
	music := f.categories["music"].ID
	movies := f.categories["movies"].ID
	albums := f.challenge(t, models.CreateChallengeInput{Title: "Albums"})
	films := f.challenge(t, models.CreateChallengeInput{Title: "Films"})
	draft := false

	rock := f.luxicle(t, models.CreateLuxicleInput{UserID: ada.ID, ChallengeID: albums.ID, CategoryID: &music,
		Title: "Rock classics", TagIDs: []string{f.tags["rock"].ID}})
	indie := f.luxicle(t, models.CreateLuxicleInput{UserID: grace.ID, ChallengeID: albums.ID, CategoryID: &music,
		Title: "Indie gems", Description: "quiet rock too", TagIDs: []string{f.tags["indie"].ID}})
	scifi := f.luxicle(t, models.CreateLuxicleInput{UserID: ada.ID, ChallengeID: films.ID, CategoryID: &movies,
		Title: "Space operas", TagIDs: []string{f.tags["sci-fi"].ID}})
	f.luxicle(t, models.CreateLuxicleInput{UserID: ada.ID, ChallengeID: albums.ID, CategoryID: &music,
		Title: "Unfinished rock", IsPublished: &draft})

	cases := []struct {
		name   string
		search models.LuxicleSearch
		want   []string
	}{
		{"published only", models.LuxicleSearch{}, []string{scifi.ID, indie.ID, rock.ID}},
		{"text matches title or description", models.LuxicleSearch{Query: "rock"}, []string{indie.ID, rock.ID}},
		{"text and category", models.LuxicleSearch{Query: "rock", CategoryID: movies}, []string{}},
		{"user", models.LuxicleSearch{UserID: ada.ID}, []string{scifi.ID, rock.ID}},
		{"challenge and user", models.LuxicleSearch{ChallengeID: albums.ID, UserID: grace.ID}, []string{indie.ID}},
		{"any tag", models.LuxicleSearch{TagIDs: []string{f.tags["indie"].ID, f.tags["sci-fi"].ID}}, []string{scifi.ID, indie.ID}},
		{"empty tag list is no filter", models.LuxicleSearch{TagIDs: []string{}, CategoryID: music}, []string{indie.ID, rock.ID}},
		{"wildcards are literal", models.LuxicleSearch{Query: "%"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.st.SearchLuxicles(ctx, tc.search)
			require.NoError(t, err)
			assert.Equal(t, tc.want, luxicleIDs(got))
		})
	}

	byChallenge, err := f.st.ListLuxiclesByChallenge(ctx, films.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{scifi.ID}, luxicleIDs(byChallenge))

	byUser, err := f.st.ListLuxiclesByUser(ctx, grace.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{indie.ID}, luxicleIDs(byUser))

	_, err = f.st.SearchLuxicles(ctx, models.LuxicleSearch{Offset: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSocialPassthrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada, grace := f.users[0], f.users[1]
	challenge := f.challenge(t, models.CreateChallengeInput{Title: "Albums"})
	l := f.luxicle(t, models.CreateLuxicleInput{UserID: ada.ID, ChallengeID: challenge.ID, Title: "Mine"})

	_, err := f.st.CreateComment(ctx, l.ID, grace.ID, "  great list ")
	require.NoError(t, err)
	_, err = f.st.CreateComment(ctx, l.ID, grace.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	comments, err := f.st.ListComments(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "great list", comments[0].Body)

	_, err = f.st.CreateReaction(ctx, l.ID, grace.ID, "like")
	require.NoError(t, err)
	_, err = f.st.CreateReaction(ctx, l.ID, grace.ID, "LIKE")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	reactions, err := f.st.ListReactions(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)

	_, err = f.st.SendMessage(ctx, ada.ID, grace.ID, "hello")
	require.NoError(t, err)
	inbox, err := f.st.ListMessages(ctx, grace.ID)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)

	_, err = f.st.CreateFlag(ctx, l.ID, grace.ID, "spam")
	require.NoError(t, err)
	flags, err := f.st.ListFlags(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, flags, 1)
}

func TestSocialWritesRequireExistingTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada, grace := f.users[0], f.users[1]

	tests := []struct {
		name  string
		write func() error
	}{
		{"comment", func() error {
			_, err := f.st.CreateComment(ctx, "missing", grace.ID, "nice")
			return err
		}},
		{"reaction", func() error {
			_, err := f.st.CreateReaction(ctx, "missing", grace.ID, "like")
			return err
		}},
		{"flag", func() error {
			_, err := f.st.CreateFlag(ctx, "missing", grace.ID, "spam")
			return err
		}},
		{"message", func() error {
			_, err := f.st.SendMessage(ctx, ada.ID, "missing", "hello")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.write(), apperr.ErrNotFound)
		})
	}

	comments, err := f.st.ListComments(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, comments)
	flags, err := f.st.ListFlags(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestSeedIsRepeatable(t *testing.T) {
	ctx := context.Background()
	st := testsupport.NewStore(t)

	first, err := st.Seed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, store.SeedReport{Categories: 7, Tags: 20, Challenges: 3, Users: 3}, first)

	second, err := st.Seed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, store.SeedReport{}, second)

	featured, err := st.ListChallenges(ctx, models.ChallengeFilter{Featured: true})
	require.NoError(t, err)
	assert.Len(t, featured, 2)

	alice, err := st.GetUserProfileByUsername(ctx, "alice_wonder")
	require.NoError(t, err)
	assert.Equal(t, "Alice W.", alice.DisplayName)
}

func TestConfirmEmailAndPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.users[0]

	confirmed, err := f.st.ConfirmEmail(ctx, ada.ID)
	require.NoError(t, err)
	require.NotNil(t, confirmed.EmailConfirmedAt)
	first := *confirmed.EmailConfirmedAt

	f.clock.Advance(time.Hour)
	again, err := f.st.ConfirmEmail(ctx, ada.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*again.EmailConfirmedAt))

	require.NoError(t, f.st.SetPassword(ctx, ada.ID, "hash"))
	byEmail, err := f.st.GetUserByEmail(ctx, " ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	assert.ErrorIs(t, f.st.SetPassword(ctx, "missing", "hash"), apperr.ErrNotFound)
}

func challengeIDs(cs []models.Challenge) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

func luxicleIDs(ls []models.Luxicle) []string {
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	return ids
}
