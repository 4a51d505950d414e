package store

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

type seedChallenge struct {
	title, description, rules string
	featured                  bool
	category                  string
	tags                      []string
}

var (
	seedCategories = []models.CreateCategoryInput{
		{Name: "Music", Description: "Challenges related to music, artists, albums, and genres."},
		{Name: "Movies", Description: "Challenges about films, directors, actors, and cinema history."},
		{Name: "Books", Description: "Literary challenges: favorite books, authors, and genres."},
		{Name: "Games", Description: "Video games, board games, and all things gaming."},
		{Name: "Food", Description: "Culinary challenges, recipes, and favorite dishes."},
		{Name: "Travel", Description: "Share your travel experiences and bucket lists."},
		{Name: "Technology", Description: "Gadgets, software, and tech trends."},
	}

	seedTags = []string{
		"Indie", "Rock", "Electronic", "Sci-Fi", "Fantasy", "Documentary", "Classic Literature",
		"RPG", "Strategy", "Vegan", "Street Food", "Adventure Travel", "AI", "Web Development",
		"Photography", "Filmmaking", "Writing", "Productivity", "Mindfulness", "Fitness",
	}

	seedChallenges = []seedChallenge{
		{
			title:       "Top 10 Albums of All Time",
			description: "Share your definitive list of the top 10 music albums ever released. Explain your choices!",
			rules:       "List 10 albums. Provide a brief reason for each. No ties allowed.",
			featured:    true,
			category:    "music",
			tags:        []string{"rock", "indie"},
		},
		{
			title:       "Favorite Sci-Fi Movie Trilogy",
			description: "Which science fiction movie trilogy reigns supreme? Defend your pick.",
			rules:       "Pick one trilogy. Explain why it is the best.",
			category:    "movies",
			tags:        []string{"sci-fi", "filmmaking"},
		},
		{
			title:       "Most Anticipated Video Game of Next Year",
			description: "What upcoming video game are you most excited about and why?",
			rules:       "Focus on games expected next calendar year. Detail your expectations.",
			featured:    true,
			category:    "games",
			tags:        []string{"rpg", "strategy"},
		},
	}

	seedUsers = []models.UserProfile{
		{Email: "alice@example.com", Username: "alice_wonder", DisplayName: "Alice W.", Bio: "Exploring the rabbit hole of challenges."},
		{Email: "bob@example.com", Username: "bob_the_builder", DisplayName: "Bob B.", Bio: "Can we fix it? Yes, we can (list it)!"},
		{Email: "charlie@example.com", Username: "charlie_brown", DisplayName: "Charlie B.", Bio: "Good grief, another list to make."},
	}
)

// SeedReport counts the rows a Seed call inserted.
type SeedReport struct {
	Categories int
	Tags       int
	Challenges int
	Users      int
}

// Seed inserts the sample catalog and placeholder users. Rows that already
// exist (by slug, title or username) are left alone, so Seed can run repeatedly.
// Users get passwordHash, which may be empty.
func (s *Store) Seed(ctx context.Context, passwordHash string) (SeedReport, error) {
	var report SeedReport
	now := s.timestamp()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, in := range seedCategories {
			in.Normalize()
			c := &models.Category{ID: s.newID(), Name: in.Name, Slug: in.Slug, Description: in.Description, CreatedAt: now}
			n, err := insertIgnore(ctx, tx.NewInsert().Model(c).On("CONFLICT (slug) DO NOTHING"))
			if err != nil {
				return err
			}
			report.Categories += n
		}

		for _, name := range seedTags {
			t := &models.Tag{ID: s.newID(), Name: name, Slug: models.Slugify(name), CreatedAt: now}
			n, err := insertIgnore(ctx, tx.NewInsert().Model(t).On("CONFLICT (slug) DO NOTHING"))
			if err != nil {
				return err
			}
			report.Tags += n
		}

		categoryIDs, err := slugIDs[models.Category](ctx, tx)
		if err != nil {
			return err
		}
		tagIDs, err := slugIDs[models.Tag](ctx, tx)
		if err != nil {
			return err
		}

		for _, sc := range seedChallenges {
			exists, err := tx.NewSelect().Model((*models.Challenge)(nil)).Where("c.title = ?", sc.title).Exists(ctx)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			c := &models.Challenge{
				ID:          s.newID(),
				Title:       sc.title,
				Description: sc.description,
				Rules:       sc.rules,
				OpensAt:     now,
				IsFeatured:  sc.featured,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if id, ok := categoryIDs[sc.category]; ok {
				c.CategoryID = &id
			}
			if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
				return err
			}
			ids := make([]string, 0, len(sc.tags))
			links := make([]models.ChallengeTag, 0, len(sc.tags))
			for _, slug := range sc.tags {
				if id, ok := tagIDs[slug]; ok {
					ids = append(ids, id)
					links = append(links, models.ChallengeTag{ChallengeID: c.ID, TagID: id})
				}
			}
			if err := linkTags(ctx, tx, links, ids); err != nil {
				return err
			}
			report.Challenges++
		}

		for _, u := range seedUsers {
			u.ID = s.newID()
			u.PasswordHash = passwordHash
			u.CreatedAt, u.UpdatedAt = now, now
			n, err := insertIgnore(ctx, tx.NewInsert().Model(&u).On("CONFLICT DO NOTHING"))
			if err != nil {
				return err
			}
			report.Users += n
		}
		return nil
	})
	if err != nil {
		return report, apperr.FromStore(err, "seed", "")
	}

	s.log.Infow("seed complete",
		"categories", report.Categories,
		"tags", report.Tags,
		"challenges", report.Challenges,
		"users", report.Users,
	)
	return report, nil
}

func insertIgnore(ctx context.Context, q *bun.InsertQuery) (int, error) {
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type sluggable interface {
	models.Category | models.Tag
}

func slugIDs[T sluggable](ctx context.Context, tx bun.Tx) (map[string]string, error) {
	var rows []struct {
		ID   string `bun:"id"`
		Slug string `bun:"slug"`
	}
	if err := tx.NewSelect().Model((*T)(nil)).Column("id", "slug").Scan(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(rows))
	for _, r := range rows {
		ids[r.Slug] = r.ID
	}
	return ids, nil
}
