// Package store holds the data-access functions over the relational store.
//
// Every method is a single round trip, or a single transaction when child rows
// are written with their parent. Missing rows come back as apperr NotFound
// errors and every other failure is classified through apperr.FromStore.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

// Store wraps a bun database handle.
type Store struct {
	db              *bun.DB
	log             *zap.SugaredLogger
	now             func() time.Time
	newID           func() string
	allowSelfFollow bool
}

type Option func(*Store)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for timestamps and the active-challenge filter.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithAllowSelfFollow lets a user follow themselves. Rejected by default.
func WithAllowSelfFollow(allow bool) Option {
	return func(s *Store) {
		s.allowSelfFollow = allow
	}
}

func New(db *bun.DB, opts ...Option) *Store {
	db.RegisterModel((*models.ChallengeTag)(nil), (*models.LuxicleTag)(nil))

	s := &Store{
		db:    db,
		log:   zap.NewNop().Sugar(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) isPostgres() bool {
	return s.db.Dialect().Name() == dialect.PG
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

var tables = []any{
	(*models.UserProfile)(nil),
	(*models.Category)(nil),
	(*models.Tag)(nil),
	(*models.Challenge)(nil),
	(*models.ChallengeTag)(nil),
	(*models.Luxicle)(nil),
	(*models.LuxicleTag)(nil),
	(*models.LuxicleItem)(nil),
	(*models.Follow)(nil),
	(*models.Comment)(nil),
	(*models.Reaction)(nil),
	(*models.Message)(nil),
	(*models.Flag)(nil),
}

var indexes = []struct {
	name    string
	model   any
	columns []string
}{
	{"challenges_opens_at_idx", (*models.Challenge)(nil), []string{"opens_at"}},
	{"luxicles_user_id_idx", (*models.Luxicle)(nil), []string{"user_id"}},
	{"luxicles_challenge_id_idx", (*models.Luxicle)(nil), []string{"challenge_id"}},
	{"luxicle_items_luxicle_id_idx", (*models.LuxicleItem)(nil), []string{"luxicle_id", "position"}},
	{"follows_followee_id_idx", (*models.Follow)(nil), []string{"followee_id"}},
}

// Migrate creates missing tables and indexes. It never alters existing ones.
func (s *Store) Migrate(ctx context.Context) error {
	for _, model := range tables {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return apperr.FromStore(err, "schema", "tables")
		}
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return apperr.FromStore(err, "schema", idx.name)
		}
	}
	s.log.Infow("schema migrated", "tables", len(tables), "indexes", len(indexes))
	return nil
}

// likePattern escapes LIKE wildcards in q and wraps it for a substring match.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(q)) + "%"
}

// classify is FromStore with a default resource name for collection reads.
func classify(err error, resource string) error {
	return apperr.FromStore(err, resource, "")
}
