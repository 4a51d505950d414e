package testsupport

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/robby3000/luxicle/internal/models"
	"github.com/robby3000/luxicle/internal/store"
)

// NewSQLiteDB opens a private in-memory SQLite database closed at test cleanup.
// One connection keeps every query on the same memory database.
func NewSQLiteDB(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewStore returns a migrated store over a fresh in-memory database.
func NewStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()

	st := store.New(NewSQLiteDB(t), opts...)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

// CreateUsers inserts the users fixture and returns the stored rows.
func CreateUsers(t testing.TB, st *store.Store) []*models.UserProfile {
	t.Helper()

	fixtures := Users(t)
	out := make([]*models.UserProfile, 0, len(fixtures))
	for i := range fixtures {
		u, err := st.CreateUserProfile(context.Background(), &fixtures[i])
		if err != nil {
			t.Fatalf("create user %s: %v", fixtures[i].Username, err)
		}
		out = append(out, u)
	}
	return out
}

// NewRedis starts a miniredis server and a client pointed at it.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
