package repositorycache

import (
	"context"

	"github.com/robby3000/luxicle/internal/models"
)

// Accounts exposes the Store to the auth provider, whose user lookups take no
// read options. Account writes still go through the Store so the cache sees them.
type Accounts struct {
	*Store
}

func (s *Store) Accounts() Accounts {
	return Accounts{Store: s}
}

func (a Accounts) GetUserProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	return a.Store.GetUserProfile(ctx, id)
}
