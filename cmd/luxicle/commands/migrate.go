package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/robby3000/luxicle/internal/auth"
	"github.com/robby3000/luxicle/internal/store"
	"github.com/robby3000/luxicle/pkg/di"
)

var seedPassword string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			return st.Migrate(ctx)
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert sample categories, tags, challenges and users",
	Long: `Insert the sample catalog and three placeholder users. Rows that already
exist are left alone, so seed can run repeatedly.

Examples:
  luxicle seed                          # users can sign in with "password123"
  luxicle seed --password ""            # users without a password`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			var hash string
			if seedPassword != "" {
				h, err := auth.HashPassword(seedPassword, bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				hash = h
			}
			report, err := st.Seed(ctx, hash)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories, %d tags, %d challenges, %d users\n",
				report.Categories, report.Tags, report.Challenges, report.Users)
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPassword, "password", "password123", "Password given to the seeded users")
}

// withStore opens only the database; migrate and seed need neither Redis nor storage.
func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := di.OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, store.New(db, store.WithLogger(log.Named("store"))))
}
