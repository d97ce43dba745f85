// Package seed holds the incremental data helpers: adding users, defining
// roles and assigning season roles after the platform is bootstrapped.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	accessrepo "github.com/enrolly/enrolly-backend/domains/access/be/repo"
	accesssvc "github.com/enrolly/enrolly-backend/domains/access/be/service"
	"github.com/enrolly/enrolly-backend/platform/go/persistence"
)

// Command groups seed helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed users, roles and season role assignments",
	}

	cmd.AddCommand(userCommand())
	cmd.AddCommand(roleCommand())
	cmd.AddCommand(assignCommand())
	return cmd
}

func userCommand() *cobra.Command {
	var (
		databaseURL string
		email       string
		fullName    string
		password    string
		bcryptCost  int
	)

	c := &cobra.Command{
		Use:   "user",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			users, err := persistence.NewUserStore(ctx, pool)
			if err != nil {
				return err
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			user, err := users.Create(ctx, persistence.UserRecord{
				UserID:       uuid.New(),
				Email:        email,
				FullName:     fullName,
				PasswordHash: string(hash),
				CreatedAt:    time.Now().UTC(),
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			cmd.Printf("user %s created (%s)\n", user.Email, user.UserID)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&email, "email", "", "User email")
	c.Flags().StringVar(&fullName, "full-name", "", "User full name")
	c.Flags().StringVar(&password, "password", "", "User password")
	c.Flags().IntVar(&bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for the password hash")
	for _, flag := range []string{"database-url", "email", "full-name", "password"} {
		_ = c.MarkFlagRequired(flag)
	}
	return c
}

func roleCommand() *cobra.Command {
	var (
		databaseURL string
		name        string
		permissions []string
	)

	c := &cobra.Command{
		Use:   "role",
		Short: "Define a role and its permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			access, cleanup, err := accessService(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := access.DefineRole(ctx, name, permissions); err != nil {
				return err
			}
			cmd.Printf("role %s defined with %d permissions\n", name, len(permissions))
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&name, "name", "", "Role name")
	c.Flags().StringSliceVar(&permissions, "permissions", nil, "Comma-separated permission names")
	for _, flag := range []string{"database-url", "name"} {
		_ = c.MarkFlagRequired(flag)
	}
	return c
}

func assignCommand() *cobra.Command {
	var (
		databaseURL string
		email       string
		seasonID    string
		role        string
	)

	c := &cobra.Command{
		Use:   "assign",
		Short: "Assign a user a role in a season",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			parsedSeason, err := uuid.Parse(seasonID)
			if err != nil {
				return fmt.Errorf("invalid season id: %w", err)
			}

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			users, err := persistence.NewUserStore(ctx, pool)
			if err != nil {
				return err
			}
			user, err := users.GetByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("find user %q: %w", email, err)
			}

			accessStore, err := persistence.NewAccessStore(ctx, pool)
			if err != nil {
				return err
			}
			accessRepo, err := accessrepo.NewPostgres(accessStore)
			if err != nil {
				return err
			}

			if err := accesssvc.New(accessRepo).AssignRole(ctx, user.UserID, parsedSeason, role); err != nil {
				return fmt.Errorf("assign role: %w", err)
			}
			cmd.Printf("assigned %s to %s for season %s\n", role, user.Email, parsedSeason)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&email, "email", "", "User email")
	c.Flags().StringVar(&seasonID, "season-id", "", "Season id")
	c.Flags().StringVar(&role, "role", "", "Role name")
	for _, flag := range []string{"database-url", "email", "season-id", "role"} {
		_ = c.MarkFlagRequired(flag)
	}
	return c
}

func accessService(ctx context.Context, databaseURL string) (*accesssvc.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	store, err := persistence.NewAccessStore(ctx, pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, err
	}
	repo, err := accessrepo.NewPostgres(store)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, err
	}

	return accesssvc.New(repo), func() { persistence.ClosePool(pool) }, nil
}
