// Package bootstrap holds the first-run helpers: applying the schema and
// standing up a school with its first season and manager.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	sqlassets "github.com/enrolly/enrolly-backend/database"
	"github.com/enrolly/enrolly-backend/platform/go/persistence"
)

const dateLayout = "2006-01-02"

// defaultManagerPermissions is what the first manager of a school can do.
var defaultManagerPermissions = []string{"manage seasons", "view schools"}

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (schema, first school)",
		Long:  "Bootstrap platform resources such as the database schema and an initial school with its first season and manager.",
	}

	cmd.AddCommand(schemaCommand())
	cmd.AddCommand(schoolCommand())
	return cmd
}

func schemaCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "schema",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := applySchema(ctx, pool); err != nil {
				return err
			}
			cmd.Println("schema applied")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	_ = c.MarkFlagRequired("database-url")
	return c
}

func schoolCommand() *cobra.Command {
	var (
		databaseURL   string
		name          string
		slug          string
		seasonName    string
		startDate     string
		endDate       string
		adminEmail    string
		adminFullName string
		adminPassword string
		bcryptCost    int
	)

	c := &cobra.Command{
		Use:   "school",
		Short: "Create a school with its first active season and manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			start, err := time.Parse(dateLayout, startDate)
			if err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
			end, err := time.Parse(dateLayout, endDate)
			if err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}
			if !start.Before(end) {
				return fmt.Errorf("start date must be before end date")
			}

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			schools, err := persistence.NewSchoolStore(ctx, pool)
			if err != nil {
				return err
			}
			seasons, err := persistence.NewSeasonStore(ctx, pool)
			if err != nil {
				return err
			}
			users, err := persistence.NewUserStore(ctx, pool)
			if err != nil {
				return err
			}
			access, err := persistence.NewAccessStore(ctx, pool)
			if err != nil {
				return err
			}

			now := time.Now().UTC()

			school, err := schools.Create(ctx, persistence.SchoolRecord{
				SchoolID:  uuid.New(),
				Name:      name,
				Slug:      slug,
				IsActive:  true,
				CreatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("create school: %w", err)
			}

			season, err := seasons.Create(ctx, persistence.CreateSeasonParams{
				SeasonID:  uuid.New(),
				SchoolID:  school.SchoolID,
				Name:      seasonName,
				StartDate: start,
				EndDate:   end,
				IsActive:  true,
				Now:       now,
			})
			if err != nil {
				return fmt.Errorf("create season: %w", err)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcryptCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			user, err := users.Create(ctx, persistence.UserRecord{
				UserID:       uuid.New(),
				Email:        adminEmail,
				FullName:     adminFullName,
				PasswordHash: string(hash),
				CreatedAt:    now,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			roleID, err := access.EnsureRole(ctx, "manager", now)
			if err != nil {
				return fmt.Errorf("ensure role: %w", err)
			}
			for _, permission := range defaultManagerPermissions {
				permissionID, err := access.EnsurePermission(ctx, permission, now)
				if err != nil {
					return fmt.Errorf("ensure permission %q: %w", permission, err)
				}
				if err := access.GrantPermission(ctx, roleID, permissionID); err != nil {
					return fmt.Errorf("grant permission %q: %w", permission, err)
				}
			}
			if err := access.AssignRole(ctx, user.UserID, season.SeasonID, roleID, now); err != nil {
				return fmt.Errorf("assign role: %w", err)
			}

			cmd.Printf("school %s (%s) created with season %s and manager %s\n",
				school.Name, school.SchoolID, season.SeasonID, user.Email)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&name, "name", "", "School display name")
	c.Flags().StringVar(&slug, "slug", "", "School slug")
	c.Flags().StringVar(&seasonName, "season-name", "", "Name of the first season")
	c.Flags().StringVar(&startDate, "start", "", "Season start date (YYYY-MM-DD)")
	c.Flags().StringVar(&endDate, "end", "", "Season end date (YYYY-MM-DD)")
	c.Flags().StringVar(&adminEmail, "admin-email", "", "Manager email")
	c.Flags().StringVar(&adminFullName, "admin-name", "", "Manager full name")
	c.Flags().StringVar(&adminPassword, "admin-password", "", "Manager password")
	c.Flags().IntVar(&bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for the manager password hash")
	for _, flag := range []string{"database-url", "name", "slug", "season-name", "start", "end", "admin-email", "admin-name", "admin-password"} {
		_ = c.MarkFlagRequired(flag)
	}
	return c
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, raw := range strings.Split(sqlassets.CoreSQL, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
