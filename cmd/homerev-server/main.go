package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/homerev/api/internal/config"
	"github.com/homerev/api/internal/domain/users"
	"github.com/homerev/api/internal/graph"
	"github.com/homerev/api/internal/platform/auth"
	"github.com/homerev/api/internal/platform/authz"
	"github.com/homerev/api/internal/platform/db"
	"github.com/homerev/api/internal/platform/idp"
	"github.com/homerev/api/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "homerev-server",
		Short: "HomeRev GraphQL gateway",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(therapistCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the GraphQL gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openUsersDB(ctx context.Context, cfg *config.Config) (*db.Migrator, func(), error) {
	if cfg.UsersDatabaseURL == "" {
		return nil, nil, fmt.Errorf("USERS_DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.UsersDatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run users store migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			migrator, closeFn, err := openUsersDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			migrator, closeFn, err := openUsersDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the GraphQL schema, or its field access requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			requirements, _ := cmd.Flags().GetBool("requirements")
			if !requirements {
				fmt.Fprint(cmd.OutOrStdout(), graph.SDL())
				return nil
			}
			doc, err := graph.LoadSchema()
			if err != nil {
				return err
			}
			table, err := authz.BuildTable(doc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(table.Entries())
		},
	}
	cmd.Flags().Bool("requirements", false, "Print the effective role requirement of every guarded field as JSON")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HS256 development token signed with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roleName, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			role, err := auth.ParseRole(roleName)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}
			if cfg.IsProduction() {
				return fmt.Errorf("development tokens cannot be issued when ENV=production")
			}

			token, err := auth.IssueDevToken([]byte(cfg.AuthSigningKey), subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Account id placed in the sub claim")
	cmd.Flags().String("role", "therapist", "Role claim")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func therapistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "therapist",
		Short: "Manage therapist accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Grant the therapist role to an existing account and store its profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, _ := cmd.Flags().GetString("uid")
			in, err := therapistInputFromFlags(cmd)
			if err != nil {
				return err
			}
			if uid == "" {
				return fmt.Errorf("--uid is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()

			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.UsersDatabaseURL, MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			accounts, err := newAccountManager(cfg, logger)
			if err != nil {
				return err
			}
			account, err := accounts.GetAccount(ctx, uid)
			if err != nil {
				return fmt.Errorf("look up account %s: %w", uid, err)
			}

			svc := users.NewService(users.NewRepoPG(pool), accounts, nil)
			svc.SetLogger(logger)
			t, err := svc.ProvisionTherapist(ctx, uid, account.Email, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Therapist %s (%s) provisioned.\n", t.ID, t.Email)
			return nil
		},
	}
	createCmd.Flags().String("uid", "", "Identity provider account id")
	createCmd.Flags().String("name", "", "Full name")
	createCmd.Flags().String("birthdate", "", "Birth date, YYYY-MM-DD")
	createCmd.Flags().String("address", "", "Address")
	createCmd.Flags().String("telephone", "", "Telephone number")

	cmd.AddCommand(createCmd)
	return cmd
}

func therapistInputFromFlags(cmd *cobra.Command) (users.TherapistInput, error) {
	name, _ := cmd.Flags().GetString("name")
	birthdate, _ := cmd.Flags().GetString("birthdate")
	address, _ := cmd.Flags().GetString("address")
	telephone, _ := cmd.Flags().GetString("telephone")

	bd, err := time.Parse(time.DateOnly, birthdate)
	if err != nil {
		return users.TherapistInput{}, fmt.Errorf("--birthdate must be YYYY-MM-DD: %w", err)
	}
	return users.TherapistInput{
		Name:      name,
		Birthdate: bd,
		Address:   address,
		Telephone: telephone,
	}, nil
}

// newAccountManager returns the SCIM client, or the in-memory provider when
// no admin URL is configured.
func newAccountManager(cfg *config.Config, logger zerolog.Logger) (idp.Manager, error) {
	if cfg.UsesDevIdentityProvider() {
		logger.Warn().Msg("IDP_ADMIN_URL not set, using the in-memory identity provider")
		return idp.NewDevProvider(), nil
	}
	client, err := idp.NewClient(idp.Config{
		AdminURL:     cfg.IDPAdminURL,
		TokenURL:     cfg.IDPTokenURL,
		ClientID:     cfg.IDPClientID,
		ClientSecret: cfg.IDPClientSecret,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
