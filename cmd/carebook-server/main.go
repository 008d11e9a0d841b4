package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/carebook/carebook/internal/config"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/jobs"
	"github.com/carebook/carebook/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "carebook-server",
		Short:        "Hospital roster and appointment booking API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(leaveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds, _ := cmd.Flags().GetStringArray("staff")
			return runServer(seeds)
		},
	}
	cmd.Flags().StringArray("staff", nil, "Seed a staff login as username:password (memory backend)")
	return cmd
}

func runServer(staffSeeds []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.close()

	for _, seed := range staffSeeds {
		username, password, ok := strings.Cut(seed, ":")
		if !ok {
			return fmt.Errorf("--staff %q: want username:password", seed)
		}
		if err := a.addStaff(ctx, username, password); err != nil && !errors.Is(err, auth.ErrUserExists) {
			return fmt.Errorf("seed staff %s: %w", username, err)
		}
		logger.Info().Str("username", auth.NormalizeUsername(username)).Msg("staff login seeded")
	}

	issuer, err := auth.NewTokenIssuer([]byte(cfg.StaffTokenSecret), cfg.StaffTokenTTL)
	if err != nil {
		return err
	}
	revoked := auth.NewTokenRevocationStore(10 * time.Minute)
	defer revoked.Close()

	scheduler := jobs.NewScheduler(a.loc, logger)
	sweeper := jobs.NewLeaveSweeper(a.roster, a.loc, logger)
	if err := scheduler.Register(jobs.LeaveSweepJob, cfg.LeaveSweepSpec, sweeper.Job()); err != nil {
		return err
	}
	scheduler.Start()

	e := newServer(a, issuer, revoked)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// migrationFiles returns MIGRATIONS_DIR when set, the embedded files otherwise.
func migrationFiles(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.Files
}

// withMigrator opens a pool and runs fn with a migrator for the configured
// schema.
func withMigrator(fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != config.BackendPostgres {
		return fmt.Errorf("migrations need STORE_BACKEND=%s", config.BackendPostgres)
	}

	ctx := context.Background()
	pool, err := connectPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrationFiles(cfg), cfg.DBSchema), cfg.DBSchema)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(schema, statuses)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is not supported: migrations are forward-only.")
			fmt.Println("Restore from a backup or write a new numbered migration that reverts the change.")
			return nil
		},
	})

	return cmd
}

func printStatus(schema string, statuses []db.MigrationStatus) {
	fmt.Printf("Migration status for schema: %s\n", schema)
	fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Println("---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// withApp builds the app for a one-shot command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func staffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage hospital staff logins",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a staff login and its hospital profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.addStaff(ctx, username, password); err != nil {
					return err
				}
				fmt.Printf("Staff login %s created.\n", auth.NormalizeUsername(username))
				return nil
			})
		},
	}
	addCmd.Flags().String("username", "", "Login name, also the hospital identifier")
	addCmd.Flags().String("password", "", "Initial password")
	cmd.AddCommand(addCmd)

	passwdCmd := &cobra.Command{
		Use:   "passwd",
		Short: "Reset a staff password",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.creds.SetPassword(ctx, auth.NormalizeUsername(username), password); err != nil {
					return err
				}
				fmt.Println("Password updated.")
				return nil
			})
		},
	}
	passwdCmd.Flags().String("username", "", "Login name")
	passwdCmd.Flags().String("password", "", "New password")
	cmd.AddCommand(passwdCmd)

	return cmd
}

func leaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leave",
		Short: "Emergency leave maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Clear emergency leave dated before today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				n, err := jobs.NewLeaveSweeper(a.roster, a.loc, a.logger).Run(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Cleared emergency leave for %d doctor(s).\n", n)
				return nil
			})
		},
	})
	return cmd
}
