// Command admin runs one-off maintenance tasks against the portal database:
// applying migrations, creating superusers and switching the workflow phase.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portal/internal/config"
	"portal/internal/dbx"
	"portal/internal/logger"
	"portal/internal/metrics"
	"portal/internal/migrations"
	"portal/internal/policy"
	"portal/internal/repository"
	"portal/internal/service"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	superuserName     string
	superuserPassword string
)

func main() {
	log := logger.New()

	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Portal maintenance commands",
		Long: `Maintenance commands for the submission portal.

Configuration is read from the environment (and .env when present), the same
way the API server reads it.

Examples:
  # Apply pending schema migrations
  admin migrate

  # Create the first superuser
  admin create-superuser --username root --password s3cret

  # Close submissions and open field review
  admin set-phase two`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), log, func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				if err := migrations.Up(ctx, db); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				log.Info().Msg("Migrations applied")
				return nil
			})
		},
	})

	createCmd := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create a superuser account",
		Long:  `Create a superuser. Superusers have no profile or quota and cannot be created over HTTP.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), log, func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				return runCreateSuperuser(ctx, cfg, db, log)
			})
		},
	}
	createCmd.Flags().StringVar(&superuserName, "username", "", "superuser login name")
	createCmd.Flags().StringVar(&superuserPassword, "password", "", "superuser password")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:       "set-phase one|two",
		Short:     "Switch the global workflow phase",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"one", "two"},
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := policy.ParsePhase(args[0])
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), log, func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				return runSetPhase(ctx, db, phase, log)
			})
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

// withDB loads configuration, opens the database and runs fn.
func withDB(ctx context.Context, log zerolog.Logger, fn func(context.Context, *config.Config, *sql.DB) error) error {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: no .env file found")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	db, err := dbx.Open(ctx, cfg.DBConnectionString, cfg.Environment)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, cfg, db)
}

func runCreateSuperuser(ctx context.Context, cfg *config.Config, db *sql.DB, log zerolog.Logger) error {
	users := service.NewUserService(
		repository.NewUserRepo(db),
		repository.NewFileRepository(db),
		nil,
		service.NewCleanupQueue(nil, ""),
		service.NewEventSink(nil, "", log),
		cfg.DefaultAllowedStorage(),
		cfg.BcryptCost,
		metrics.Init(nil),
		log,
	)
	u, err := users.CreateSuperuser(ctx, superuserName, superuserPassword)
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Errorf("invalid %s: %s", verr.Field, verr.Message)
	case err != nil:
		return fmt.Errorf("failed to create superuser: %w", err)
	}
	log.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("Superuser created")
	return nil
}

func runSetPhase(ctx context.Context, db *sql.DB, phase policy.Phase, log zerolog.Logger) error {
	phases := service.NewPhaseService(repository.NewPhaseRepository(db), metrics.Init(nil), log)
	// The operator running this command acts as a superuser.
	operator := policy.Actor{Username: "admin-cli", Role: policy.RoleSuperuser}
	state, err := phases.Set(ctx, operator, phase)
	if err != nil {
		return fmt.Errorf("failed to set phase: %w", err)
	}
	log.Info().Bool("is_phase_one", state.IsPhaseOne).Msg("Phase updated")
	return nil
}
