package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"podnotes/api/internal/config"
	"podnotes/api/internal/logging"
	"podnotes/api/internal/store"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand needs before it can do anything useful.
type env struct {
	cfg config.Config
	log zerolog.Logger
}

func NewRootCommand() *cobra.Command {
	e := &env{}

	cmd := &cobra.Command{
		Use:           "podnotes-api",
		Short:         "Collaborative outline service for show and episode notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.cfg = config.Load()
			logger, err := logging.New(logging.Options{Level: e.cfg.LogLevel, Format: e.cfg.LogFormat, Output: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			e.log = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), e)
		},
	}

	cmd.AddCommand(NewServeCommand(e))
	cmd.AddCommand(NewMigrateCommand(e))
	cmd.AddCommand(NewCheckCommand(e))
	cmd.AddCommand(NewReindexCommand(e))
	return cmd
}

// openStore connects to the configured backend and brings its schema up to date.
func openStore(ctx context.Context, cfg config.Config) (*sql.DB, *store.NodeStore, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.ApplyMigrations(ctx, db, store.SQLite); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		return db, store.NewSQLiteStore(db), nil
	case config.StorePostgres:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.ApplyMigrations(ctx, db, store.Postgres); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		return db, store.NewPostgresStore(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
