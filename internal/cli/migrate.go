package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/config"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/db"
)

func newMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runMigrate(ctx, rootOpts, cmd)
		},
	}
}

func runMigrate(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return wrapExitError(ExitCommandError, "migrate requires store.driver "+config.DriverPostgres, nil)
	}
	log, err := opts.newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to connect to database", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool, log); err != nil {
		return wrapExitError(ExitFailure, "migration failed", err)
	}
	return opts.print(cmd.OutOrStdout(), map[string]string{"status": "migrated"}, "schema is up to date")
}
