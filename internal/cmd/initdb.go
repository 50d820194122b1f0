package cmd

import (
	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/logger"
)

// CmdInitDB creates or upgrades the database schema.
func CmdInitDB() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "initdb",
			Short: "Create the database tables",
		},
		nil,
		func(ctx *Context, _ []string) error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			logger.Info(ctx, "Database ready", "dsn", ctx.Config.Store.DSN)
			return nil
		},
	)
}
