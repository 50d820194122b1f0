package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/fileutil"
)

// CmdWorker starts a task client with explicit concurrency and log
// routing, the long-running variant for dedicated worker hosts.
func CmdWorker() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "worker",
			Short: "Start a task worker",
		},
		[]commandLineFlag{queueNameFlag, concurrencyFlag, logLevelFlag, logFileFlag},
		func(ctx *Context, args []string) error {
			if ctx.Config.Log.File != "" {
				f, err := fileutil.OpenOrCreateFile(ctx.Config.Log.File)
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer func() {
					_ = f.Close()
				}()
				ctx.LogToFile(f)
			}
			return runWorker(ctx, args)
		},
	)
}
