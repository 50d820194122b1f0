package cmd

import (
	"github.com/spf13/cobra"
)

// CmdReplay creates or clears the replay holding queue.
func CmdReplay() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "replay",
			Short: "Create/clear the replay queue",
			Long: `Create or clear the replay queue. The replay queue is a dead letter
queue: after the configured lifetime, messages are released to a worker
queue. Creating and clearing are the same operation; clearing a queue
that does not exist creates it.`,
		},
		[]commandLineFlag{routingKeyFlag, ttlFlag},
		func(ctx *Context, _ []string) error {
			return clearReplayQueue(ctx)
		},
	)
}
