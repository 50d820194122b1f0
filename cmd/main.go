package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/build"
	"github.com/angora-org/angora/internal/cmd"
)

var rootCmd = &cobra.Command{
	Use:   build.Slug,
	Short: "Angora is a message-driven task orchestrator",
	Long: `Angora is a message-driven task orchestrator.

Tasks are shell commands declared in YAML files, wired together by the
message labels they emit and the trigger labels they listen for. A
trigger router fans incoming messages out to worker queues, task clients
run the commands and relay success messages downstream, and failed tasks
are replayed after a delay through a dead-letter queue.
`,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress output to stderr")

	rootCmd.AddCommand(cmd.CmdServer())
	rootCmd.AddCommand(cmd.CmdClient())
	rootCmd.AddCommand(cmd.CmdWorker())
	rootCmd.AddCommand(cmd.CmdReplay())
	rootCmd.AddCommand(cmd.CmdInitDB())
	rootCmd.AddCommand(cmd.CmdTimer())
	rootCmd.AddCommand(cmd.CmdTasks())
	rootCmd.AddCommand(cmd.CmdWeb())
	rootCmd.AddCommand(cmd.CmdVersion())

	build.Version = version
}

var version = "0.0.0"
