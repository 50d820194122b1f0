// Package cmd implements the command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/angora-org/angora/internal/config"
	"github.com/angora-org/angora/internal/logger"
)

// Context holds the shared state for a command invocation.
type Context struct {
	context.Context

	Command *cobra.Command
	Config  *config.Config
	Quiet   bool
}

// NewContext loads the configuration, sets up the logger context and
// reports configuration warnings.
func NewContext(cmd *cobra.Command, flags []commandLineFlag) (*Context, error) {
	ctx := cmd.Context()

	if err := bindFlags(cmd, flags...); err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	var loaderOpts []config.ConfigLoaderOption
	if cfgPath := viper.GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}
	cfg, err := config.Load(loaderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyFlagOverrides(cmd, cfg)

	ctx = logger.WithLogger(ctx, newLogger(cfg, quiet, nil))
	for _, w := range cfg.Warnings {
		logger.Warn(ctx, w)
	}

	return &Context{
		Context: ctx,
		Command: cmd,
		Config:  cfg,
		Quiet:   quiet,
	}, nil
}

// LogToFile routes logging to the given file in addition to stderr.
func (c *Context) LogToFile(f *os.File) {
	c.Context = logger.WithLogger(c.Context, newLogger(c.Config, c.Quiet, f))
}

func newLogger(cfg *config.Config, quiet bool, f *os.File) logger.Logger {
	var opts []logger.Option
	if cfg.Log.Level == "debug" || os.Getenv("DEBUG") != "" {
		opts = append(opts, logger.WithDebug())
	}
	if quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if cfg.Log.Format != "" {
		opts = append(opts, logger.WithFormat(cfg.Log.Format))
	}
	if f != nil {
		opts = append(opts, logger.WithWriter(f))
	}
	return logger.NewLogger(opts...)
}

// applyFlagOverrides copies explicitly set command line flags over the
// loaded configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("queue-name") {
		cfg.Worker.QueueName, _ = cmd.Flags().GetString("queue-name")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Worker.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if cmd.Flags().Changed("loglevel") {
		cfg.Log.Level, _ = cmd.Flags().GetString("loglevel")
	}
	if cmd.Flags().Changed("logfile") {
		cfg.Log.File, _ = cmd.Flags().GetString("logfile")
	}
	if cmd.Flags().Changed("routing-key") {
		cfg.Replay.RoutingKey, _ = cmd.Flags().GetString("routing-key")
	}
	if cmd.Flags().Changed("ttl") {
		cfg.Replay.TTL, _ = cmd.Flags().GetInt("ttl")
	}
}

// NewCommand wraps a cobra command with flag registration, context setup
// and uniform error handling.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, runFunc func(ctx *Context, args []string) error) *cobra.Command {
	initFlags(cmd, flags...)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := NewContext(cmd, flags)
		if err != nil {
			fmt.Printf("Initialization error: %v\n", err)
			os.Exit(1)
		}
		if err := runFunc(ctx, args); err != nil {
			logger.Error(ctx.Context, "Command failed", "err", err)
			os.Exit(1)
		}
		return nil
	}
	return cmd
}
