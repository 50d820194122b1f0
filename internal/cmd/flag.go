package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	isBool                               bool
	isInt                                bool
	required                             bool
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "config file (default is $XDG_CONFIG_HOME/angora/config.yaml)",
	}
	queueNameFlag = commandLineFlag{
		name:  "queue-name",
		usage: "name of the worker queue, default is the local host name",
	}
	concurrencyFlag = commandLineFlag{
		name:  "concurrency",
		usage: "number of tasks to run in parallel",
		isInt: true,
	}
	logLevelFlag = commandLineFlag{
		name:  "loglevel",
		usage: "log level (debug, info, warn, error)",
	}
	logFileFlag = commandLineFlag{
		name:  "logfile",
		usage: "log file path",
	}
	routingKeyFlag = commandLineFlag{
		name:  "routing-key",
		usage: "queue that the replay queue releases messages to, default is the local host name",
	}
	ttlFlag = commandLineFlag{
		name:  "ttl",
		usage: "replay queue lifetime in milliseconds, default is 10 minutes",
		isInt: true,
	}
	hostFlag = commandLineFlag{
		name:      "host",
		shorthand: "s",
		usage:     "server host",
	}
	portFlag = commandLineFlag{
		name:      "port",
		shorthand: "p",
		usage:     "server port",
		isInt:     true,
	}
	reloadFlag = commandLineFlag{
		name:   "reload",
		usage:  "reload on change (templates for the app, the catalog for the api)",
		isBool: true,
	}
)

// initFlags registers the given flags plus the common config flag.
func initFlags(cmd *cobra.Command, addFlags ...commandLineFlag) {
	flags := append([]commandLineFlag{configFlag}, addFlags...)
	for _, flag := range flags {
		switch {
		case flag.isBool:
			cmd.Flags().BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
		case flag.isInt:
			def, _ := strconv.Atoi(flag.defaultValue)
			cmd.Flags().IntP(flag.name, flag.shorthand, def, flag.usage)
		default:
			cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
		}
		if flag.required {
			if err := cmd.MarkFlagRequired(flag.name); err != nil {
				fmt.Printf("failed to mark flag %s as required: %v\n", flag.name, err)
			}
		}
	}
}

// bindFlags binds the given flags into viper so they participate in
// config resolution.
func bindFlags(cmd *cobra.Command, addFlags ...commandLineFlag) error {
	flags := append([]commandLineFlag{configFlag}, addFlags...)
	for _, flag := range flags {
		if err := viper.BindPFlag(flag.name, cmd.Flags().Lookup(flag.name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.name, err)
		}
	}
	return nil
}
