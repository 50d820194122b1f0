package cmd

import (
	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/timer"
)

// CmdTimer starts the schedule publisher for time-based trigger labels.
func CmdTimer() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "timer",
			Short: "Start the schedule publisher",
			Long: `Start the schedule publisher. Tasks triggered by time.HHMM or
time.interval.N labels receive their trigger messages from this process;
nothing else in the system keeps scheduling state.`,
		},
		nil,
		func(ctx *Context, _ []string) error {
			cat, err := loadCatalog(ctx)
			if err != nil {
				return err
			}
			cfg := ctx.Config
			tm := timer.New(cat, bus.New(busConfig(cfg)), cfg.Broker.Exchange, cfg.Broker.IngressQueue)
			return tm.Run(ctx)
		},
	)
}
