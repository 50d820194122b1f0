package cmd

import (
	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/router"
)

// CmdServer starts the trigger router: it prepares the replay queue,
// watches the task files and consumes the ingress queue.
func CmdServer() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "server",
			Short: "Start the trigger router server",
		},
		[]commandLineFlag{ttlFlag, routingKeyFlag},
		runServer,
	)
}

func runServer(ctx *Context, _ []string) error {
	cfg := ctx.Config

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	cat, err := loadCatalog(ctx)
	if err != nil {
		return err
	}

	if err := clearReplayQueue(ctx); err != nil {
		return err
	}

	go func() {
		if err := cat.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Catalog watcher stopped", "err", err)
		}
	}()

	rt := router.New(cat, store, bus.New(busConfig(cfg)), cfg.Worker.QueueName)
	ingress := bus.NewQueue(busConfig(cfg), cfg.Broker.IngressQueue, cfg.Broker.IngressQueue, nil)
	return ingress.Listen(ctx, rt.Callbacks()...)
}
