package cmd

import (
	"fmt"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/catalog"
	"github.com/angora-org/angora/internal/config"
	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/persistence"
)

func busConfig(cfg *config.Config) bus.Config {
	return bus.Config{
		URL:      cfg.Broker.URL(),
		Exchange: cfg.Broker.Exchange,
	}
}

func openStore(ctx *Context) (*persistence.Store, error) {
	store, err := persistence.Open(ctx, ctx.Config.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", ctx.Config.Store.DSN, err)
	}
	return store, nil
}

func loadCatalog(ctx *Context) (*catalog.Catalog, error) {
	cat, err := catalog.Load(ctx, ctx.Config.Catalog.Pattern)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Catalog loaded",
		"tasks", len(cat.Tasks()), "pattern", ctx.Config.Catalog.Pattern)
	return cat, nil
}

// clearReplayQueue creates the replay holding queue, or drains it when it
// already exists. Expired messages dead-letter back to the exchange with
// the configured worker routing key.
func clearReplayQueue(ctx *Context) error {
	cfg := ctx.Config
	queue := bus.NewQueue(busConfig(cfg), bus.ReplayQueueName, bus.ReplayQueueName,
		bus.ReplayQueueArgs(cfg.Broker.Exchange, cfg.Replay.RoutingKey, cfg.Replay.TTL))

	logger.Info(ctx, "Creating/clearing replay queue",
		"routingKey", cfg.Replay.RoutingKey, "ttl", cfg.Replay.TTL)
	drained, err := queue.Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear replay queue: %w", err)
	}
	logger.Info(ctx, "Replay queue ready", "drained", drained)
	return nil
}
