package cmd

import (
	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/runner"
	"github.com/angora-org/angora/internal/telemetry"
)

// CmdClient starts a task client consuming a worker queue.
func CmdClient() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "client",
			Short: "Start a task client",
		},
		[]commandLineFlag{queueNameFlag},
		runWorker,
	)
}

// runWorker consumes the worker queue with the task runner. Shared by
// the client and worker commands; they differ only in flags.
func runWorker(ctx *Context, _ []string) error {
	cfg := ctx.Config

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	tracer, err := telemetry.NewTracer(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracer.Shutdown(ctx); err != nil {
			logger.Error(ctx, "Failed to shutdown tracer", "err", err)
		}
	}()

	run := runner.New(runner.Config{
		Exchange:    cfg.Broker.Exchange,
		IngressKey:  cfg.Broker.IngressQueue,
		ReplayKey:   bus.ReplayQueueName,
		Concurrency: cfg.Worker.Concurrency,
	}, store, bus.New(busConfig(cfg)), tracer.Tracer())

	queue := bus.NewQueue(busConfig(cfg), cfg.Worker.QueueName, cfg.Worker.QueueName, nil)
	err = queue.Listen(ctx, run.Callbacks()...)

	logger.Info(ctx, "Waiting for in-flight tasks")
	run.Wait()
	return err
}
