// Package router consumes the ingress queue, archives every message and
// fans each one out to the tasks it triggers.
package router

import (
	"context"
	"fmt"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/catalog"
	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/persistence"
)

// Store is the slice of the persistence layer the router writes to.
type Store interface {
	InsertMessage(ctx context.Context, exchange, queue, message string, data any, timeStamp string) error
	InsertTask(ctx context.Context, row persistence.TaskRow) error
}

// Router turns ingress messages into task dispatches.
type Router struct {
	catalog    *catalog.Catalog
	store      Store
	publisher  bus.Publisher
	routingKey string
}

// New builds a router that dispatches tasks to the given worker routing key.
func New(cat *catalog.Catalog, store Store, publisher bus.Publisher, routingKey string) *Router {
	return &Router{
		catalog:    cat,
		store:      store,
		publisher:  publisher,
		routingKey: routingKey,
	}
}

// Callbacks returns the consumer callbacks in invocation order: archive
// first, then dispatch.
func (r *Router) Callbacks() []bus.Callback {
	return []bus.Callback{r.Archive, r.Dispatch}
}

// Archive records the consumed message in the audit log.
func (r *Router) Archive(ctx context.Context, env *bus.Envelope) error {
	if err := r.store.InsertMessage(ctx, env.Exchange, env.Queue, env.Message, env.Data, env.TimeStamp); err != nil {
		return fmt.Errorf("failed to archive message %s: %w", env.Message, err)
	}
	return nil
}

// Dispatch publishes one task envelope per task triggered by the message
// label. The message payload overwrites each task's parameters. A task
// that cannot be dispatched gets a fail record and is skipped; the rest
// of the fan-out proceeds.
func (r *Router) Dispatch(ctx context.Context, env *bus.Envelope) error {
	tasks := r.catalog.TasksByTrigger(env.Message)
	if len(tasks) == 0 {
		logger.Debug(ctx, "Message triggers no tasks", "message", env.Message)
		return nil
	}

	for _, task := range tasks {
		data := task.ToMap()
		data["parameters"] = env.Data

		out := bus.NewEnvelope(env.Exchange, r.routingKey, env.Message, data)
		if err := r.publisher.Publish(ctx, r.routingKey, out); err != nil {
			logger.Error(ctx, "Task dispatch failed",
				"task", task.Name, "message", env.Message, "err", err)
			r.recordDispatchFailure(ctx, task, env.Message)
			continue
		}
		logger.Info(ctx, "Task dispatched",
			"task", task.Name, "message", env.Message, "routingKey", r.routingKey)
	}
	return nil
}

func (r *Router) recordDispatchFailure(ctx context.Context, task *catalog.Task, trigger string) {
	row := persistence.TaskRow{
		Name:    task.Name,
		Trigger: trigger,
		Command: task.Command,
		Log:     task.Log,
		Status:  "fail",
	}
	if err := r.store.InsertTask(ctx, row); err != nil {
		logger.Error(ctx, "Failed to record dispatch failure", "task", task.Name, "err", err)
	}
}
