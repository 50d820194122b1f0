// Package runner executes dispatched tasks on a worker node: it archives
// the incoming envelope, enforces the parent-success gate, runs the shell
// command, fans out success messages and schedules failed runs for replay.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/catalog"
	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/persistence"
)

// Statuses recorded in the tasks audit log.
const (
	StatusStart   = "start"
	StatusReplay  = "replay"
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// parentGateNote is appended to a task's log when the parent-success
// gate rejects the run.
const parentGateNote = "PARENT SUCCESS CHECK FAILED"

// Store is the slice of the persistence layer the runner uses.
type Store interface {
	InsertMessage(ctx context.Context, exchange, queue, message string, data any, timeStamp string) error
	InsertTask(ctx context.Context, row persistence.TaskRow) error
	GetTasksLatest(ctx context.Context, name string) ([]persistence.TaskRow, error)
}

// Config carries the bus coordinates the runner publishes to.
type Config struct {
	// Exchange is the bus exchange shared by all nodes.
	Exchange string
	// IngressKey is the queue name and routing key of the trigger router.
	IngressKey string
	// ReplayKey is the routing key of the replay holding queue.
	ReplayKey string
	// Concurrency bounds the number of commands running at once.
	Concurrency int
}

// Runner consumes the worker queue and executes tasks.
type Runner struct {
	cfg       Config
	store     Store
	publisher bus.Publisher
	tracer    trace.Tracer
	sem       chan struct{}
	wg        sync.WaitGroup
}

// New builds a runner. A nil tracer provider disables tracing.
func New(cfg Config, store Store, publisher bus.Publisher, tracer trace.Tracer) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		tracer:    tracer,
		sem:       make(chan struct{}, cfg.Concurrency),
	}
}

// Callbacks returns the consumer callbacks in invocation order: archive
// first, then execute.
func (r *Runner) Callbacks() []bus.Callback {
	return []bus.Callback{r.Archive, r.Execute}
}

// Archive records the consumed envelope in the audit log.
func (r *Runner) Archive(ctx context.Context, env *bus.Envelope) error {
	if err := r.store.InsertMessage(ctx, env.Exchange, env.Queue, env.Message, env.Data, env.TimeStamp); err != nil {
		return fmt.Errorf("failed to archive envelope %s: %w", env.Message, err)
	}
	return nil
}

// Execute runs the task carried by the envelope. Executions run
// concurrently up to the configured bound; Execute blocks only while all
// slots are busy.
func (r *Runner) Execute(ctx context.Context, env *bus.Envelope) error {
	data, ok := env.DataMap()
	if !ok {
		return fmt.Errorf("envelope %s carries no task payload", env.Message)
	}
	task, err := catalog.TaskFromMap(data)
	if err != nil {
		r.recordSpecFailure(ctx, data, env.Message)
		return fmt.Errorf("envelope %s: %w", env.Message, err)
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()
		r.run(ctx, task, env)
	}()
	return nil
}

// Wait blocks until all in-flight executions finish.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run drives one task through its lifecycle. The initial status is
// "replay" when the envelope came back through the replay queue,
// otherwise "start".
func (r *Runner) run(ctx context.Context, task *catalog.Task, env *bus.Envelope) {
	// Shutdown drains in-flight runs: the consumer loop's cancellation
	// must not kill the child process or drop the terminal status row.
	ctx = context.WithoutCancel(ctx)

	trigger := env.Message
	status := StatusStart
	if env.Queue == bus.ReplayQueueName {
		status = StatusReplay
	}

	runID := uuid.NewString()
	ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("runId", runID, "task", task.Name))

	ctx, span := r.tracer.Start(ctx, "task.run", trace.WithAttributes(
		attribute.String("task.run_id", runID),
		attribute.String("task.name", task.Name),
		attribute.String("task.trigger", trigger),
		attribute.String("task.status", status),
	))
	defer span.End()

	if err := task.Normalize(); err != nil {
		logger.Error(ctx, "Task normalization failed", "task", task.Name, "err", err)
		span.SetStatus(codes.Error, err.Error())
		r.record(ctx, task, trigger, StatusFail)
		return
	}

	r.record(ctx, task, trigger, status)

	if task.ParentSuccess {
		ok, err := r.parentsSucceeded(ctx, task)
		if err != nil {
			logger.Error(ctx, "Parent success check errored", "task", task.Name, "err", err)
			span.SetStatus(codes.Error, err.Error())
			r.record(ctx, task, trigger, StatusFail)
			return
		}
		if !ok {
			logger.Warn(ctx, "Parent success check failed", "task", task.Name, "parents", task.Parents)
			span.SetStatus(codes.Error, parentGateNote)
			r.appendLog(ctx, task, parentGateNote)
			r.record(ctx, task, trigger, StatusFail)
			return
		}
	}

	if err := r.execCommand(ctx, task); err != nil {
		logger.Error(ctx, "Task failed", "task", task.Name, "err", err)
		span.SetStatus(codes.Error, err.Error())
		r.record(ctx, task, trigger, StatusFail)
		r.replay(ctx, task, trigger)
		return
	}

	logger.Info(ctx, "Task succeeded", "task", task.Name)
	span.SetStatus(codes.Ok, "")
	r.record(ctx, task, trigger, StatusSuccess)
	r.fanOut(ctx, task)
}

// parentsSucceeded reports whether every parent's latest run today ended
// in success. A parent with no run today fails the gate.
func (r *Runner) parentsSucceeded(ctx context.Context, task *catalog.Task) (bool, error) {
	for _, parent := range task.Parents {
		rows, err := r.store.GetTasksLatest(ctx, parent)
		if err != nil {
			return false, fmt.Errorf("failed to check parent %s: %w", parent, err)
		}
		if len(rows) == 0 || rows[0].Status != StatusSuccess {
			return false, nil
		}
	}
	return true, nil
}

// fanOut publishes each of the task's message labels to the ingress
// queue. The payload is the task's parameters, so downstream tasks run
// with the same arguments.
func (r *Runner) fanOut(ctx context.Context, task *catalog.Task) {
	for _, label := range task.Messages {
		env := bus.NewEnvelope(r.cfg.Exchange, r.cfg.IngressKey, label, task.Parameters)
		if err := r.publisher.Publish(ctx, r.cfg.IngressKey, env); err != nil {
			logger.Error(ctx, "Failed to publish message",
				"task", task.Name, "label", label, "err", err)
		}
	}
}

// replay schedules a failed run for another attempt via the replay
// holding queue. A nil budget replays forever. A positive budget is
// decremented on the published copy, so a receiving node that observes N
// publishes N-1. A zero budget ends the loop.
func (r *Runner) replay(ctx context.Context, task *catalog.Task, trigger string) {
	next := task.Clone()
	if next.Replay != nil {
		if *next.Replay <= 0 {
			logger.Info(ctx, "Replay budget exhausted", "task", task.Name)
			return
		}
		*next.Replay--
	}

	env := bus.NewEnvelope(r.cfg.Exchange, bus.ReplayQueueName, trigger, next.ToMap())
	if err := r.publisher.Publish(ctx, r.cfg.ReplayKey, env); err != nil {
		logger.Error(ctx, "Failed to schedule replay", "task", task.Name, "err", err)
		return
	}
	logger.Info(ctx, "Task scheduled for replay", "task", task.Name)
}

// recordSpecFailure writes a fail row for a payload that names a task
// but does not decode into one. Anonymous payloads leave no row.
func (r *Runner) recordSpecFailure(ctx context.Context, data map[string]any, trigger string) {
	name, _ := data["name"].(string)
	if name == "" {
		return
	}
	command, _ := data["command"].(string)
	row := persistence.TaskRow{
		Name:    name,
		Trigger: trigger,
		Command: command,
		Status:  StatusFail,
	}
	if err := r.store.InsertTask(ctx, row); err != nil {
		logger.Error(ctx, "Failed to record task failure", "task", name, "err", err)
	}
}

func (r *Runner) record(ctx context.Context, task *catalog.Task, trigger, status string) {
	row := persistence.TaskRow{
		Name:       task.Name,
		Trigger:    trigger,
		Command:    task.Command,
		Parameters: fmt.Sprintf("%v", task.Parameters),
		Log:        task.Log,
		Status:     status,
	}
	if err := r.store.InsertTask(ctx, row); err != nil {
		logger.Error(ctx, "Failed to record task status",
			"task", task.Name, "status", status, "err", err)
	}
}
