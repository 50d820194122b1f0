// Package bus is the message bus adapter: publish and subscribe
// primitives over a single direct exchange with routing-key-bound queues,
// plus the dead-lettering replay queue arguments.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angora-org/angora/internal/backoff"
	"github.com/angora-org/angora/internal/logger"
)

// drainTimeout is how long Clear waits for another message before it
// considers the queue drained.
const drainTimeout = 2 * time.Second

// dialMaxRetries bounds connection attempts before the error surfaces to
// the caller.
const dialMaxRetries = 5

// Config carries the broker connection settings and exchange name.
type Config struct {
	URL          string
	Exchange     string
	ExchangeType string
}

// Callback handles one received envelope. Callbacks run in order; an
// error from one callback does not stop the remaining callbacks or the
// consumer loop.
type Callback func(ctx context.Context, env *Envelope) error

// Publisher publishes an envelope to a routing key on the exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, env *Envelope) error
}

// Queue is a consumable queue bound to the exchange by its routing key.
type Queue struct {
	cfg        Config
	Name       string
	RoutingKey string
	Args       amqp.Table
}

// NewQueue builds a queue handle. Nothing is declared until Listen or
// Clear runs.
func NewQueue(cfg Config, name, routingKey string, args amqp.Table) *Queue {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "direct"
	}
	return &Queue{cfg: cfg, Name: name, RoutingKey: routingKey, Args: args}
}

// connect dials the broker with bounded retries and declares the
// exchange, the queue and its binding.
func (q *Queue) connect(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	err := backoff.Retry(ctx, func(_ context.Context) error {
		var dialErr error
		conn, dialErr = amqp.Dial(q.cfg.URL)
		return dialErr
	}, &backoff.ExponentialBackoffPolicy{
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     10 * time.Second,
		MaxRetries:      dialMaxRetries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(ch, q.cfg, q.Name, q.RoutingKey, q.Args); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declare(ch *amqp.Channel, cfg Config, queue, routingKey string, args amqp.Table) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}
	return nil
}

// Listen consumes the queue in no-ack mode, delivering each envelope to
// the callbacks in order, until the context is canceled. One bad envelope
// never stops the loop.
func (q *Queue) Listen(ctx context.Context, callbacks ...Callback) error {
	conn, ch, err := q.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	deliveries, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %s: %w", q.Name, err)
	}

	logger.Info(ctx, "Listener started", "queue", q.Name, "exchange", q.cfg.Exchange)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Listener stopping", "queue", q.Name)
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("consumer channel closed")
			}
			q.dispatch(ctx, delivery.Body, callbacks)
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, body []byte, callbacks []Callback) {
	env, err := UnmarshalEnvelope(body)
	if err != nil {
		logger.Error(ctx, "Failed to decode envelope", "queue", q.Name, "err", err)
		return
	}
	for _, cb := range callbacks {
		if err := cb(ctx, env); err != nil {
			logger.Error(ctx, "Callback failed", "queue", q.Name, "message", env.Message, "err", err)
		}
	}
}

// Clear drains the queue, creating it if it does not exist. It returns
// the number of messages removed once no message arrives within the
// drain timeout. Clearing an empty or missing queue is not an error.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	conn, ch, err := q.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	deliveries, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to consume queue %s: %w", q.Name, err)
	}

	var drained int
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return drained, ctx.Err()
		case <-timer.C:
			return drained, nil
		case _, ok := <-deliveries:
			if !ok {
				return drained, nil
			}
			drained++
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(drainTimeout)
		}
	}
}

// Bus is a one-shot publisher: each Publish opens a fresh connection,
// declares the exchange, publishes and closes.
type Bus struct {
	cfg Config
}

var _ Publisher = (*Bus)(nil)

// New creates a Bus for the given broker configuration.
func New(cfg Config) *Bus {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "direct"
	}
	return &Bus{cfg: cfg}
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, routingKey string, env *Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() {
		_ = ch.Close()
	}()

	if err := ch.ExchangeDeclare(b.cfg.Exchange, b.cfg.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", b.cfg.Exchange, err)
	}

	err = ch.PublishWithContext(ctx, b.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message %s: %w", env.Message, err)
	}
	return nil
}
