package bus

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// ReplayQueueName is the name and routing key of the dead-lettering
// holding queue.
const ReplayQueueName = "replay"

// ReplayQueueArgs builds the broker-level arguments for the replay queue:
// messages are withheld for ttl milliseconds, then dead-lettered back to
// the main exchange with the given worker routing key.
func ReplayQueueArgs(exchange, routingKey string, ttl int) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             int32(ttl),
		"x-dead-letter-exchange":    exchange,
		"x-dead-letter-routing-key": routingKey,
	}
}
