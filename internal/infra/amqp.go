// README: RabbitMQ connection with retrying dial and ride exchange declaration.
package infra

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQP struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewAMQP dials url, backing off between attempts, and declares exchange as
// a durable topic exchange.
func NewAMQP(ctx context.Context, url, exchange string, attempts int) (*AMQP, error) {
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Second
	var conn *amqp.Connection
	var err error
	for attempt := 1; ; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		if attempt == attempts {
			return nil, fmt.Errorf("dial rabbitmq after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay = min(delay*2, 30*time.Second)
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}
	return &AMQP{Conn: conn, Channel: ch}, nil
}

func (a *AMQP) Close() error {
	if err := a.Channel.Close(); err != nil {
		_ = a.Conn.Close()
		return err
	}
	return a.Conn.Close()
}
