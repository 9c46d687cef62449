// README: AMQP sink relays every ride event to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher is the subset of *amqp.Channel the sink needs.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPSink struct {
	ch       AMQPPublisher
	exchange string
}

func NewAMQPSink(ch AMQPPublisher, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

func (s *AMQPSink) ID() string { return "amqp:" + s.exchange }

func (s *AMQPSink) Deliver(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%s:%d", e.RideID, e.Sequence),
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.exchange, err)
	}
	return nil
}

// RoutingKey maps "ride:picked-up" to "ride.picked_up".
func RoutingKey(t Type) string {
	return strings.ReplaceAll(strings.Replace(string(t), ":", ".", 1), "-", "_")
}
