package transport

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSender publishes to a durable topic exchange.
type AMQPSender struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

func NewAMQPSender(url, exchange, routingKey string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &AMQPSender{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	err := s.ch.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.idHeader(),
		Type:         msg.kindHeader(),
		Headers: amqp.Table{
			HeaderMessageID:   msg.idHeader(),
			HeaderMessageKind: msg.kindHeader(),
		},
		Body: msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("publish amqp: %w", err)
	}
	return nil
}

func (s *AMQPSender) Close() error {
	_ = s.ch.Close()
	return s.conn.Close()
}

var _ Sender = (*AMQPSender)(nil)
