package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// NATSSender publishes each payload to a single subject with the message
// id and kind as headers. Send flushes so a nil error means the server has
// the message.
type NATSSender struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSender(url, subject string) (*NATSSender, error) {
	conn, err := nats.Connect(url,
		nats.Name("pubsub-outbox"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSender{conn: conn, subject: subject}, nil
}

func (s *NATSSender) Send(ctx context.Context, msg Message) error {
	m := nats.NewMsg(s.subject)
	m.Data = msg.Payload
	m.Header.Set(HeaderMessageID, msg.idHeader())
	m.Header.Set(HeaderMessageKind, msg.kindHeader())

	if err := s.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("publish nats: %w", err)
	}
	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

func (s *NATSSender) Close() error {
	return s.conn.Drain()
}

var _ Sender = (*NATSSender)(nil)
