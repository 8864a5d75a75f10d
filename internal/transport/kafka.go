package transport

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaSender writes each payload to one topic, keyed by message id so
// retransmissions of an id land on the same partition.
type KafkaSender struct {
	writer *kafka.Writer
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.idHeader()),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: HeaderMessageID, Value: []byte(msg.idHeader())},
			{Key: HeaderMessageKind, Value: []byte(msg.kindHeader())},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka: %w", err)
	}
	return nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

var _ Sender = (*KafkaSender)(nil)
