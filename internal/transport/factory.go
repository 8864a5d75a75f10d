package transport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ricirt/pubsub-outbox/internal/config"
)

// New builds the Sender selected by cfg.Transport.
func New(cfg *config.Config, logger *zap.Logger) (Sender, error) {
	switch cfg.Transport {
	case config.TransportWebhook:
		logger.Info("using webhook transport", zap.String("url", cfg.WebhookURL))
		return NewWebhookSender(cfg.WebhookURL, cfg.WebhookTimeout), nil
	case config.TransportNATS:
		logger.Info("using nats transport", zap.String("url", cfg.NATSURL), zap.String("subject", cfg.NATSSubject))
		return NewNATSSender(cfg.NATSURL, cfg.NATSSubject)
	case config.TransportAMQP:
		logger.Info("using amqp transport", zap.String("exchange", cfg.AMQPExchange), zap.String("routing_key", cfg.AMQPRoutingKey))
		return NewAMQPSender(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	case config.TransportKafka:
		logger.Info("using kafka transport", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
