package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/ratelimiter"
	"github.com/ricirt/pubsub-outbox/internal/service"
	"github.com/ricirt/pubsub-outbox/internal/transport"
)

// DispatchWorker drains ready messages from the outbox on every tick: it
// hands each to the transport and, once the transport accepts it, marks it
// in flight so it waits for an acknowledgment instead of being resent.
//
// Exactly one DispatchWorker may run per outbox. NextReady is read before the
// send and the message is only marked afterwards, so a second worker would
// send the same message twice.
type DispatchWorker struct {
	svc      *service.OutboxService
	sender   transport.Sender
	limiter  *ratelimiter.KindLimiters
	interval time.Duration
	batch    int
	logger   *zap.Logger

	// Metric hooks, injected by the pool.
	onSent   func(kind domain.Kind, latency time.Duration)
	onFailed func(kind domain.Kind)
}

// NewDispatchWorker constructs a worker. onSent and onFailed are optional (nil = no-op).
func NewDispatchWorker(
	svc *service.OutboxService,
	sender transport.Sender,
	limiter *ratelimiter.KindLimiters,
	interval time.Duration,
	batch int,
	logger *zap.Logger,
	onSent func(domain.Kind, time.Duration),
	onFailed func(domain.Kind),
) *DispatchWorker {
	if onSent == nil {
		onSent = func(domain.Kind, time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func(domain.Kind) {}
	}
	return &DispatchWorker{
		svc: svc, sender: sender, limiter: limiter,
		interval: interval, batch: batch, logger: logger,
		onSent: onSent, onFailed: onFailed,
	}
}

// Run ticks every interval and dispatches up to batch messages per tick.
// Stops cleanly when ctx is cancelled.
func (w *DispatchWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("dispatch worker started",
		zap.Duration("interval", w.interval), zap.Int("batch", w.batch))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopping")
			return
		case <-ticker.C:
			w.Dispatch(ctx)
		}
	}
}

// Dispatch sends ready messages until the batch is used up, nothing is
// ready, or a send fails. A failed message stays ready and is retried on the
// next tick, ahead of anything enqueued after it. Returns the number sent.
func (w *DispatchWorker) Dispatch(ctx context.Context) int {
	sent := 0
	for sent < w.batch {
		item, err := w.svc.NextReady(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return sent
		}

		kind := domain.Kind(item.Kind)
		log := w.logger.With(zap.Int("msg_id", item.ID), zap.String("kind", kind.String()))

		// Block here until the per-kind rate limiter grants a token.
		if err := w.limiter.Wait(ctx, kind); err != nil {
			// ctx cancelled while waiting; worker is shutting down.
			return sent
		}

		start := time.Now()
		err = w.sender.Send(ctx, transport.Message{ID: item.ID, Kind: kind, Payload: item.Payload})
		elapsed := time.Since(start)
		if err != nil {
			log.Warn("transport send failed", zap.Error(err))
			w.onFailed(kind)
			return sent
		}

		w.onSent(kind, elapsed)
		sent++

		if err := w.svc.MarkInFlight(ctx, item.Handle); err != nil {
			// Acknowledged, cancelled, or expired while the send was in progress.
			log.Debug("message left the outbox during send")
			continue
		}
		log.Debug("message in flight", zap.Duration("latency", elapsed))
	}
	return sent
}
