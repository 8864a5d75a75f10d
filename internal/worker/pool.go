package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/pubsub-outbox/internal/config"
	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/ratelimiter"
	"github.com/ricirt/pubsub-outbox/internal/service"
	"github.com/ricirt/pubsub-outbox/internal/transport"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnSent   func(kind domain.Kind, latency time.Duration)
	OnFailed func(kind domain.Kind)
}

// runner is anything with a blocking Run loop.
type runner interface {
	Run(ctx context.Context)
}

// Pool manages the lifecycle of the background workers: one dispatcher and
// one maintenance loop per outbox.
type Pool struct {
	runners []runner
	wg      sync.WaitGroup
}

func NewPool(
	cfg *config.Config,
	svc *service.OutboxService,
	sender transport.Sender,
	limiter *ratelimiter.KindLimiters,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	dispatcher := NewDispatchWorker(
		svc, sender, limiter,
		cfg.DispatchInterval, cfg.DispatchBatch,
		logger.Named("dispatch"),
		hooks.OnSent, hooks.OnFailed,
	)
	maintenance := NewMaintenanceWorker(svc, cfg.DispatchInterval, logger.Named("maintenance"))

	return &Pool{runners: []runner{dispatcher, maintenance}}
}

// Start launches all workers as goroutines.
// The provided ctx is forwarded to every worker; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, r := range p.runners {
		p.wg.Add(1)
		go func(r runner) {
			defer p.wg.Done()
			r.Run(ctx)
		}(r)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context so an in-progress send finishes
// before the outbox is closed.
func (p *Pool) Wait() {
	p.wg.Wait()
}
