package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/pubsub-outbox/internal/service"
)

// MaintenanceWorker expires stale messages and enforces the capacity bound
// on a fixed interval, independent of whether anything is being sent.
type MaintenanceWorker struct {
	svc      *service.OutboxService
	interval time.Duration
	logger   *zap.Logger
}

func NewMaintenanceWorker(
	svc *service.OutboxService,
	interval time.Duration,
	logger *zap.Logger,
) *MaintenanceWorker {
	return &MaintenanceWorker{svc: svc, interval: interval, logger: logger}
}

// Run ticks every interval until ctx is cancelled.
func (mw *MaintenanceWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(mw.interval)
	defer ticker.Stop()

	mw.logger.Info("maintenance worker started", zap.Duration("interval", mw.interval))

	for {
		select {
		case <-ctx.Done():
			mw.logger.Info("maintenance worker stopping")
			return
		case <-ticker.C:
			mw.poll(ctx)
		}
	}
}

func (mw *MaintenanceWorker) poll(ctx context.Context) {
	expired, evicted := mw.svc.Maintain(ctx)
	if expired > 0 || evicted > 0 {
		mw.logger.Info("outbox maintenance",
			zap.Int("expired", expired), zap.Int("evicted", evicted))
	}
}
