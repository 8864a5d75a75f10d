package repository

import (
	"context"

	"github.com/ricirt/pubsub-outbox/internal/domain"
)

// FailureRepository persists messages that left the outbox unacknowledged.
// The pgx implementation is in pg_failure_repo.go; memory_failure_repo.go
// backs tests and deployments without a database.
type FailureRepository interface {
	Record(ctx context.Context, failures []*domain.DeliveryFailure) error
	List(ctx context.Context, limit int) ([]*domain.DeliveryFailure, error)
}
