package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/pubsub-outbox/internal/domain"
)

type pgFailureRepository struct {
	pool *pgxpool.Pool
}

// NewPgFailureRepository returns a FailureRepository backed by PostgreSQL.
func NewPgFailureRepository(pool *pgxpool.Pool) FailureRepository {
	return &pgFailureRepository{pool: pool}
}

// Record inserts all failures in one round trip using a pgx batch.
func (r *pgFailureRepository) Record(ctx context.Context, failures []*domain.DeliveryFailure) error {
	if len(failures) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range failures {
		batch.Queue(`
			INSERT INTO delivery_failures
				(id, message_id, kind, reason, payload_size, was_pending, enqueued_tick, failed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			f.ID, f.MessageID, int(f.Kind), f.Reason, f.PayloadSize, f.WasPending, f.EnqueuedTick, f.FailedAt,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range failures {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert delivery failure: %w", err)
		}
	}
	return nil
}

func (r *pgFailureRepository) List(ctx context.Context, limit int) ([]*domain.DeliveryFailure, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, message_id, kind, reason, payload_size, was_pending, enqueued_tick, failed_at
		FROM delivery_failures
		ORDER BY failed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query delivery failures: %w", err)
	}
	defer rows.Close()

	var result []*domain.DeliveryFailure
	for rows.Next() {
		var (
			f    domain.DeliveryFailure
			kind int
		)
		if err := rows.Scan(
			&f.ID, &f.MessageID, &kind, &f.Reason, &f.PayloadSize,
			&f.WasPending, &f.EnqueuedTick, &f.FailedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery failure: %w", err)
		}
		f.Kind = domain.Kind(kind)
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery failures: %w", err)
	}
	return result, nil
}
