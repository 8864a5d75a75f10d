package repository

import (
	"context"
	"sync"

	"github.com/ricirt/pubsub-outbox/internal/domain"
)

// MemoryFailureRepository is an in-memory FailureRepository. It keeps the
// most recent entries up to a fixed capacity.
type MemoryFailureRepository struct {
	mu       sync.RWMutex
	failures []*domain.DeliveryFailure
	capacity int

	// Optional error override; set in tests to simulate failure paths.
	RecordErr error
}

// NewMemoryFailureRepository keeps at most capacity entries; zero or less
// means unbounded.
func NewMemoryFailureRepository(capacity int) *MemoryFailureRepository {
	return &MemoryFailureRepository{capacity: capacity}
}

func (m *MemoryFailureRepository) Record(_ context.Context, failures []*domain.DeliveryFailure) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range failures {
		clone := *f
		m.failures = append(m.failures, &clone)
	}
	if m.capacity > 0 && len(m.failures) > m.capacity {
		m.failures = append([]*domain.DeliveryFailure(nil), m.failures[len(m.failures)-m.capacity:]...)
	}
	return nil
}

// List returns the newest entries first.
func (m *MemoryFailureRepository) List(_ context.Context, limit int) ([]*domain.DeliveryFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.DeliveryFailure, 0, min(limit, len(m.failures)))
	for i := len(m.failures) - 1; i >= 0 && len(result) < limit; i-- {
		clone := *m.failures[i]
		result = append(result, &clone)
	}
	return result, nil
}

// compile-time check that MemoryFailureRepository implements FailureRepository
var _ FailureRepository = (*MemoryFailureRepository)(nil)
