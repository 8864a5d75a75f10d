package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/outbox"
	"github.com/ricirt/pubsub-outbox/internal/repository"
)

// Options tunes an OutboxService. Zero values fall back to defaults.
type Options struct {
	// MaxBytes is the eviction bound applied after every publish and on each
	// maintenance pass; 0 = unbounded.
	MaxBytes int
	// MessageTimeout is how long a message may stay resident, in wall time.
	MessageTimeout time.Duration
	// MemoryLimit caps outstanding payload bytes at the allocator; 0 = unbounded.
	MemoryLimit int
	Clock       Clock
	// Hooks are chained after the service's own failure tracking.
	Hooks outbox.Hooks
}

// OutboxService owns the single Outbox of the client and serialises every
// call into it. The Outbox itself is not safe for concurrent use; HTTP
// handlers and the dispatch worker only reach it through this service.
//
// Messages that leave the outbox without an acknowledgment (expired, evicted,
// or still resident at shutdown) are written to the failure repository once
// the lock is released.
type OutboxService struct {
	mu       sync.Mutex
	ob       *outbox.Outbox
	failures []trackedFailure

	repo  repository.FailureRepository
	clock Clock
	// maxBytes is what Stats reports (0 = unbounded); limit is the bound
	// actually passed to ShrinkTo.
	maxBytes int
	limit    int
	timeout  int64
	logger   *zap.Logger
}

// trackedFailure remembers which item a failure came from so a rejected
// publish can drop the record of its own message.
type trackedFailure struct {
	handle  outbox.Handle
	failure *domain.DeliveryFailure
}

func NewOutboxService(
	repo repository.FailureRepository,
	opts Options,
	logger *zap.Logger,
) *OutboxService {
	if opts.Clock == nil {
		opts.Clock = NewMonotonicClock()
	}
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = 30 * time.Second
	}
	limit := opts.MaxBytes
	if limit <= 0 {
		opts.MaxBytes = 0
		limit = math.MaxInt
	}

	s := &OutboxService{
		repo:     repo,
		clock:    opts.Clock,
		maxBytes: opts.MaxBytes,
		limit:    limit,
		timeout:  DurationToTicks(opts.MessageTimeout),
		logger:   logger,
	}

	var alloc outbox.Allocator = outbox.HeapAllocator{}
	if opts.MemoryLimit > 0 {
		alloc = outbox.NewBudgetAllocator(opts.MemoryLimit)
	}

	s.ob = outbox.New(
		outbox.WithLogger(logger.Named("outbox")),
		outbox.WithAllocator(alloc),
		outbox.WithHooks(outbox.Hooks{
			OnInsert: opts.Hooks.OnInsert,
			OnRemove: func(e outbox.Event) {
				s.trackRemoval(e)
				if opts.Hooks.OnRemove != nil {
					opts.Hooks.OnRemove(e)
				}
			},
		}),
	)
	return s
}

// Publish validates and stages a message at the current tick, then enforces
// the capacity bound by evicting the oldest messages not in flight.
//
// A message that could not survive that eviction, because it alone or
// together with the in-flight messages exceeds the bound, is rejected with
// ErrOutboxFull before anything is staged or evicted.
func (s *OutboxService) Publish(ctx context.Context, req domain.PublishRequest) (*domain.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if pending := s.ob.PendingSize(); len(req.Payload) > s.limit-pending {
		s.mu.Unlock()
		s.logger.Debug("publish rejected above capacity",
			zap.Int("msg_id", req.ID),
			zap.Int("len", len(req.Payload)),
			zap.Int("pending_bytes", pending),
			zap.Int("max_bytes", s.maxBytes),
		)
		return nil, domain.ErrOutboxFull
	}

	h, err := s.ob.Enqueue(req.Payload, req.ID, int(req.Kind), s.clock.Tick())
	if err != nil {
		s.mu.Unlock()
		switch {
		case errors.Is(err, outbox.ErrOutOfMemory):
			return nil, fmt.Errorf("%w: %v", domain.ErrOutboxFull, err)
		case errors.Is(err, outbox.ErrClosed):
			return nil, domain.ErrOutboxClosed
		}
		return nil, fmt.Errorf("stage message: %w", err)
	}

	s.shrinkLocked()
	item, getErr := s.ob.Get(h)
	if getErr != nil {
		// The admission check makes this unreachable; the caller's own
		// message was never accepted, so it is not a delivery failure.
		s.dropFailuresLocked(h)
	}
	failures := s.takeFailuresLocked()
	s.mu.Unlock()

	s.record(ctx, failures)

	if getErr != nil {
		return nil, domain.ErrOutboxFull
	}
	return toMessage(item), nil
}

// Ack retires every message matching both id and kind.
func (s *OutboxService) Ack(_ context.Context, id int, kind domain.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ob.DeleteExact(id, int(kind)); err != nil {
		if errors.Is(err, outbox.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

// Cancel drops every message with the given id, whatever its kind.
func (s *OutboxService) Cancel(_ context.Context, id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ob.DeleteByID(id)
}

// PurgeKind drops every message of the given kind.
func (s *OutboxService) PurgeKind(_ context.Context, kind domain.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ob.DeleteByKind(int(kind))
}

// MarkPending flags the first message with id as in flight. It is the by-id
// entry point for callers that learn about a send from outside the dispatcher
// (POST /api/v1/messages/{id}/pending); the dispatcher itself uses
// MarkInFlight so that duplicate ids resolve to the message it sent.
func (s *OutboxService) MarkPending(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ob.MarkPending(id); err != nil {
		return domain.ErrNotFound
	}
	return nil
}

func (s *OutboxService) Get(_ context.Context, id int) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.ob.FindByID(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return toMessage(item), nil
}

// List returns every resident message in enqueue order.
func (s *OutboxService) List(_ context.Context) []*domain.Message {
	s.mu.Lock()
	items := s.ob.Items()
	s.mu.Unlock()

	out := make([]*domain.Message, len(items))
	for i, item := range items {
		out[i] = toMessage(item)
	}
	return out
}

func (s *OutboxService) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Stats{
		Items:    s.ob.Len(),
		Pending:  s.ob.PendingLen(),
		Bytes:    s.ob.Size(),
		MaxBytes: s.maxBytes,
	}
}

// Failures returns the most recent delivery failures, newest first.
func (s *OutboxService) Failures(ctx context.Context, limit int) ([]*domain.DeliveryFailure, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.List(ctx, limit)
}

// NextReady returns the oldest message not yet in flight.
func (s *OutboxService) NextReady(_ context.Context) (outbox.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.ob.NextReady()
	if err != nil {
		return outbox.Item{}, domain.ErrNotFound
	}
	return item, nil
}

// MarkInFlight flags exactly the message h refers to as sent. It returns
// ErrNotFound if the message was acknowledged, cancelled, or expired while
// the send was in progress.
func (s *OutboxService) MarkInFlight(_ context.Context, h outbox.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ob.MarkPendingHandle(h); err != nil {
		return domain.ErrNotFound
	}
	return nil
}

// Maintain drops expired messages and then enforces the capacity bound.
func (s *OutboxService) Maintain(ctx context.Context) (expired, evicted int) {
	s.mu.Lock()
	expired = s.ob.DeleteExpired(s.clock.Tick(), s.timeout)
	before := s.ob.Len()
	s.shrinkLocked()
	evicted = before - s.ob.Len()
	failures := s.takeFailuresLocked()
	s.mu.Unlock()

	s.record(ctx, failures)
	return expired, evicted
}

// Close frees every resident message, in flight or not, and records each as
// a delivery failure. Later publishes fail with ErrOutboxClosed.
func (s *OutboxService) Close(ctx context.Context) {
	s.mu.Lock()
	s.ob.Close()
	failures := s.takeFailuresLocked()
	s.mu.Unlock()

	if len(failures) > 0 {
		s.logger.Warn("outbox closed with undelivered messages", zap.Int("count", len(failures)))
	}
	s.record(ctx, failures)
}

func (s *OutboxService) shrinkLocked() {
	if err := s.ob.ShrinkTo(s.limit); err != nil {
		s.logger.Warn("outbox above capacity with every message in flight",
			zap.Int("size", s.ob.Size()),
			zap.Int("max_bytes", s.maxBytes),
		)
	}
}

// trackRemoval runs inside outbox calls, so s.mu is already held.
func (s *OutboxService) trackRemoval(e outbox.Event) {
	switch e.Reason {
	case outbox.ReasonExpired, outbox.ReasonEvicted, outbox.ReasonClosed:
	default:
		return
	}
	s.failures = append(s.failures, trackedFailure{handle: e.Handle, failure: &domain.DeliveryFailure{
		ID:           uuid.New().String(),
		MessageID:    e.ID,
		Kind:         domain.Kind(e.Kind),
		Reason:       string(e.Reason),
		PayloadSize:  e.Len,
		WasPending:   e.Pending,
		EnqueuedTick: e.Tick,
		FailedAt:     time.Now().UTC(),
	}})
}

func (s *OutboxService) dropFailuresLocked(h outbox.Handle) {
	kept := s.failures[:0]
	for _, f := range s.failures {
		if f.handle != h {
			kept = append(kept, f)
		}
	}
	s.failures = kept
}

func (s *OutboxService) takeFailuresLocked() []*domain.DeliveryFailure {
	if len(s.failures) == 0 {
		return nil
	}
	out := make([]*domain.DeliveryFailure, len(s.failures))
	for i, f := range s.failures {
		out[i] = f.failure
	}
	s.failures = nil
	return out
}

func (s *OutboxService) record(ctx context.Context, failures []*domain.DeliveryFailure) {
	if len(failures) == 0 {
		return
	}
	if err := s.repo.Record(ctx, failures); err != nil {
		s.logger.Error("failed to record delivery failures",
			zap.Int("count", len(failures)), zap.Error(err))
	}
}

func toMessage(item outbox.Item) *domain.Message {
	return &domain.Message{
		ID:      item.ID,
		Kind:    domain.Kind(item.Kind),
		Tick:    item.Tick,
		Pending: item.Pending,
		Size:    item.Len(),
		Payload: item.Payload,
	}
}
