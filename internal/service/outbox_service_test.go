package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/repository"
	"github.com/ricirt/pubsub-outbox/internal/service"
)

// fakeClock is advanced by tests; one tick is one millisecond.
type fakeClock struct{ now int64 }

func (c *fakeClock) Tick() int64 { return c.now }

func newService(opts service.Options) (*service.OutboxService, *repository.MemoryFailureRepository, *fakeClock) {
	clock := &fakeClock{}
	opts.Clock = clock
	repo := repository.NewMemoryFailureRepository(0)
	return service.NewOutboxService(repo, opts, zap.NewNop()), repo, clock
}

func req(id int, payload string) domain.PublishRequest {
	return domain.PublishRequest{ID: id, Kind: domain.KindPublish, Payload: []byte(payload)}
}

func TestOutboxService_PublishAndAck(t *testing.T) {
	svc, _, clock := newService(service.Options{})
	ctx := context.Background()
	clock.now = 42

	msg, err := svc.Publish(ctx, req(1, "hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Tick != 42 || msg.Size != 5 || msg.Pending {
		t.Fatalf("unexpected message: %+v", msg)
	}

	if err := svc.Ack(ctx, 1, domain.KindPubrel); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound for kind mismatch, got %v", err)
	}
	if err := svc.Ack(ctx, 1, domain.KindPublish); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Stats().Items != 0 {
		t.Fatal("expected outbox to be empty after ack")
	}
}

func TestOutboxService_PublishInvalidRequest(t *testing.T) {
	svc, _, _ := newService(service.Options{})

	bad := req(1, "x")
	bad.Kind = 0
	if _, err := svc.Publish(context.Background(), bad); err != domain.ErrInvalidKind {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestOutboxService_PublishEvictsOldest(t *testing.T) {
	svc, repo, _ := newService(service.Options{MaxBytes: 10})
	ctx := context.Background()

	_, _ = svc.Publish(ctx, req(1, "aaaaaa"))
	_, _ = svc.Publish(ctx, req(2, "bbbbbb"))

	if _, err := svc.Get(ctx, 1); err != domain.ErrNotFound {
		t.Fatalf("expected oldest message evicted, got %v", err)
	}
	if stats := svc.Stats(); stats.Bytes != 6 || stats.MaxBytes != 10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	failures, _ := repo.List(ctx, 10)
	if len(failures) != 1 || failures[0].MessageID != 1 || failures[0].Reason != "evicted" {
		t.Fatalf("expected one eviction recorded, got %+v", failures)
	}
}

func TestOutboxService_PublishTooLargeForCapacity(t *testing.T) {
	svc, _, _ := newService(service.Options{MaxBytes: 4})

	_, err := svc.Publish(context.Background(), req(1, "too large"))
	if !errors.Is(err, domain.ErrOutboxFull) {
		t.Fatalf("expected ErrOutboxFull, got %v", err)
	}
}

func TestOutboxService_PublishOverMemoryLimit(t *testing.T) {
	svc, _, _ := newService(service.Options{MemoryLimit: 8})
	ctx := context.Background()

	if _, err := svc.Publish(ctx, req(1, "12345678")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Publish(ctx, req(2, "9"))
	if !errors.Is(err, domain.ErrOutboxFull) {
		t.Fatalf("expected ErrOutboxFull, got %v", err)
	}

	_ = svc.Ack(ctx, 1, domain.KindPublish)
	if _, err := svc.Publish(ctx, req(2, "9")); err != nil {
		t.Fatalf("expected memory to be released after ack, got %v", err)
	}
}

// TestOutboxService_RejectedPublishHasNoSideEffects verifies a message that
// cannot fit is refused before anything resident is evicted, and that it is
// not logged as a delivery failure.
func TestOutboxService_RejectedPublishHasNoSideEffects(t *testing.T) {
	svc, repo, _ := newService(service.Options{MaxBytes: 10})
	ctx := context.Background()

	if _, err := svc.Publish(ctx, req(1, "aaaaaa")); err != nil {
		t.Fatal(err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		_, err := svc.Publish(ctx, req(2, "bbbbbbbbbbbb"))
		if !errors.Is(err, domain.ErrOutboxFull) {
			t.Fatalf("attempt %d: expected ErrOutboxFull, got %v", attempt, err)
		}
	}

	if _, err := svc.Get(ctx, 1); err != nil {
		t.Fatalf("expected message 1 to stay resident, got %v", err)
	}
	if stats := svc.Stats(); stats.Items != 1 || stats.Bytes != 6 {
		t.Fatalf("unexpected stats after rejection: %+v", stats)
	}
	failures, _ := repo.List(ctx, 10)
	if len(failures) != 0 {
		t.Fatalf("expected no failures recorded, got %+v", failures)
	}
}

// TestOutboxService_RejectedBehindInFlight verifies the in-flight bytes count
// against the room left for a new message.
func TestOutboxService_RejectedBehindInFlight(t *testing.T) {
	svc, repo, _ := newService(service.Options{MaxBytes: 10})
	ctx := context.Background()

	_, _ = svc.Publish(ctx, req(1, "12345678"))
	_ = svc.MarkPending(ctx, 1)
	_, _ = svc.Publish(ctx, req(2, "a"))

	if _, err := svc.Publish(ctx, req(3, "xyz")); !errors.Is(err, domain.ErrOutboxFull) {
		t.Fatalf("expected ErrOutboxFull, got %v", err)
	}
	if _, err := svc.Get(ctx, 2); err != nil {
		t.Fatalf("expected message 2 to stay resident, got %v", err)
	}
	if failures, _ := repo.List(ctx, 10); len(failures) != 0 {
		t.Fatalf("expected no failures recorded, got %+v", failures)
	}

	if _, err := svc.Publish(ctx, req(4, "xy")); err != nil {
		t.Fatalf("expected a fitting message to evict message 2, got %v", err)
	}
	failures, _ := repo.List(ctx, 10)
	if len(failures) != 1 || failures[0].MessageID != 2 {
		t.Fatalf("expected message 2 evicted, got %+v", failures)
	}
}

func TestOutboxService_StatsReportsUnboundedAsZero(t *testing.T) {
	svc, _, _ := newService(service.Options{})
	_, _ = svc.Publish(context.Background(), req(1, "abc"))

	if stats := svc.Stats(); stats.MaxBytes != 0 || stats.Bytes != 3 {
		t.Fatalf("expected max_bytes=0 for an unbounded outbox, got %+v", stats)
	}
}

// TestOutboxService_PendingSurvivesCapacity verifies an in-flight message is
// kept even when it alone exceeds the bound.
func TestOutboxService_PendingSurvivesCapacity(t *testing.T) {
	svc, _, _ := newService(service.Options{MaxBytes: 8})
	ctx := context.Background()

	_, _ = svc.Publish(ctx, req(1, "12345678"))
	if err := svc.MarkPending(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Publish(ctx, req(2, "abc")); !errors.Is(err, domain.ErrOutboxFull) {
		t.Fatalf("expected the new message to be rejected, got %v", err)
	}
	if _, err := svc.Get(ctx, 1); err != nil {
		t.Fatal("expected the pending message to survive")
	}
}

func TestOutboxService_MaintainExpires(t *testing.T) {
	svc, repo, clock := newService(service.Options{MessageTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	clock.now = 100
	_, _ = svc.Publish(ctx, req(1, "d"))
	_ = svc.MarkPending(ctx, 1)

	clock.now = 150
	if expired, _ := svc.Maintain(ctx); expired != 0 {
		t.Fatalf("expected message at the boundary to be kept, expired %d", expired)
	}

	clock.now = 151
	if expired, _ := svc.Maintain(ctx); expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}

	failures, _ := repo.List(ctx, 10)
	if len(failures) != 1 || failures[0].Reason != "expired" || !failures[0].WasPending {
		t.Fatalf("expected an expired in-flight failure, got %+v", failures)
	}
}

func TestOutboxService_CancelAndPurge(t *testing.T) {
	svc, repo, _ := newService(service.Options{})
	ctx := context.Background()

	_, _ = svc.Publish(ctx, req(1, "a"))
	_, _ = svc.Publish(ctx, domain.PublishRequest{ID: 1, Kind: domain.KindPubrel})
	_, _ = svc.Publish(ctx, domain.PublishRequest{ID: 2, Kind: domain.KindSubscribe})

	if n := svc.Cancel(ctx, 1); n != 2 {
		t.Fatalf("expected 2 cancelled, got %d", n)
	}
	if n := svc.Cancel(ctx, 1); n != 0 {
		t.Fatalf("expected 0 on repeat cancel, got %d", n)
	}
	if n := svc.PurgeKind(ctx, domain.KindSubscribe); n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}

	failures, _ := repo.List(ctx, 10)
	if len(failures) != 0 {
		t.Fatalf("expected deliberate deletions not to count as failures, got %d", len(failures))
	}
}

func TestOutboxService_NextReadyAndMarkInFlight(t *testing.T) {
	svc, _, _ := newService(service.Options{})
	ctx := context.Background()

	_, _ = svc.Publish(ctx, req(5, "a"))
	_, _ = svc.Publish(ctx, req(5, "b"))

	first, err := svc.NextReady(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkInFlight(ctx, first.Handle); err != nil {
		t.Fatal(err)
	}

	second, err := svc.NextReady(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Handle == first.Handle || string(second.Payload) != "b" {
		t.Fatalf("expected the duplicate id to be next, got %+v", second)
	}
	_ = svc.MarkInFlight(ctx, second.Handle)

	if _, err := svc.NextReady(ctx); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound with everything in flight, got %v", err)
	}

	svc.Cancel(ctx, 5)
	if err := svc.MarkInFlight(ctx, first.Handle); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound for a cancelled message, got %v", err)
	}
}

func TestOutboxService_CloseRecordsEverything(t *testing.T) {
	svc, repo, _ := newService(service.Options{})
	ctx := context.Background()

	_, _ = svc.Publish(ctx, req(1, "a"))
	_, _ = svc.Publish(ctx, req(2, "b"))
	_ = svc.MarkPending(ctx, 2)

	svc.Close(ctx)

	failures, _ := repo.List(ctx, 10)
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures recorded at close, got %d", len(failures))
	}
	if svc.Stats().Items != 0 {
		t.Fatal("expected outbox to be empty after close")
	}
	if _, err := svc.Publish(ctx, req(3, "c")); err != domain.ErrOutboxClosed {
		t.Fatalf("expected ErrOutboxClosed, got %v", err)
	}
}

func TestOutboxService_RecordErrorIsNotFatal(t *testing.T) {
	svc, repo, clock := newService(service.Options{MessageTimeout: time.Millisecond})
	repo.RecordErr = errors.New("db down")
	ctx := context.Background()

	_, _ = svc.Publish(ctx, req(1, "a"))
	clock.now = 10
	if expired, _ := svc.Maintain(ctx); expired != 1 {
		t.Fatalf("expected expiry to proceed despite repository error, got %d", expired)
	}
}

func TestOutboxService_List(t *testing.T) {
	svc, _, _ := newService(service.Options{})
	ctx := context.Background()

	for id := 1; id <= 3; id++ {
		_, _ = svc.Publish(ctx, req(id, "x"))
	}

	msgs := svc.List(ctx)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != i+1 {
			t.Fatalf("expected enqueue order, position %d has id %d", i, m.ID)
		}
	}
}
