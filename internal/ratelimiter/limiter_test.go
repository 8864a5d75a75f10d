package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/ratelimiter"
)

func TestKindLimiters_BurstThenCancel(t *testing.T) {
	kl := ratelimiter.New(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := kl.Wait(ctx, domain.KindPublish); err != nil {
			t.Fatalf("expected burst token %d, got %v", i, err)
		}
	}

	// Another kind has its own bucket.
	if err := kl.Wait(ctx, domain.KindPubrel); err != nil {
		t.Fatalf("expected independent bucket, got %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := kl.Wait(cctx, domain.KindPublish); err == nil {
		t.Fatal("expected an error once the bucket is empty and ctx expires")
	}
}
