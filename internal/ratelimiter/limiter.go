package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ricirt/pubsub-outbox/internal/domain"
)

// KindLimiters holds one token bucket per message kind, created on first use.
// Burst equals the rate, so a kind that has been idle can send at most one
// second's worth of messages at once.
type KindLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[domain.Kind]*rate.Limiter
}

// New creates a KindLimiters allowing ratePerSec sends per second per kind.
func New(ratePerSec int) *KindLimiters {
	return &KindLimiters{
		limit:    rate.Limit(ratePerSec),
		burst:    ratePerSec,
		limiters: make(map[domain.Kind]*rate.Limiter),
	}
}

// Wait blocks until the kind's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (kl *KindLimiters) Wait(ctx context.Context, kind domain.Kind) error {
	return kl.limiter(kind).Wait(ctx)
}

func (kl *KindLimiters) limiter(kind domain.Kind) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	l, ok := kl.limiters[kind]
	if !ok {
		l = rate.NewLimiter(kl.limit, kl.burst)
		kl.limiters[kind] = l
	}
	return l
}
