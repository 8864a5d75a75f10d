package outbox

import "go.uber.org/zap"

// Option configures an Outbox at construction time.
type Option func(*Outbox)

// WithLogger sets the logger used for per-item debug traces.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Outbox) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAllocator sets the allocator payload buffers are drawn from.
func WithAllocator(a Allocator) Option {
	return func(o *Outbox) {
		if a != nil {
			o.alloc = a
		}
	}
}

// WithHooks registers observer callbacks for inserts and removals.
func WithHooks(h Hooks) Option {
	return func(o *Outbox) {
		o.hooks = h
	}
}
