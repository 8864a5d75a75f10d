package outbox

import "fmt"

// Allocator hands out payload buffers and takes them back when an item is
// removed. Alloc must return a buffer of exactly n bytes or an error.
type Allocator interface {
	Alloc(n int) ([]byte, error)
	Free(buf []byte)
}

// HeapAllocator allocates from the Go heap. Free is a no-op; the garbage
// collector reclaims released buffers.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(n int) ([]byte, error) { return make([]byte, n), nil }

func (HeapAllocator) Free([]byte) {}

// BudgetAllocator caps the number of payload bytes outstanding at once.
// Constrained deployments use it to surface memory exhaustion as
// ErrOutOfMemory instead of growing without bound.
//
// Like the Outbox it serves, it is not safe for concurrent use.
type BudgetAllocator struct {
	limit int
	used  int
}

// NewBudgetAllocator returns an allocator that refuses requests once limit
// bytes are outstanding.
func NewBudgetAllocator(limit int) *BudgetAllocator {
	return &BudgetAllocator{limit: limit}
}

func (a *BudgetAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 || a.used+n > a.limit {
		return nil, fmt.Errorf("%w: requested %d bytes, %d of %d in use", ErrOutOfMemory, n, a.used, a.limit)
	}
	a.used += n
	return make([]byte, n), nil
}

func (a *BudgetAllocator) Free(buf []byte) {
	a.used -= len(buf)
	if a.used < 0 {
		a.used = 0
	}
}

// InUse returns the number of bytes currently handed out.
func (a *BudgetAllocator) InUse() int { return a.used }

// Limit returns the configured budget.
func (a *BudgetAllocator) Limit() int { return a.limit }
