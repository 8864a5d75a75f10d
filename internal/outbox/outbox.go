package outbox

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Outbox holds outgoing messages from the moment they are handed to the
// transport until they are acknowledged, expired, or evicted.
//
// Items are kept in enqueue order; no operation reorders them. Lookups by ID
// return the first match, bulk deletions remove every match.
//
// An Outbox is not safe for concurrent use. When producers and the send loop
// run on different goroutines the caller must guard the whole Outbox with a
// single mutex.
type Outbox struct {
	items   []*record
	size    int
	nextSeq uint64
	closed  bool

	alloc  Allocator
	hooks  Hooks
	logger *zap.Logger
}

// New returns an empty Outbox.
func New(opts ...Option) *Outbox {
	o := &Outbox{
		nextSeq: 1,
		alloc:   HeapAllocator{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue copies payload into a buffer owned by the outbox and appends a new,
// non-pending item at the tail. The caller keeps ownership of payload.
//
// If the allocator refuses the buffer the error wraps ErrOutOfMemory and
// nothing is appended.
func (o *Outbox) Enqueue(payload []byte, id, kind int, tick int64) (Handle, error) {
	if o.closed {
		return Handle{}, ErrClosed
	}

	buf, err := o.alloc.Alloc(len(payload))
	if err != nil {
		return Handle{}, fmt.Errorf("enqueue msg_id=%d: %w", id, err)
	}
	copy(buf, payload)

	r := &record{
		seq:  o.nextSeq,
		id:   id,
		kind: kind,
		tick: tick,
		buf:  buf,
	}
	o.nextSeq++
	o.items = append(o.items, r)
	o.size += len(buf)

	o.logger.Debug("outbox item inserted",
		zap.Int("msg_id", id),
		zap.Int("msg_type", kind),
		zap.Int("len", len(buf)),
		zap.Int("total_len", o.size),
	)
	if o.hooks.OnInsert != nil {
		o.hooks.OnInsert(o.event(r, ""))
	}

	return Handle{seq: r.seq}, nil
}

// Get resolves a handle issued by Enqueue. It returns ErrStaleHandle once the
// item has been removed.
func (o *Outbox) Get(h Handle) (Item, error) {
	i, ok := o.indexOf(h)
	if !ok {
		return Item{}, ErrStaleHandle
	}
	return o.items[i].snapshot(), nil
}

// FindByID returns the first item in enqueue order whose ID matches.
func (o *Outbox) FindByID(id int) (Item, error) {
	for _, r := range o.items {
		if r.id == id {
			return r.snapshot(), nil
		}
	}
	return Item{}, ErrNotFound
}

// NextReady returns the oldest item that is not pending. It never returns an
// item that is in flight.
func (o *Outbox) NextReady() (Item, error) {
	i := o.firstReady()
	if i < 0 {
		return Item{}, ErrNotFound
	}
	return o.items[i].snapshot(), nil
}

// MarkPending flags the first item with the given ID as sent and awaiting
// acknowledgment. There is no way to clear the flag; a pending item leaves
// the outbox only by deletion.
func (o *Outbox) MarkPending(id int) error {
	for _, r := range o.items {
		if r.id == id {
			r.pending = true
			return nil
		}
	}
	return ErrNotFound
}

// MarkPendingHandle flags exactly the item h refers to. Use it when several
// resident items share an ID and the one returned by NextReady must be the
// one marked.
func (o *Outbox) MarkPendingHandle(h Handle) error {
	i, ok := o.indexOf(h)
	if !ok {
		return ErrStaleHandle
	}
	o.items[i].pending = true
	return nil
}

// DeleteExact removes every item matching both id and kind. It returns
// ErrNotFound when nothing matched.
func (o *Outbox) DeleteExact(id, kind int) error {
	n := o.removeIf(func(r *record) bool {
		return r.id == id && r.kind == kind
	}, ReasonAcked)
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID removes every item with the given ID regardless of kind and
// returns how many were removed. Removing nothing is not an error.
func (o *Outbox) DeleteByID(id int) int {
	return o.removeIf(func(r *record) bool {
		return r.id == id
	}, ReasonDeleted)
}

// DeleteByKind removes every item of the given kind and returns how many
// were removed.
func (o *Outbox) DeleteByKind(kind int) int {
	return o.removeIf(func(r *record) bool {
		return r.kind == kind
	}, ReasonPurged)
}

// DeleteExpired removes every item for which now-tick > timeout. An item
// exactly timeout ticks old is kept. Pending items expire like any other.
func (o *Outbox) DeleteExpired(now, timeout int64) int {
	return o.removeIf(func(r *record) bool {
		return now-r.tick > timeout
	}, ReasonExpired)
}

// Size returns the total payload bytes held.
func (o *Outbox) Size() int { return o.size }

// Len returns the number of resident items.
func (o *Outbox) Len() int { return len(o.items) }

// PendingLen returns the number of resident items awaiting acknowledgment.
func (o *Outbox) PendingLen() int {
	n := 0
	for _, r := range o.items {
		if r.pending {
			n++
		}
	}
	return n
}

// PendingSize returns the payload bytes held by pending items. ShrinkTo can
// never bring Size below this value.
func (o *Outbox) PendingSize() int {
	n := 0
	for _, r := range o.items {
		if r.pending {
			n += len(r.buf)
		}
	}
	return n
}

// Items returns snapshots of every resident item in enqueue order.
func (o *Outbox) Items() []Item {
	out := make([]Item, len(o.items))
	for i, r := range o.items {
		out[i] = r.snapshot()
	}
	return out
}

// ShrinkTo evicts the oldest non-pending items until Size() <= maxSize.
// Pending items are never evicted: if the bound cannot be reached,
// ErrNothingToEvict is returned and the evictions already made stand.
func (o *Outbox) ShrinkTo(maxSize int) error {
	for o.size > maxSize {
		i := o.firstReady()
		if i < 0 {
			o.logger.Debug("outbox cannot shrink further",
				zap.Int("total_len", o.size),
				zap.Int("max_size", maxSize),
				zap.Int("pending", len(o.items)),
			)
			return ErrNothingToEvict
		}
		o.removeAt(i, ReasonEvicted)
	}
	return nil
}

// Close frees every resident item, pending or not, and rejects further
// enqueues. It is safe to call more than once.
func (o *Outbox) Close() {
	o.removeIf(func(*record) bool { return true }, ReasonClosed)
	o.closed = true
}

func (o *Outbox) firstReady() int {
	for i, r := range o.items {
		if !r.pending {
			return i
		}
	}
	return -1
}

// indexOf relies on items being sorted by seq, which holds because seq only
// grows and removal preserves order.
func (o *Outbox) indexOf(h Handle) (int, bool) {
	if h.IsZero() {
		return 0, false
	}
	i := sort.Search(len(o.items), func(i int) bool {
		return o.items[i].seq >= h.seq
	})
	if i < len(o.items) && o.items[i].seq == h.seq {
		return i, true
	}
	return 0, false
}

func (o *Outbox) removeAt(i int, reason Reason) {
	r := o.items[i]
	copy(o.items[i:], o.items[i+1:])
	o.items[len(o.items)-1] = nil
	o.items = o.items[:len(o.items)-1]
	o.size -= len(r.buf)
	o.release(r, reason)
}

// removeIf compacts items in place, keeping order, and releases every record
// matching pred. Events for a bulk removal all report the final totals.
func (o *Outbox) removeIf(pred func(*record) bool, reason Reason) int {
	kept := o.items[:0]
	var removed []*record
	for _, r := range o.items {
		if pred(r) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(o.items); i++ {
		o.items[i] = nil
	}
	o.items = kept

	for _, r := range removed {
		o.size -= len(r.buf)
	}
	for _, r := range removed {
		o.release(r, reason)
	}
	return len(removed)
}

// release returns r's buffer to the allocator. Callers have already unlinked
// r and adjusted size.
func (o *Outbox) release(r *record, reason Reason) {
	o.logger.Debug("outbox item removed",
		zap.String("reason", string(reason)),
		zap.Int("msg_id", r.id),
		zap.Int("msg_type", r.kind),
		zap.Int("len", len(r.buf)),
		zap.Bool("pending", r.pending),
		zap.Int("total_len", o.size),
	)
	ev := o.event(r, reason)
	o.alloc.Free(r.buf)
	r.buf = nil
	if o.hooks.OnRemove != nil {
		o.hooks.OnRemove(ev)
	}
}

func (o *Outbox) event(r *record, reason Reason) Event {
	return Event{
		Handle:    Handle{seq: r.seq},
		ID:        r.id,
		Kind:      r.kind,
		Tick:      r.tick,
		Len:       len(r.buf),
		Pending:   r.pending,
		Reason:    reason,
		TotalSize: o.size,
		TotalLen:  len(o.items),
	}
}
