package outbox

// Handle identifies one resident item. Handles are issued in enqueue order and
// never reused, so a handle to a removed item is detected instead of aliasing
// another item. The zero Handle is never issued.
type Handle struct {
	seq uint64
}

// IsZero reports whether h was never issued by an Outbox.
func (h Handle) IsZero() bool { return h.seq == 0 }

// Item is a read-only snapshot of a resident message.
// Payload is a copy; the outbox keeps exclusive ownership of its buffer.
type Item struct {
	Handle  Handle
	ID      int
	Kind    int
	Tick    int64
	Pending bool
	Payload []byte
}

// Len returns the payload length in bytes.
func (i Item) Len() int { return len(i.Payload) }

// record is the owned, resident form of an Item.
type record struct {
	seq     uint64
	id      int
	kind    int
	tick    int64
	pending bool
	buf     []byte
}

func (r *record) snapshot() Item {
	payload := make([]byte, len(r.buf))
	copy(payload, r.buf)
	return Item{
		Handle:  Handle{seq: r.seq},
		ID:      r.id,
		Kind:    r.kind,
		Tick:    r.tick,
		Pending: r.pending,
		Payload: payload,
	}
}
