package outbox

// Reason explains why an item left the outbox.
type Reason string

const (
	ReasonAcked   Reason = "acked"   // DeleteExact
	ReasonDeleted Reason = "deleted" // DeleteByID
	ReasonPurged  Reason = "purged"  // DeleteByKind
	ReasonExpired Reason = "expired" // DeleteExpired
	ReasonEvicted Reason = "evicted" // ShrinkTo
	ReasonClosed  Reason = "closed"  // Close
)

// Event describes a single insert or removal. TotalSize and TotalLen are the
// outbox totals after the change was applied.
type Event struct {
	Handle    Handle
	ID        int
	Kind      int
	Tick      int64
	Len       int
	Pending   bool
	Reason    Reason // empty for inserts
	TotalSize int
	TotalLen  int
}

// Hooks carries optional observer callbacks. They run synchronously inside
// the mutating call and must not call back into the Outbox.
type Hooks struct {
	OnInsert func(Event)
	OnRemove func(Event)
}
