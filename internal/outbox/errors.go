package outbox

import "errors"

// Sentinel errors returned by Outbox operations. None of them are fatal:
// callers decide whether an out-of-memory enqueue ends the client.
var (
	ErrNotFound       = errors.New("outbox: item not found")
	ErrStaleHandle    = errors.New("outbox: handle refers to a removed item")
	ErrNothingToEvict = errors.New("outbox: size above bound but every resident item is pending")
	ErrOutOfMemory    = errors.New("outbox: buffer allocation failed")
	ErrClosed         = errors.New("outbox: closed")
)
