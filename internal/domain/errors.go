package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidID       = errors.New("invalid id: must be between 0 and 65535")
	ErrInvalidKind     = errors.New("invalid kind: must be a control packet type between 1 and 15")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum of 262144 bytes")
	ErrOutboxFull      = errors.New("outbox is at capacity, try again later")
	ErrOutboxClosed    = errors.New("outbox is shutting down")
)
