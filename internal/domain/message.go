package domain

import (
	"fmt"
	"time"
)

// MaxPayloadSize bounds a single staged message.
const MaxPayloadSize = 256 << 10

// MaxMessageID is the largest identifier a client may assign.
const MaxMessageID = 65535

// Kind groups staged messages by control packet type. Acknowledgments name
// both the identifier and the kind they retire.
type Kind int

const (
	KindConnect     Kind = 1
	KindPublish     Kind = 3
	KindPubrel      Kind = 6
	KindSubscribe   Kind = 8
	KindUnsubscribe Kind = 10
	KindPingreq     Kind = 12
	KindDisconnect  Kind = 14
)

func (k Kind) IsValid() bool {
	return k >= 1 && k <= 15
}

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindPublish:
		return "publish"
	case KindPubrel:
		return "pubrel"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindPingreq:
		return "pingreq"
	case KindDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("kind_%d", int(k))
}

// Message is the API view of one staged outgoing message.
type Message struct {
	ID      int    `json:"id"`
	Kind    Kind   `json:"kind"`
	Tick    int64  `json:"tick"`
	Pending bool   `json:"pending"`
	Size    int    `json:"size"`
	Payload []byte `json:"payload"`
}

// PublishRequest is the inbound payload for staging a message.
// Payload travels base64-encoded in JSON.
type PublishRequest struct {
	ID      int    `json:"id"`
	Kind    Kind   `json:"kind"`
	Payload []byte `json:"payload"`
}

func (r *PublishRequest) Validate() error {
	if r.ID < 0 || r.ID > MaxMessageID {
		return ErrInvalidID
	}
	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}
	if len(r.Payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	return nil
}

// DeliveryFailure records a message that left the outbox without being
// acknowledged: it expired, was evicted for capacity, or was still resident
// at shutdown.
type DeliveryFailure struct {
	ID           string    `json:"id"`
	MessageID    int       `json:"message_id"`
	Kind         Kind      `json:"kind"`
	Reason       string    `json:"reason"`
	PayloadSize  int       `json:"payload_size"`
	WasPending   bool      `json:"was_pending"`
	EnqueuedTick int64     `json:"enqueued_tick"`
	FailedAt     time.Time `json:"failed_at"`
}

// Stats is a point-in-time view of the outbox.
type Stats struct {
	Items    int `json:"items"`
	Pending  int `json:"pending"`
	Bytes    int `json:"bytes"`
	MaxBytes int `json:"max_bytes"`
}
