package transport

import (
	"context"
	"strconv"

	"github.com/ricirt/pubsub-outbox/internal/domain"
)

// Header names carried alongside every payload, whatever the transport.
const (
	HeaderMessageID   = "X-Message-Id"
	HeaderMessageKind = "X-Message-Kind"
)

// Message is what the dispatch worker hands to a transport. Payload bytes
// are opaque here; the protocol layer above defines their structure.
type Message struct {
	ID      int
	Kind    domain.Kind
	Payload []byte
}

func (m Message) idHeader() string   { return strconv.Itoa(m.ID) }
func (m Message) kindHeader() string { return m.Kind.String() }

// Sender abstracts delivery to the network. A nil error means the transport
// accepted the bytes; acknowledgment arrives separately.
// Mocking this interface in tests gives full control over send outcomes.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}
