// Package notify delivers domain events to external sinks. Delivery is
// best-effort and fully decoupled from the workflow core: the core hands an
// event to the dispatcher after its transaction commits and never blocks on
// or rolls back for delivery.
package notify

import (
	"context"
	"time"
)

// Event names exposed to subscribers.
const (
	EventTicketOpened    = "ticket_opened"
	EventTicketDecided   = "ticket_decided"
	EventPacketGenerated = "claim_packet_generated"
)

// Event is the envelope handed to sinks.
type Event struct {
	Name      string         `json:"event"`
	SubjectID string         `json:"subject_id"`
	At        time.Time      `json:"at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink delivers one event. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }
