package notify

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher fans events out to sinks from a background worker. Publish never
// blocks: when the buffer is full the event goes straight to the fallback
// sink. When a primary sink fails, the event also lands in the fallback so no
// notification is silently lost.
type Dispatcher struct {
	sinks    []Sink
	fallback Sink
	inbox    chan Event
	logger   *slog.Logger
}

const defaultBuffer = 256

func NewDispatcher(logger *slog.Logger, fallback Sink, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:    sinks,
		fallback: fallback,
		inbox:    make(chan Event, defaultBuffer),
		logger:   logger,
	}
}

// Publish enqueues the event. Called by services after their transaction has
// committed; a full buffer routes to the fallback rather than blocking.
func (d *Dispatcher) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case d.inbox <- event:
	default:
		d.logger.Warn("notification buffer full, writing fallback", "event", event.Name, "subject_id", event.SubjectID)
		d.toFallback(context.Background(), event)
	}
}

// Run consumes the inbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-d.inbox:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	if len(d.sinks) == 0 {
		d.toFallback(ctx, event)
		return
	}
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, event); err != nil {
			d.logger.Warn("notification delivery failed",
				"event", event.Name, "subject_id", event.SubjectID, "error", err)
			d.toFallback(ctx, event)
		}
	}
}

func (d *Dispatcher) toFallback(ctx context.Context, event Event) {
	if d.fallback == nil {
		return
	}
	if err := d.fallback.Notify(ctx, event); err != nil {
		d.logger.Error("fallback notification write failed",
			"event", event.Name, "subject_id", event.SubjectID, "error", err)
	}
}
