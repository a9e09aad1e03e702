// Package digest posts a scheduled operational summary to the notification
// sinks. It is a convenience layer over the summary aggregator; the workflow
// core has no timers of its own.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"dutyguard/internal/notify"
	"dutyguard/internal/summary"
)

// EventDigest is the notification name carried by scheduled digests.
const EventDigest = "daily_digest"

type Notifier interface {
	Publish(event notify.Event)
}

type Digest struct {
	summarizer *summary.Service
	notifier   Notifier
	logger     *slog.Logger
	schedule   cron.Schedule
	spec       string
}

// New parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 9 * * 1-5".
func New(spec string, summarizer *summary.Service, notifier Notifier, logger *slog.Logger) (*Digest, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse digest schedule %q: %w", spec, err)
	}
	return &Digest{
		summarizer: summarizer,
		notifier:   notifier,
		logger:     logger,
		schedule:   schedule,
		spec:       spec,
	}, nil
}

// Run fires the digest on schedule until ctx is cancelled.
func (d *Digest) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "digest scheduler started", "schedule", d.spec)
	for {
		now := time.Now()
		next := d.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := d.Emit(ctx); err != nil {
			d.logger.ErrorContext(ctx, "digest failed", "error", err)
		}
	}
}

// Emit aggregates one summary and publishes it. Exposed separately so an
// operator endpoint or test can trigger a digest without waiting for the
// schedule.
func (d *Digest) Emit(ctx context.Context) error {
	sum, err := d.summarizer.Summarize(ctx)
	if err != nil {
		return fmt.Errorf("summarize for digest: %w", err)
	}

	d.notifier.Publish(notify.Event{
		Name: EventDigest,
		At:   time.Now().UTC(),
		Payload: map[string]any{
			"text":                   Format(sum),
			"total_tickets":          sum.TotalTickets,
			"open_tickets":           sum.TicketCounts["open"],
			"packets_generated":      sum.PacketsGenerated,
			"total_recovery_claimed": sum.TotalRecoveryClaimed,
			"audit_events":           sum.AuditEvents,
		},
	})
	d.logger.InfoContext(ctx, "digest published",
		"total_tickets", sum.TotalTickets,
		"packets_generated", sum.PacketsGenerated,
	)
	return nil
}

// Format renders the summary as the human-readable line posted to chat sinks.
func Format(sum summary.Summary) string {
	return fmt.Sprintf(
		"Daily digest: %d tickets (%d open, %d approved, %d rejected), avg decision time %s, %d claim packets totaling $%.2f, %d audit events",
		sum.TotalTickets,
		sum.TicketCounts["open"],
		sum.TicketCounts["approved"],
		sum.TicketCounts["rejected"],
		sum.AverageTimeToDecision.Round(time.Second),
		sum.PacketsGenerated,
		sum.TotalRecoveryClaimed,
		sum.AuditEvents,
	)
}
