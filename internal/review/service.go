// Package review owns the ticket lifecycle. Tickets are created open by the
// classification router and move to exactly one terminal state through a
// reviewer decision; the decision, its audit event, and the status change
// commit as one atomic unit.
package review

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	"dutyguard/internal/notify"
	"dutyguard/internal/review/metrics"
	"dutyguard/internal/storage"
	dErrors "dutyguard/pkg/domain-errors"
	"dutyguard/pkg/requestcontext"
)

// Notifier receives domain events after commit. Delivery is fire-and-forget.
type Notifier interface {
	Publish(event notify.Event)
}

type Service struct {
	store    storage.Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewService(store storage.Store, notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, notifier: notifier, logger: logger, metrics: m}
}

// Decision carries a reviewer's verdict on an open ticket.
type Decision struct {
	TicketID   string
	Outcome    string
	Rationale  string
	ReviewerID string
}

// Decide applies a decision. Exactly one concurrent decision on the same
// ticket can succeed; the loser observes the terminal state and fails with
// invalid_state_transition (or conflict when the store detects the race
// first). Terminal states are never left.
func (s *Service) Decide(ctx context.Context, d Decision) (domain.ReviewTicket, error) {
	outcome, ok := domain.ParseDecisionOutcome(d.Outcome)
	if !ok {
		return domain.ReviewTicket{}, dErrors.Newf(dErrors.CodeValidation, "outcome must be %q or %q", domain.OutcomeApprove, domain.OutcomeReject).WithField("outcome")
	}
	if d.Rationale == "" {
		return domain.ReviewTicket{}, dErrors.New(dErrors.CodeValidation, "decision rationale must not be empty").WithField("rationale")
	}
	if d.ReviewerID == "" {
		return domain.ReviewTicket{}, dErrors.New(dErrors.CodeValidation, "reviewer id is required").WithField("reviewer_id")
	}

	start := time.Now()
	var decided domain.ReviewTicket
	err := s.store.RunInTx(ctx, d.TicketID, func(tx storage.Tx) error {
		ticket, err := tx.FindTicket(ctx, d.TicketID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "review ticket %s not found", d.TicketID).WithField(d.TicketID)
			}
			return err
		}
		if ticket.Status != domain.TicketOpen {
			return dErrors.Newf(dErrors.CodeInvalidState, "ticket is %s, not open", ticket.Status).WithField(d.TicketID)
		}

		oldStatus := ticket.Status
		now := requestcontext.Now(ctx).UTC()
		ticket.Status = outcome.Status()
		ticket.DecisionRationale = d.Rationale
		ticket.Reviewer = d.ReviewerID
		ticket.DecidedAt = &now

		if err := tx.SaveTicket(ctx, ticket); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.New(audit.SubjectTicket, ticket.ID, audit.ActionTicketDecided, d.ReviewerID, map[string]any{
			"old_status": oldStatus,
			"new_status": ticket.Status,
			"rationale":  d.Rationale,
			"reviewer":   d.ReviewerID,
		})); err != nil {
			return err
		}
		decided = ticket
		return nil
	})
	if err != nil {
		return domain.ReviewTicket{}, err
	}

	s.metrics.IncrementDecision(string(outcome))
	s.metrics.ObserveDecideLatency(time.Since(start))
	s.notifier.Publish(notify.Event{
		Name:      notify.EventTicketDecided,
		SubjectID: decided.ID,
		Payload: map[string]any{
			"new_status": string(decided.Status),
			"reviewer":   d.ReviewerID,
		},
	})
	s.logger.InfoContext(ctx, "ticket decided",
		"ticket_id", decided.ID,
		"outcome", outcome,
		"reviewer", d.ReviewerID,
	)
	return decided, nil
}

// Get returns one ticket by id.
func (s *Service) Get(ctx context.Context, ticketID string) (domain.ReviewTicket, error) {
	var ticket domain.ReviewTicket
	err := s.store.View(ctx, func(tx storage.ReadTx) error {
		t, err := tx.FindTicket(ctx, ticketID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "review ticket %s not found", ticketID).WithField(ticketID)
			}
			return err
		}
		ticket = t
		return nil
	})
	return ticket, err
}

// List returns all tickets, newest first.
func (s *Service) List(ctx context.Context) ([]domain.ReviewTicket, error) {
	var tickets []domain.ReviewTicket
	err := s.store.View(ctx, func(tx storage.ReadTx) error {
		ts, err := tx.ListTickets(ctx)
		if err != nil {
			return err
		}
		tickets = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
	return tickets, nil
}

// Report is the human-readable classification summary for one ticket.
type Report struct {
	TicketID           string              `json:"ticket_id"`
	Status             domain.TicketStatus `json:"status"`
	SuggestedCode      string              `json:"suggested_hs_code"`
	DutyRate           float64             `json:"duty_rate"`
	Confidence         float64             `json:"confidence"`
	ConfidenceInterval [2]float64          `json:"confidence_interval"`
	RiskScore          float64             `json:"risk_score"`
	Rationale          []string            `json:"why_this_classification"`
	ReviewReasons      []string            `json:"review_reasons"`
}

// BuildReport flattens a ticket's classification for reviewers and exporters.
func BuildReport(t domain.ReviewTicket) Report {
	c := t.Classification
	return Report{
		TicketID:           t.ID,
		Status:             t.Status,
		SuggestedCode:      c.Code,
		DutyRate:           c.DutyRate,
		Confidence:         c.Confidence,
		ConfidenceInterval: c.ConfidenceInterval,
		RiskScore:          c.RiskScore,
		Rationale:          c.Rationale,
		ReviewReasons:      c.ReviewReasons,
	}
}
