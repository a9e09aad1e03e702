package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	"dutyguard/internal/notify"
	"dutyguard/internal/platform/logger"
	"dutyguard/internal/storage"
	dErrors "dutyguard/pkg/domain-errors"
	"dutyguard/pkg/requestcontext"
)

type capturingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *capturingNotifier) Publish(event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *capturingNotifier) all() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event{}, n.events...)
}

type ReviewServiceSuite struct {
	suite.Suite
	store    *storage.MemoryStore
	notifier *capturingNotifier
	service  *Service
	ctx      context.Context
}

func TestReviewServiceSuite(t *testing.T) {
	suite.Run(t, new(ReviewServiceSuite))
}

func (s *ReviewServiceSuite) SetupTest() {
	s.store = storage.NewMemoryStore()
	s.notifier = &capturingNotifier{}
	s.service = NewService(s.store, s.notifier, logger.Discard(), nil)
	s.ctx = context.Background()
}

func (s *ReviewServiceSuite) openTicket(id string) {
	err := s.store.RunInTx(s.ctx, id, func(tx storage.Tx) error {
		if err := tx.SaveTicket(s.ctx, domain.ReviewTicket{
			ID:     id,
			Status: domain.TicketOpen,
			Classification: domain.Classification{
				Code:       "8471.30.01",
				Confidence: 0.40,
				RiskScore:  0.30,
			},
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return tx.AppendAudit(s.ctx, audit.New(audit.SubjectTicket, id, audit.ActionClassificationIssued, "system", nil))
	})
	s.Require().NoError(err)
}

func (s *ReviewServiceSuite) TestDecide() {
	s.Run("approve moves ticket to terminal state atomically with its audit event", func() {
		s.openTicket("review_ok")

		decided, err := s.service.Decide(s.ctx, Decision{
			TicketID:   "review_ok",
			Outcome:    "approve",
			Rationale:  "HS code matches CROSS precedent",
			ReviewerID: "reviewer-7",
		})
		s.Require().NoError(err)
		s.Equal(domain.TicketApproved, decided.Status)
		s.Equal("HS code matches CROSS precedent", decided.DecisionRationale)
		s.Equal("reviewer-7", decided.Reviewer)
		s.Require().NotNil(decided.DecidedAt)

		err = s.store.View(s.ctx, func(tx storage.ReadTx) error {
			events, err := tx.ListAudit(s.ctx, 0)
			s.Require().NoError(err)
			s.Require().Len(events, 2)
			last := events[len(events)-1]
			s.Equal(audit.ActionTicketDecided, last.Action)
			s.Equal("review_ok", last.SubjectID)
			s.Equal("reviewer-7", last.Actor)
			return nil
		})
		s.Require().NoError(err)

		events := s.notifier.all()
		s.Require().Len(events, 1)
		s.Equal(notify.EventTicketDecided, events[0].Name)
	})

	s.Run("reject stores the rejected terminal state", func() {
		s.openTicket("review_rej")
		decided, err := s.service.Decide(s.ctx, Decision{
			TicketID:   "review_rej",
			Outcome:    "reject",
			Rationale:  "description insufficient for GRI 1 analysis",
			ReviewerID: "reviewer-2",
		})
		s.Require().NoError(err)
		s.Equal(domain.TicketRejected, decided.Status)
	})

	s.Run("empty rationale is rejected before any store access", func() {
		_, err := s.service.Decide(s.ctx, Decision{
			TicketID:   "review_ok",
			Outcome:    "approve",
			Rationale:  "",
			ReviewerID: "reviewer-7",
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing reviewer id is rejected", func() {
		_, err := s.service.Decide(s.ctx, Decision{
			TicketID:  "review_ok",
			Outcome:   "reject",
			Rationale: "missing materials",
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown outcome is rejected", func() {
		_, err := s.service.Decide(s.ctx, Decision{
			TicketID:   "review_ok",
			Outcome:    "escalate",
			Rationale:  "needs counsel",
			ReviewerID: "reviewer-7",
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown ticket fails with not_found", func() {
		_, err := s.service.Decide(s.ctx, Decision{
			TicketID:   "review_missing",
			Outcome:    "approve",
			Rationale:  "fine",
			ReviewerID: "reviewer-1",
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ReviewServiceSuite) TestDecideUsesRequestTime() {
	s.openTicket("review_pinned")

	pinned := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	decided, err := s.service.Decide(requestcontext.WithTime(s.ctx, pinned), Decision{
		TicketID:   "review_pinned",
		Outcome:    "approve",
		Rationale:  "HS code matches CROSS precedent",
		ReviewerID: "reviewer-7",
	})

	s.Require().NoError(err)
	s.Require().NotNil(decided.DecidedAt)
	s.Equal(pinned, *decided.DecidedAt)
}

func (s *ReviewServiceSuite) TestTerminalStateIsNeverLeft() {
	s.openTicket("review_final")
	_, err := s.service.Decide(s.ctx, Decision{
		TicketID: "review_final", Outcome: "reject",
		Rationale: "no material data", ReviewerID: "reviewer-1",
	})
	s.Require().NoError(err)

	for _, outcome := range []string{"approve", "reject"} {
		_, err := s.service.Decide(s.ctx, Decision{
			TicketID: "review_final", Outcome: outcome,
			Rationale: "second opinion", ReviewerID: "reviewer-2",
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState), "outcome %s", outcome)
	}

	ticket, err := s.service.Get(s.ctx, "review_final")
	s.Require().NoError(err)
	s.Equal(domain.TicketRejected, ticket.Status)
	s.Equal("reviewer-1", ticket.Reviewer)
}

func (s *ReviewServiceSuite) TestConcurrentDecides() {
	s.openTicket("review_race")

	outcomes := []string{"approve", "reject"}
	errs := make([]error, len(outcomes))
	var wg sync.WaitGroup
	for i, outcome := range outcomes {
		wg.Add(1)
		go func(i int, outcome string) {
			defer wg.Done()
			_, errs[i] = s.service.Decide(s.ctx, Decision{
				TicketID:   "review_race",
				Outcome:    outcome,
				Rationale:  "racing decision",
				ReviewerID: "reviewer-" + outcome,
			})
		}(i, outcome)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case dErrors.HasCode(err, dErrors.CodeInvalidState), dErrors.HasCode(err, dErrors.CodeConflict):
			losses++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, wins)
	s.Equal(1, losses)

	// exactly one committed decision in the ledger
	err := s.store.View(s.ctx, func(tx storage.ReadTx) error {
		events, err := tx.ListAudit(s.ctx, 0)
		s.Require().NoError(err)
		var decisions int
		for _, e := range events {
			if e.Action == audit.ActionTicketDecided {
				decisions++
			}
		}
		s.Equal(1, decisions)
		return nil
	})
	s.Require().NoError(err)

	ticket, err := s.service.Get(s.ctx, "review_race")
	s.Require().NoError(err)
	s.True(ticket.Status.IsTerminal())
}

func (s *ReviewServiceSuite) TestListOrdersNewestFirst() {
	s.openTicket("review_1")
	time.Sleep(2 * time.Millisecond)
	s.openTicket("review_2")

	tickets, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(tickets, 2)
	s.Equal("review_2", tickets[0].ID)
}

func TestBuildReport(t *testing.T) {
	ticket := domain.ReviewTicket{
		ID:     "review_r",
		Status: domain.TicketOpen,
		Classification: domain.Classification{
			Code:               "8471.30.01",
			DutyRate:           0.05,
			Confidence:         0.55,
			ConfidenceInterval: [2]float64{0.49, 0.61},
			RiskScore:          0.45,
			Rationale:          []string{"Analyzed General Goods based on GRI 1."},
			ReviewReasons:      []string{"Material composition is missing."},
		},
	}
	report := BuildReport(ticket)
	if report.SuggestedCode != "8471.30.01" || report.TicketID != "review_r" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.ReviewReasons) != 1 {
		t.Fatalf("expected review reasons to carry through")
	}
}
