// Package classify is the classification router: it scores a product through
// an external collaborator and decides whether the result can stand on its
// own or needs a human reviewer behind a ticket.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dutyguard/internal/audit"
	"dutyguard/internal/classify/metrics"
	"dutyguard/internal/domain"
	"dutyguard/internal/notify"
	"dutyguard/internal/storage"
	dErrors "dutyguard/pkg/domain-errors"
	pstrings "dutyguard/pkg/platform/strings"
	"dutyguard/pkg/requestcontext"
)

// Thresholds control routing. Confidence below Approval, or risk at or above
// Risk, sends the classification to human review.
type Thresholds struct {
	Approval float64
	Risk     float64
}

// Notifier receives domain events after commit.
type Notifier interface {
	Publish(event notify.Event)
}

type Service struct {
	scorer     Scorer
	store      storage.Store
	notifier   Notifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
	thresholds Thresholds
}

func NewService(scorer Scorer, store storage.Store, notifier Notifier, logger *slog.Logger, m *metrics.Metrics, t Thresholds) *Service {
	return &Service{scorer: scorer, store: store, notifier: notifier, logger: logger, metrics: m, thresholds: t}
}

// Request is one classification submission.
type Request struct {
	Description string
	Attributes  Attributes
	// RequestReview forces a ticket regardless of score.
	RequestReview bool
	// PriorTicketID links a resubmission to a rejected ticket. Rejected
	// tickets are never reopened; a fresh ticket references the old one.
	PriorTicketID string
}

// Result is the routed classification. TicketID is set only when the result
// was routed to human review.
type Result struct {
	domain.Classification
	RequiresReview bool   `json:"requires_review"`
	TicketID       string `json:"ticket_id,omitempty"`
}

// Classify scores the input and routes it. Both branches commit a
// classification_issued audit event; the review branch additionally creates
// the open ticket in the same atomic unit.
func (s *Service) Classify(ctx context.Context, req Request) (Result, error) {
	if req.Description == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "description must not be empty").WithField("description")
	}

	start := time.Now()
	classification, err := s.scorer.Score(ctx, req.Description, req.Attributes)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "scoring failed")
	}
	s.metrics.ObserveScoreLatency(time.Since(start))

	requiresReview := classification.Confidence < s.thresholds.Approval ||
		classification.RiskScore >= s.thresholds.Risk ||
		req.RequestReview

	reasons := append([]string{}, classification.ReviewReasons...)
	if classification.Confidence < s.thresholds.Approval {
		reasons = append(reasons, fmt.Sprintf("Confidence %.2f is below approval threshold %.2f.", classification.Confidence, s.thresholds.Approval))
	}
	if classification.RiskScore >= s.thresholds.Risk {
		reasons = append(reasons, fmt.Sprintf("Risk score %.2f meets or exceeds risk threshold %.2f.", classification.RiskScore, s.thresholds.Risk))
	}
	if req.RequestReview {
		reasons = append(reasons, "Manual review explicitly requested.")
	}
	classification.ReviewReasons = pstrings.DedupeAndTrim(reasons)

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		actor = "system"
	}

	result := Result{Classification: classification, RequiresReview: requiresReview}

	var subjectID string
	var subjectKind audit.SubjectKind
	var ticket domain.ReviewTicket
	if requiresReview {
		ticket = domain.ReviewTicket{
			ID:             domain.NewTicketID(),
			Classification: classification,
			Status:         domain.TicketOpen,
			PriorTicketID:  req.PriorTicketID,
			CreatedAt:      requestcontext.Now(ctx).UTC(),
		}
		subjectID, subjectKind = ticket.ID, audit.SubjectTicket
		result.TicketID = ticket.ID
	} else {
		subjectID, subjectKind = "cls_"+uuid.NewString(), audit.SubjectClassification
	}

	err = s.store.RunInTx(ctx, subjectID, func(tx storage.Tx) error {
		if requiresReview {
			if req.PriorTicketID != "" {
				prior, err := tx.FindTicket(ctx, req.PriorTicketID)
				if err != nil {
					if dErrors.HasCode(err, dErrors.CodeNotFound) {
						return dErrors.Newf(dErrors.CodeNotFound, "prior ticket %s not found", req.PriorTicketID).WithField("prior_ticket_id")
					}
					return err
				}
				if prior.Status != domain.TicketRejected {
					return dErrors.Newf(dErrors.CodeInvalidState, "prior ticket is %s; only rejected tickets can be resubmitted", prior.Status).WithField("prior_ticket_id")
				}
			}
			if err := tx.SaveTicket(ctx, ticket); err != nil {
				return err
			}
		}
		return tx.AppendAudit(ctx, audit.New(subjectKind, subjectID, audit.ActionClassificationIssued, actor, map[string]any{
			"code":            classification.Code,
			"confidence":      classification.Confidence,
			"risk_score":      classification.RiskScore,
			"requires_review": requiresReview,
			"review_reasons":  classification.ReviewReasons,
		}))
	})
	if err != nil {
		return Result{}, err
	}

	if requiresReview {
		s.metrics.IncrementRouted("review")
		s.notifier.Publish(notify.Event{
			Name:      notify.EventTicketOpened,
			SubjectID: ticket.ID,
			Payload: map[string]any{
				"confidence": classification.Confidence,
				"risk_score": classification.RiskScore,
				"reasons":    classification.ReviewReasons,
			},
		})
	} else {
		s.metrics.IncrementRouted("auto")
	}

	s.logger.InfoContext(ctx, "classification issued",
		"request_id", requestcontext.RequestID(ctx),
		"code", classification.Code,
		"confidence", classification.Confidence,
		"risk_score", classification.RiskScore,
		"requires_review", requiresReview,
		"ticket_id", result.TicketID,
	)
	return result, nil
}
