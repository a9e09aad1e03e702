package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dutyguard/internal/domain"
	"dutyguard/internal/review"
	dErrors "dutyguard/pkg/domain-errors"
	"dutyguard/pkg/platform/httputil"
	"dutyguard/pkg/requestcontext"
)

// Service defines the review operations the handler needs.
type Service interface {
	Decide(ctx context.Context, d review.Decision) (domain.ReviewTicket, error)
	Get(ctx context.Context, ticketID string) (domain.ReviewTicket, error)
	List(ctx context.Context) ([]domain.ReviewTicket, error)
}

// Handler wires review-queue endpoints to the review service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts review endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/reviews", h.HandleList)
	r.Get("/reviews/{ticketID}", h.HandleGet)
	r.Get("/reviews/{ticketID}/report", h.HandleReport)
	r.Post("/reviews/{ticketID}/decision", h.HandleDecide)
}

// DecisionRequest is the HTTP request body for POST /api/reviews/{id}/decision.
type DecisionRequest struct {
	Outcome    string `json:"outcome"`
	Rationale  string `json:"rationale"`
	ReviewerID string `json:"reviewer_id"`
}

// HandleDecide handles POST /api/reviews/{ticketID}/decision.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ticketID := chi.URLParam(r, "ticketID")
	start := time.Now()

	req, err := httputil.Decode[DecisionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// Reviewer can come from the body or from the X-Actor header.
	reviewer := strings.TrimSpace(req.ReviewerID)
	if reviewer == "" {
		reviewer = requestcontext.Actor(ctx)
	}

	ticket, err := h.service.Decide(ctx, review.Decision{
		TicketID:   ticketID,
		Outcome:    strings.TrimSpace(req.Outcome),
		Rationale:  strings.TrimSpace(req.Rationale),
		ReviewerID: reviewer,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "decision rejected",
			"request_id", requestID,
			"ticket_id", ticketID,
			"outcome", req.Outcome,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ticket decided",
		"request_id", requestID,
		"ticket_id", ticketID,
		"status", ticket.Status,
		"reviewer", reviewer,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, ticket)
}

// HandleGet handles GET /api/reviews/{ticketID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.Get(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ticket)
}

// HandleReport handles GET /api/reviews/{ticketID}/report.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.Get(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review.BuildReport(ticket))
}

// HandleList handles GET /api/reviews. The optional status query parameter
// filters the queue.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.TicketStatus(raw)
		switch status {
		case domain.TicketOpen, domain.TicketApproved, domain.TicketRejected:
		default:
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", raw).WithField("status"))
			return
		}
		filtered := tickets[:0:0]
		for _, t := range tickets {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		tickets = filtered
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tickets": tickets,
		"count":   len(tickets),
	})
}
