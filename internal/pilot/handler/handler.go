package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dutyguard/internal/domain"
	"dutyguard/internal/pilot"
	"dutyguard/pkg/platform/httputil"
	"dutyguard/pkg/requestcontext"
)

// Service defines the pilot operations the handler needs.
type Service interface {
	Onboard(ctx context.Context, customerName string, entries []domain.PilotEntry) (domain.PilotBatch, error)
	Prioritize(ctx context.Context, batchID string) (pilot.Prioritized, error)
	Get(ctx context.Context, batchID string) (domain.PilotBatch, error)
}

// Handler wires pilot endpoints to the pilot service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts pilot endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/pilot/onboard", h.HandleOnboard)
	r.Get("/pilot/batches/{batchID}", h.HandleGet)
	r.Get("/pilot/prioritize/{batchID}", h.HandlePrioritize)
}

// OnboardRequest is the HTTP request body for POST /api/pilot/onboard.
type OnboardRequest struct {
	CustomerName string              `json:"customer_name"`
	Entries      []domain.PilotEntry `json:"entries"`
}

// HandleOnboard handles POST /api/pilot/onboard.
func (h *Handler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, err := httputil.Decode[OnboardRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	batch, err := h.service.Onboard(ctx, strings.TrimSpace(req.CustomerName), req.Entries)
	if err != nil {
		h.logger.ErrorContext(ctx, "onboarding rejected",
			"request_id", requestID,
			"customer", req.CustomerName,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "batch onboarded",
		"request_id", requestID,
		"batch_id", batch.ID,
		"entries", len(batch.Entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, batch)
}

// HandleGet handles GET /api/pilot/batches/{batchID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Get(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, batch)
}

// HandlePrioritize handles GET /api/pilot/prioritize/{batchID}.
func (h *Handler) HandlePrioritize(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.service.Prioritize(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ranked)
}
