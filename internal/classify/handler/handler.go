package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dutyguard/internal/classify"
	"dutyguard/pkg/platform/httputil"
	"dutyguard/pkg/requestcontext"
)

// Service defines the classification operations the handler needs.
type Service interface {
	Classify(ctx context.Context, req classify.Request) (classify.Result, error)
}

// Handler wires classification endpoints to the routing service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts classification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/classify", h.HandleClassify)
}

// HandleClassify handles POST /api/classify.
func (h *Handler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, err := httputil.Decode[ClassifyRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Classify(ctx, req.ToDomain())
	if err != nil {
		h.logger.ErrorContext(ctx, "classification failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "classification routed",
		"request_id", requestID,
		"requires_review", result.RequiresReview,
		"ticket_id", result.TicketID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}
