package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dutyguard/internal/registry"
	"dutyguard/internal/summary"
	"dutyguard/pkg/platform/httputil"
)

// Service defines the aggregation operations the handler needs.
type Service interface {
	Summarize(ctx context.Context) (summary.Summary, error)
}

// Handler serves the operational summary and the static source registry.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts summary endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/metrics/summary", h.HandleSummary)
	r.Get("/sources", h.HandleSources)
}

// HandleSummary handles GET /api/metrics/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summarize(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "summary aggregation failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

// HandleSources handles GET /api/sources.
func (h *Handler) HandleSources(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"sources":          registry.Sources(),
		"legal_disclaimer": registry.Disclaimer,
	})
}
