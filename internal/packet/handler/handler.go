package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dutyguard/internal/domain"
	"dutyguard/internal/packet"
	"dutyguard/pkg/platform/httputil"
	"dutyguard/pkg/requestcontext"
)

// Service defines the claim-packet operations the handler needs.
type Service interface {
	Generate(ctx context.Context, batchID string) (domain.ClaimPacket, error)
	Get(ctx context.Context, packetID string) (domain.ClaimPacket, error)
	List(ctx context.Context) ([]domain.ClaimPacket, error)
}

// Handler wires claim-packet endpoints to the packet service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts claim-packet endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/pilot/claim-packet/{batchID}", h.HandleGenerate)
	r.Get("/pilot/claim-packet/{packetID}/export", h.HandleExport)
	r.Get("/packets", h.HandleList)
	r.Get("/packets/{packetID}", h.HandleGet)
}

// HandleGenerate handles POST /api/pilot/claim-packet/{batchID}.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	batchID := chi.URLParam(r, "batchID")
	start := time.Now()

	generated, err := h.service.Generate(ctx, batchID)
	if err != nil {
		h.logger.ErrorContext(ctx, "packet generation failed",
			"request_id", requestID,
			"batch_id", batchID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "packet generated",
		"request_id", requestID,
		"packet_id", generated.ID,
		"batch_id", batchID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, generated)
}

// HandleExport handles GET /api/pilot/claim-packet/{packetID}/export and
// streams the packet as CSV.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	packetID := chi.URLParam(r, "packetID")
	found, err := h.service.Get(r.Context(), packetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", packetID))
	if err := packet.ExportCSV(w, found); err != nil {
		h.logger.ErrorContext(r.Context(), "csv export failed",
			"packet_id", packetID,
			"error", err,
		)
	}
}

// HandleGet handles GET /api/packets/{packetID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.Get(r.Context(), chi.URLParam(r, "packetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

// HandleList handles GET /api/packets.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	packets, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"packets": packets,
		"count":   len(packets),
	})
}
