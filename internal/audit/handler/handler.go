package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dutyguard/internal/audit"
	"dutyguard/internal/storage"
	dErrors "dutyguard/pkg/domain-errors"
	"dutyguard/pkg/platform/httputil"
)

const defaultLimit = 100

// Handler serves read-only views over the audit ledger.
type Handler struct {
	store  storage.Store
	logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleList)
	r.Get("/audit/verify", h.HandleVerify)
}

// HandleList handles GET /api/audit. The limit query parameter caps the number
// of most recent entries returned; limit=0 returns the full ledger.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer").WithField("limit"))
			return
		}
		limit = n
	}

	var events []audit.Event
	err := h.store.View(r.Context(), func(tx storage.ReadTx) error {
		var err error
		events, err = tx.ListAudit(r.Context(), limit)
		return err
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// HandleVerify handles GET /api/audit/verify: it re-walks the hash chain over
// the full ledger and reports the first broken link, if any.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var events []audit.Event
	err := h.store.View(r.Context(), func(tx storage.ReadTx) error {
		var err error
		events, err = tx.ListAudit(r.Context(), 0)
		return err
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := audit.Verify(events); err != nil {
		h.logger.ErrorContext(r.Context(), "audit chain verification failed", "error", err)
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"ok":     false,
			"events": len(events),
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"events": len(events),
	})
}
