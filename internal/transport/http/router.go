// Package httptransport assembles the public HTTP API. Handlers stay thin and
// delegate to domain services; everything request-scoped (correlation id,
// actor, deadline) is set up here as middleware.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditHandler "dutyguard/internal/audit/handler"
	classifyHandler "dutyguard/internal/classify/handler"
	packetHandler "dutyguard/internal/packet/handler"
	pilotHandler "dutyguard/internal/pilot/handler"
	"dutyguard/internal/platform/middleware"
	reviewHandler "dutyguard/internal/review/handler"
	summaryHandler "dutyguard/internal/summary/handler"
	"dutyguard/pkg/platform/httputil"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries the module handlers mounted under /api.
type Deps struct {
	Classify *classifyHandler.Handler
	Review   *reviewHandler.Handler
	Pilot    *pilotHandler.Handler
	Packet   *packetHandler.Handler
	Summary  *summaryHandler.Handler
	Audit    *auditHandler.Handler
}

// NewRouter wires all endpoints.
func NewRouter(deps Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Actor)
	r.Use(middleware.Logger(logger))

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(30 * time.Second))
		api.Use(middleware.ContentTypeJSON)
		for _, h := range []Registrar{deps.Classify, deps.Review, deps.Pilot, deps.Packet, deps.Summary, deps.Audit} {
			h.Register(api)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
