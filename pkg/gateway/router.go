package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filingmesh/filingmesh/pkg/entity"
	"github.com/filingmesh/filingmesh/pkg/manager"
)

// NewRouter assembles the gateway routes around the handler.
func NewRouter(h *Handler, entities *entity.Router, relay *manager.Relay, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(Metrics)

	r.Get("/health", healthHandler(entities, relay))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/institutions/{institutionId}/filings/{period}/submissions", func(r chi.Router) {
		r.Post("/", h.CreateSubmission)
		r.Get("/{seqNr}", h.GetSubmission)
		r.Post("/{seqNr}", h.UploadSubmission)
	})

	return r
}

func healthHandler(entities *entity.Router, relay *manager.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"active_entities": entities.Active(),
			"subscribers":     relay.Subscribers(),
		})
	}
}
