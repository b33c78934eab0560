// Package httptransport is the thin HTTP layer over the pipeline, artifact
// store, export, and receipt services. Handlers decode, delegate, and render;
// business rules live in the stage packages.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lexaudit/pkg/requestcontext"
)

// NewRouter wires all public endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.handleCreateRun)
		r.Get("/{runID}/artifacts/{key}", h.handleGetArtifact)
		r.Get("/{runID}/report", h.handleGetReport)
		r.Get("/{runID}/audit", h.handleListAuditEvents)
	})

	r.Post("/receipts/verify", h.handleVerifyReceipt)

	return r
}

// requestIDMiddleware honors an inbound X-Request-ID or generates one, and
// echoes it back on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
