package report

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers report routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/reports", func(r chi.Router) {
		r.Post("/generate", h.GenerateStream)
		r.Post("/generate/sync", h.GenerateSync)
		r.Post("/generate/async", h.GenerateAsync)
		r.Post("/export", h.Export)
	})
}
