package api

import (
	"net/http"
	"time"

	"github.com/futig/risk-report-backend/internal/api/docs"
	"github.com/futig/risk-report-backend/internal/api/middleware"
	reportapi "github.com/futig/risk-report-backend/internal/api/report"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(reportHandler *reportapi.Handler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.Recoverer)         // Recover from panics
	r.Use(chimiddleware.RequestID)         // Add request ID
	r.Use(middleware.Logger(logger))       // Log requests
	r.Use(middleware.CORS(allowedOrigins)) // Handle CORS

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		})

		// Swagger documentation endpoints
		docs.RegisterRoutes(r)
	})

	// Report runs last as long as the model backends take, the request context is their only deadline
	r.Route("/api/v1", func(r chi.Router) {
		reportapi.RegisterRoutes(r, reportHandler)
	})

	return r
}
