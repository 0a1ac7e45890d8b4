/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in access logs
  2. AccessLog:  One zap line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for an operator console

ROUTE GROUPS:
  /healthz             Store availability
  /api/asset/*         Customer operations
  /api/admin/*         Back-office operations
  /api/system/*        Calendar and daily jobs

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(AccessLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Customer routes
		r.Route("/asset/cio", func(r chi.Router) {
			r.Post("/withdraw", h.Withdraw)
			r.Get("/unprocessedOut", h.FindUnprocessedCashOut)
			r.Post("/{id}/cancel", h.CancelCashOut)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/asset/cio", h.FindCashInOut)
			r.Post("/asset/cio/{id}/cancel", h.CancelCashInOut)
			r.Get("/asset/cf", h.FindCashflows)

			r.Get("/holidays", h.ListHolidays)
			r.Post("/holidays", h.RegisterHolidays)
			r.Delete("/holidays/{id}", h.DeleteHoliday)

			r.Post("/accounts/fi", h.RegisterFiAccount)
			r.Post("/accounts/self", h.RegisterSelfFiAccount)

			r.Get("/settings", h.FindSettings)
			r.Post("/settings/{id}", h.ChangeSetting)
		})

		// System routes
		r.Route("/system", func(r chi.Router) {
			r.Get("/day", h.CurrentDay)
			r.Route("/job/daily", func(r chi.Router) {
				r.Post("/processDay", h.ProcessDay)
				r.Post("/closingCashOut", h.CloseCashOut)
				r.Post("/realizeCashflow", h.RealizeCashflows)
			})
		})
	})

	return r
}

// AccessLog writes one structured line per request.
func AccessLog(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
