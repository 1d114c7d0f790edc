// services/dataset-api/internal/transport/http/routes.go
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/YaganovValera/dataset-api/common/middleware"
)

// Routes собирает публичные маршруты. rl == nil отключает лимит на /query.
func Routes(h *Handler, rl *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(otelhttp.NewMiddleware("dataset-api"))
	r.Use(middleware.Metrics())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/columns", h.Columns)

	r.Group(func(r chi.Router) {
		if rl != nil {
			r.Use(middleware.RateLimit(rl))
		}
		r.Post("/query", h.Query)
	})

	return r
}
