package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"miniapp-server/internal/http/handlers"
	"miniapp-server/internal/infra"
	mw "miniapp-server/internal/middleware"
)

// NewRouter wires the full HTTP surface.
func NewRouter(app *handlers.App, log infra.Logger, allowedOrigins []string, rateLimitPerMin int) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		mw.RequestID,
		mw.CORS(allowedOrigins),
		mw.Logger(log),
		mw.RateLimit(rateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/assets/{key}", app.Asset)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", app.CreateSession)
			r.Get("/{id}", app.GetSession)
			r.Post("/{id}/generate", app.Generate)
			r.Post("/{id}/pay", app.Pay)
			r.Post("/{id}/download", app.Download)
			r.Post("/{id}/share", app.Share)
		})
		r.Post("/token", app.Token)
		r.Post("/image/generate", app.ImageGenerate)
		r.Post("/image/{filter}", app.ImageFilter)
	})

	return r
}
