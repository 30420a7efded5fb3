package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// NewRouter builds and returns the Chi router with all routes configured.
// The page routes and health endpoint are public. The JSON forecast API is
// mounted behind bearer auth only when token is non-empty. Unknown paths and
// methods redirect to the home page. Rate limiting is applied globally:
// 60 requests per minute per IP.
func NewRouter(handlers *Handlers, token string, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/", handlers.Index)
	r.Post("/weather", handlers.Weather)
	r.Get("/api/v1/health", HealthHandlerFunc(db, redisClient, log))

	if token != "" {
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(token))
			r.Get("/api/v1/forecasts/{city}", handlers.GetForecasts)
		})
	}

	r.NotFound(Redirect)
	r.MethodNotAllowed(Redirect)

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
