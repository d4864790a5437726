// Package http собирает chi-роутер comment-tree.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/comment-tree/internal/service"
	"github.com/pribylovaa/comment-tree/internal/transport/http/handlers"
	"github.com/pribylovaa/comment-tree/internal/transport/http/middleware"
)

// Options - параметры сборки роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// Pinger - проверка хранилища для /healthz (может быть nil).
	Pinger handlers.Pinger
	// Metrics - обработчик /metrics (обычно promhttp.Handler()); nil - ручка не регистрируется.
	Metrics http.Handler
}

// NewRouter собирает http.Handler с мидлварами и маршрутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	r := chi.NewRouter()
	h := handlers.New(svc, opts.Pinger)

	// служебные ручки - без логов и таймаута.
	r.Get("/livez", h.Livez)
	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		// внешний -> внутренний; RequestID до Logging, чтобы id попал в лог.
		r.Use(
			middleware.Recover(),
			middleware.RequestID(),
			middleware.Logging(opts.Logger),
			middleware.Timeout(opts.Timeout),
		)

		r.Get("/links/{link_id}/comments", h.ListComments)
		r.Post("/links/{link_id}/morechildren", h.MoreChildren)
	})

	return r
}
