package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/chatrelay/internal/api"
	"github.com/gaspardpetit/chatrelay/internal/config"
	"github.com/gaspardpetit/chatrelay/internal/metrics"
)

// New constructs the HTTP handler for the relay. Metrics are registered on a
// fresh registry that also becomes the default gatherer, so a separate
// metrics listener can serve promhttp.Handler().
func New(cfg config.ServerConfig, a *api.API) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	preg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = preg
	prometheus.DefaultGatherer = preg
	metrics.Register(preg)

	r.Get("/health", a.Health)
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/openapi.json", api.OpenAPIHandler())
		ar.Get("/docs", api.SwaggerHandler())
		ar.Get("/models", a.Models)
		ar.Get("/state", a.State)
		ar.Group(func(g chi.Router) {
			g.Use(a.RejectWhenDraining, a.Inflight().Middleware())
			g.Post("/chat", a.Chat)
			g.Post("/chat/once", a.ChatOnce)
			g.Get("/chat/ws", a.ChatWS)
			g.Post("/generate", a.Generate)
			g.Post("/generate/once", a.GenerateOnce)
		})
	})

	if cfg.SameListener() {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}
	return r
}
