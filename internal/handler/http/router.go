package http

import (
	"net/http"

	"link-tracker/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions toggles the optional parts of the HTTP surface
type RouterOptions struct {
	Limiter       RateLimiter // nil disables rate limiting of link creation
	EnableMetrics bool

	// TrustProxy keys the rate limiter on X-Forwarded-For / X-Real-IP.
	// Only set it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// NewRouter registers every route and wraps the mux in the middleware chain
func NewRouter(h *Handler, log *logger.Logger, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	create := http.Handler(http.HandlerFunc(h.CreateLink))
	if opts.Limiter != nil {
		create = RateLimitMiddleware(opts.Limiter, log, opts.TrustProxy)(create)
	}

	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /tracker", h.ListLinks)
	mux.Handle("POST /tracker", create)
	mux.HandleFunc("GET /t/{slug}", h.Redirect)
	mux.HandleFunc("GET /stats/{slug}", h.Stats)
	mux.HandleFunc("GET /delete/{slug}", h.DeleteLink)
	mux.HandleFunc("GET /clean/{slug}", h.CleanLogs)
	mux.HandleFunc("GET /delete_all", h.DeleteAll)
	mux.HandleFunc("GET /qr/{slug}", h.QRCode)
	mux.HandleFunc("GET /health/live", h.HealthCheck)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(log),
		RequestIDMiddleware,
		LoggingMiddleware(log),
	}
	if opts.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
		middlewares = append(middlewares, MetricsMiddleware)
	}
	middlewares = append(middlewares, CORSMiddleware)

	return Chain(middlewares...)(mux)
}
