// Package http exposes the narrator service over HTTP using huma.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/ekisa-team/lector/internal/service"
)

// APIVersion is reported in the OpenAPI document.
const APIVersion = "1.0.0"

// NewAPI builds the huma API on mux with every narrator route registered and
// eviction running before each operation.
func NewAPI(mux *http.ServeMux, svc *service.Narrator) huma.API {
	api := humago.New(mux, huma.DefaultConfig("lector", APIVersion))
	api.UseMiddleware(EvictionMiddleware(svc))
	NewNarratorHandler(api, svc)
	return api
}

// EvictionMiddleware removes stale cached audio before the request is
// handled.
func EvictionMiddleware(svc *service.Narrator) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		svc.Evict(ctx.Context())
		next(ctx)
	}
}

// NewServer creates the HTTP server. metrics, when non-nil, is served at
// /metrics.
func NewServer(addr string, svc *service.Narrator, metrics http.Handler) *http.Server {
	mux := http.NewServeMux()
	NewAPI(mux, svc)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}
