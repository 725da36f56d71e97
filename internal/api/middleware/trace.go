package middleware

import (
	"log/slog"
	"net/http"

	"github.com/cropsight/cropsight-api/internal/api/shared"
)

// Trace adds a trace ID to the request context. It should be applied early
// in the middleware chain so all subsequent handlers can correlate logs.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())

		slog.Debug("request started",
			"trace_id", shared.GetTraceID(ctx),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
