package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/plugng/plug-backend/internal/app/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Metrics records request counts, durations and the in-flight gauge for
// every handled request.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPInFlight(1)
		defer metrics.HTTPInFlight(-1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.ObserveHTTP(r.Method, routePattern(r.URL.Path), rec.status, time.Since(start))
	})
}

// routePattern collapses IDs out of paths so the label cardinality stays
// bounded.
func routePattern(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		// Resource names at even depth, IDs at odd depth.
		if i%2 == 1 && part != "" {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
