package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/bizmarket/internal/metrics"
)

// Observe request duration labeled by the matched route pattern
// Must wrap the ServeMux directly, the mux sets the pattern on the request it gets
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newRecordingWriter(w)

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, route, strconv.Itoa(rw.data.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
