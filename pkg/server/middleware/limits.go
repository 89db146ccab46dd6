package middleware

import (
	"net/http"
	"time"
)

// BodyLimitMiddleware caps request bodies at max bytes. Reads past the limit
// fail, which the handlers report as 413. A non-positive max disables the
// limit.
func BodyLimitMiddleware(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTTPObserver records per-route request metrics.
type HTTPObserver interface {
	ObserveHTTPRequest(route, method string, code int, elapsed time.Duration)
}

// MetricsMiddleware reports each request to obs under the route pattern,
// not the raw path, so label cardinality stays bounded.
func MetricsMiddleware(route string, obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if obs == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			obs.ObserveHTTPRequest(route, r.Method, rw.statusCode, time.Since(start))
		})
	}
}
