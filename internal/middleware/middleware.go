// Package middleware provides chi-compatible HTTP middleware for the
// Sentry Fleet API: request-id propagation, rate limiting, and Prometheus
// instrumentation. Grounded on the teacher's internal/middleware and
// internal/api/chi_middleware.go, which wrap the same go-chi/httprate and
// prometheus/client_golang the rest of this codebase already depends on.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/metrics"
)

type contextKey string

// RequestIDKey is the context key RequestID stores the generated or
// forwarded request ID under.
const RequestIDKey contextKey = "request_id"

// RequestID assigns each inbound request a stable ID — reusing an
// upstream-supplied X-Request-ID when present — and echoes it back on the
// response, the same behavior as the teacher's middleware.RequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext extracts the request ID set by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// RateLimit bounds requests per IP address over window, returning 429 once
// exceeded. Wraps go-chi/httprate the same way the teacher's
// ChiMiddleware.RateLimitByIP does.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requests, window)
}

// Prometheus records request duration and status code for every request,
// mirroring the teacher's middleware.PrometheusMetrics.
func Prometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusCapturingWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode)).
			Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode)).Inc()
	})
}

type statusCapturingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
