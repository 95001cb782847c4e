// Package trace assigns request ids, logs every request and feeds the HTTP
// metrics.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	klog "kharch/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type contextKey struct{}

// info is shared by every layer of one request; Route fills in the pattern.
type info struct {
	requestID string
	route     string
}

// Observer receives one call per completed request. *metrics.Metrics
// satisfies it.
type Observer interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	observer  Observer
}

// NewMiddleware creates a new trace middleware. observer may be nil.
func NewMiddleware(extractIP func(*http.Request) string, observer Observer) *Middleware {
	return &Middleware{extractIP: extractIP, observer: observer}
}

// Middleware returns HTTP middleware for request tracing
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		// Keep a caller-supplied id only when it is a UUID, so logs stay parseable.
		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		inf := &info{requestID: requestID}
		ctx := context.WithValue(r.Context(), contextKey{}, inf)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "HTTP request started",
			klog.FieldRequestID, requestID,
			klog.FieldMethod, r.Method,
			klog.FieldPath, r.URL.Path,
			klog.FieldQuery, r.URL.RawQuery,
			klog.FieldClientIP, clientIP,
			klog.FieldUserAgent, r.Header.Get("User-Agent"))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		route := inf.route
		if route == "" {
			route = "unmatched"
		}
		if m.observer != nil {
			m.observer.ObserveRequest(r.Method, route, rw.statusCode, duration)
		}

		slog.Log(ctx, klog.LevelForStatus(rw.statusCode), "HTTP request completed",
			klog.FieldRequestID, requestID,
			klog.FieldMethod, r.Method,
			klog.FieldPath, r.URL.Path,
			klog.FieldRoute, route,
			klog.FieldStatusCode, rw.statusCode,
			klog.FieldDuration, duration.Milliseconds(),
			klog.FieldDurationHuman, duration.String(),
			klog.FieldClientIP, clientIP,
			klog.FieldSuccess, rw.statusCode < 400)
	})
}

// Route records pattern as the matched route of every request h serves.
func Route(pattern string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inf, ok := r.Context().Value(contextKey{}).(*info); ok {
			inf.route = pattern
		}
		h.ServeHTTP(w, r)
	})
}

// RequestID extracts the request ID from the request.
func RequestID(r *http.Request) string {
	return GetRequestID(r.Context())
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if inf, ok := ctx.Value(contextKey{}).(*info); ok {
		return inf.requestID
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
