// Package http provides the REST API of the store server.
package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sheetbase/sheetbase/pkg/transport/httptransport"
)

const (
	headerRequestID     = "X-Request-ID"
	headerCorrelationID = "X-Correlation-ID"
)

type metaKey struct{}

// requestMeta identifies one request across logs and services.
type requestMeta struct {
	requestID     string
	correlationID string
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// RequestMetadataMiddleware takes X-Request-ID and X-Correlation-ID from the
// request, filling in fresh values when absent. The correlation ID falls
// back to the request ID. Both are echoed in the response headers.
func RequestMetadataMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := requestMeta{
			requestID:     r.Header.Get(headerRequestID),
			correlationID: r.Header.Get(headerCorrelationID),
		}
		if meta.requestID == "" {
			meta.requestID = uuid.NewString()
		}
		if meta.correlationID == "" {
			meta.correlationID = meta.requestID
		}
		w.Header().Set(headerRequestID, meta.requestID)
		w.Header().Set(headerCorrelationID, meta.correlationID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), metaKey{}, meta)))
	})
}

// RecoveryMiddleware turns a handler panic into a 500.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				log.Printf("[WARN] http: panic serving %s %s: %v", r.Method, r.URL.Path, p)
				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = w.Header().Get(headerRequestID)
				}
				writeError(w, http.StatusInternalServerError, "internal server error", requestID)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLogMiddleware logs one line per request.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("http: %s %s %d %s request_id=%s",
			r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond), GetRequestID(r.Context()))
	})
}

// ChainMiddleware applies middlewares so the first one listed runs first.
func ChainMiddleware(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware is the chain every store route runs behind.
func DefaultMiddleware(accessLog bool) Middleware {
	chain := []Middleware{RequestMetadataMiddleware, RecoveryMiddleware}
	if accessLog {
		chain = append(chain, AccessLogMiddleware)
	}
	return ChainMiddleware(chain...)
}

// GetRequestID returns the request ID set by RequestMetadataMiddleware.
func GetRequestID(ctx context.Context) string {
	meta, _ := ctx.Value(metaKey{}).(requestMeta)
	return meta.requestID
}

// GetCorrelationID returns the correlation ID set by
// RequestMetadataMiddleware.
func GetCorrelationID(ctx context.Context) string {
	meta, _ := ctx.Value(metaKey{}).(requestMeta)
	return meta.correlationID
}

// writeError writes a JSON error body in the wire format clients decode.
func writeError(w http.ResponseWriter, code int, message, requestID string) {
	writeJSON(w, code, httptransport.ErrorBody{
		Error: httptransport.ErrorDetail{
			Code:    code,
			Message: message,
			Status:  httptransport.StatusText(code),
		},
		RequestID: requestID,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[WARN] http: failed to encode response: %v", err)
	}
}
