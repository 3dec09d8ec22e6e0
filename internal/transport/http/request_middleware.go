// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-Id"

type (
	requestIDKey struct{}
	accessLogKey struct{}
)

// accessLog collects attributes that handlers add to the request's
// completion line. It is only touched by the request goroutine.
type accessLog struct {
	attrs []any
}

// annotate adds key/value to the access log line of the request in ctx.
// It is a no-op outside requestLoggingMiddleware.
func annotate(ctx context.Context, key string, value any) {
	if l, ok := ctx.Value(accessLogKey{}).(*accessLog); ok {
		l.attrs = append(l.attrs, key, value)
	}
}

// responseRecorder captures the status and body size written by a handler.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *responseRecorder) WriteHeader(code int) {
	if rec.status != 0 {
		return
	}
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += n
	return n, err
}

func (rec *responseRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestIDFromContext(ctx context.Context) (string, bool) {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v, v != ""
}

func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(headerRequestID))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(headerRequestID, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// requestLoggingMiddleware writes one line per request. Chain and execution
// routes carry the id from the path as chain_id or execution_id; 5xx lines
// are logged at error level and 4xx at warn.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			entry := &accessLog{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accessLogKey{}, entry)))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			reqID, _ := requestIDFromContext(r.Context())
			attrs := []any{
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, "route", pattern)
					attrs = append(attrs, routeResource(pattern, rctx.URLParam("id"))...)
				}
			}
			attrs = append(attrs, entry.attrs...)

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request completed", attrs...)
		})
	}
}

// routeResource names the {id} of a matched route after the resource the
// route addresses.
func routeResource(pattern, id string) []any {
	if id == "" {
		return nil
	}
	switch {
	case strings.HasPrefix(pattern, "/chains/"):
		return []any{"chain_id", id}
	case strings.HasPrefix(pattern, "/executions/"):
		return []any{"execution_id", id}
	}
	return nil
}
