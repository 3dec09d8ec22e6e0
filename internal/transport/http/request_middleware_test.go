// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRequestIDMiddlewareGeneratesAndPropagatesRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotRequestID string
	h := requestIDMiddleware()(requestLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, ok := requestIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected request_id in context")
		}
		gotRequestID = requestID
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	respRequestID := rec.Header().Get(headerRequestID)
	if respRequestID == "" {
		t.Fatal("expected X-Request-Id response header")
	}
	if gotRequestID != respRequestID {
		t.Fatalf("expected context request_id %q got %q", respRequestID, gotRequestID)
	}
}

func TestRequestIDMiddlewarePreservesIncomingRequestID(t *testing.T) {
	h := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, ok := requestIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected request_id in context")
		}
		if requestID != "req-fixed-id" {
			t.Fatalf("expected request_id req-fixed-id got %q", requestID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-fixed-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get(headerRequestID); got != "req-fixed-id" {
		t.Fatalf("expected X-Request-Id req-fixed-id got %q", got)
	}
}

func TestRequestLoggingMiddlewareRecordsRouteAndStatus(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Get("/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "execution not found", http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/executions/abc", nil)
	req.Header.Set(headerRequestID, "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["route"] != "/executions/{id}" {
		t.Fatalf("expected route pattern, got %v", line["route"])
	}
	if line["status"] != float64(http.StatusNotFound) || line["level"] != "WARN" {
		t.Fatalf("expected warn line with status 404, got %v", line)
	}
	if line["request_id"] != "req-1" || line["path"] != "/executions/abc" || line["execution_id"] != "abc" {
		t.Fatalf("unexpected log line %v", line)
	}
	if _, ok := line["chain_id"]; ok {
		t.Fatalf("execution route should not carry chain_id: %v", line)
	}
}

func TestRequestLoggingMiddlewareAddsHandlerAnnotations(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(requestLoggingMiddleware(logger))
	r.Post("/chains/{id}/executions", func(w http.ResponseWriter, r *http.Request) {
		annotate(r.Context(), "execution_id", "exec-9")
		_, _ = w.Write([]byte("done"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chains/c-1/executions", nil))

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["chain_id"] != "c-1" || line["execution_id"] != "exec-9" {
		t.Fatalf("expected chain and execution ids, got %v", line)
	}
	if line["status"] != float64(http.StatusOK) || line["bytes"] != float64(4) || line["level"] != "INFO" {
		t.Fatalf("unexpected status line %v", line)
	}
}

func TestAnnotateOutsideMiddlewareIsNoop(t *testing.T) {
	annotate(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "k", "v")
}
