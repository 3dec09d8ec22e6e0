// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInMemoryRateLimiterRefills(t *testing.T) {
	limiter := newInMemoryRateLimiter()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if d := limiter.Allow("chain-a", 2, start); !d.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
	}

	denied := limiter.Allow("chain-a", 2, start)
	if denied.Allowed {
		t.Fatal("expected third request to be denied")
	}
	if denied.RetryAfterSeconds != 30 {
		t.Fatalf("expected retry after 30s got %d", denied.RetryAfterSeconds)
	}

	if d := limiter.Allow("chain-b", 2, start); !d.Allowed {
		t.Fatal("expected other key to have its own bucket")
	}

	if d := limiter.Allow("chain-a", 2, start.Add(30*time.Second)); !d.Allowed {
		t.Fatal("expected bucket to refill after 30s")
	}
}

func TestInMemoryRateLimiterEvictsIdleBuckets(t *testing.T) {
	limiter := newInMemoryRateLimiter()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		limiter.Allow(fmt.Sprintf("unknown-%d", i), 2, start)
	}
	limiter.Allow("hot", 2, start.Add(50*time.Second))
	limiter.Allow("hot", 2, start.Add(50*time.Second))

	d := limiter.Allow("hot", 2, start.Add(61*time.Second))
	if d.Allowed {
		t.Fatal("expected recently drained bucket to be kept and deny")
	}
	if got := len(limiter.buckets); got != 1 {
		t.Fatalf("expected idle buckets to be evicted, %d remain", got)
	}
}

func TestExecutionRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := func(r *http.Request) string { return r.URL.Path }
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	handler := executionRateLimitWith(newInMemoryRateLimiter(), 1, key, func() time.Time { return now }, logger)(ok)

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodPost, "/chains/a/executions", nil))
	if rec1.Code != http.StatusAccepted {
		t.Fatalf("expected first status %d got %d", http.StatusAccepted, rec1.Code)
	}
	if got := rec1.Header().Get(headerRateLimitLimit); got != "1" {
		t.Fatalf("expected %s header %q got %q", headerRateLimitLimit, "1", got)
	}
	if got := rec1.Header().Get(headerRateLimitRemaining); got != "0" {
		t.Fatalf("expected %s header %q got %q", headerRateLimitRemaining, "0", got)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/chains/a/executions", nil))
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second status %d got %d", http.StatusTooManyRequests, rec2.Code)
	}
	if got := rec2.Header().Get(headerRetryAfter); got != "60" {
		t.Fatalf("expected %s header %q got %q", headerRetryAfter, "60", got)
	}

	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, httptest.NewRequest(http.MethodPost, "/chains/b/executions", nil))
	if rec3.Code != http.StatusAccepted {
		t.Fatalf("expected other chain status %d got %d", http.StatusAccepted, rec3.Code)
	}
}

func TestExecutionRateLimitDisabled(t *testing.T) {
	handler := ExecutionRateLimit(0, func(r *http.Request) string { return "k" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chains/a/executions", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200 got %d", i, rec.Code)
		}
		if rec.Header().Get(headerRateLimitLimit) != "" {
			t.Fatal("expected no rate limit headers when disabled")
		}
	}
}
