// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const headerRateLimitLimit = "X-RateLimit-Limit"
const headerRateLimitRemaining = "X-RateLimit-Remaining"
const headerRetryAfter = "Retry-After"

type rateLimitDecision struct {
	Allowed           bool
	LimitPerMinute    int
	Remaining         int
	RetryAfterSeconds int
}

type tokenBucket struct {
	capacity        float64
	tokens          float64
	refillPerSecond float64
	lastRefill      time.Time
}

// refillWindow is the time any bucket takes to refill from empty. A bucket
// idle for that long is full again, which is what a fresh bucket would be.
const refillWindow = time.Minute

type inMemoryRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

func newInMemoryRateLimiter() *inMemoryRateLimiter {
	return &inMemoryRateLimiter{
		buckets: make(map[string]*tokenBucket, 32),
	}
}

func (l *inMemoryRateLimiter) Allow(key string, limitPerMinute int, now time.Time) rateLimitDecision {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}

	capacity := float64(limitPerMinute)
	refillPerSecond := capacity / 60.0

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	bucket, ok := l.buckets[key]
	if !ok || bucket.capacity != capacity {
		bucket = &tokenBucket{
			capacity:        capacity,
			tokens:          capacity,
			refillPerSecond: refillPerSecond,
			lastRefill:      now,
		}
		l.buckets[key] = bucket
	}

	elapsedSeconds := now.Sub(bucket.lastRefill).Seconds()
	if elapsedSeconds > 0 {
		bucket.tokens = math.Min(bucket.capacity, bucket.tokens+elapsedSeconds*bucket.refillPerSecond)
		bucket.lastRefill = now
	}

	decision := rateLimitDecision{
		LimitPerMinute: limitPerMinute,
		Remaining:      int(math.Floor(bucket.tokens)),
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		decision.Allowed = true
		decision.Remaining = int(math.Floor(bucket.tokens))
		return decision
	}

	waitSeconds := int(math.Ceil((1 - bucket.tokens) / bucket.refillPerSecond))
	decision.RetryAfterSeconds = max(waitSeconds, 1)
	return decision
}

// sweep drops idle buckets at most once per refillWindow so keys that are
// never seen again do not accumulate.
func (l *inMemoryRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < refillWindow {
		return
	}
	l.lastSweep = now
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastRefill) >= refillWindow {
			delete(l.buckets, key)
		}
	}
}

// ExecutionRateLimit throttles requests per key (typically the chain id) with
// a token bucket refilled at limitPerMinute. A non-positive limit disables it.
func ExecutionRateLimit(limitPerMinute int, key func(*http.Request) string, logger *slog.Logger) func(http.Handler) http.Handler {
	return executionRateLimitWith(newInMemoryRateLimiter(), limitPerMinute, key, time.Now, logger)
}

func executionRateLimitWith(
	limiter *inMemoryRateLimiter,
	limitPerMinute int,
	key func(*http.Request) string,
	now func() time.Time,
	logger *slog.Logger,
) func(http.Handler) http.Handler {
	if key == nil {
		panic("middleware.ExecutionRateLimit requires a key function")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if limitPerMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			decision := limiter.Allow(k, limitPerMinute, now())
			w.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				logger.Warn("execution rate limited",
					"key", k,
					"limit_per_min", decision.LimitPerMinute,
					"retry_after_s", decision.RetryAfterSeconds,
				)
				w.Header().Set(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
