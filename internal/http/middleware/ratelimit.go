package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Buckets idle longer than this are dropped during the inline sweep.
const bucketTTL = 10 * time.Minute

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

// limiter refills one token bucket per client key at rate per second, up to
// burst. Stale buckets are swept inline from allow, so the limiter carries
// no background goroutine.
type limiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

func newLimiter(rate float64, burst int) *limiter {
	return &limiter{
		rate:      rate,
		burst:     float64(burst),
		buckets:   make(map[string]*tokenBucket),
		lastSweep: time.Now(),
	}
}

func (l *limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > bucketTTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > bucketTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.seen).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimit rejects clients exceeding rate requests per second (with the
// given burst headroom) using 429 Too Many Requests. Clients are keyed by
// X-Real-Ip when chi's RealIP middleware has run, falling back to
// RemoteAddr.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	l := newLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				key = xri
			}
			if !l.allow(key, time.Now()) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
