package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/operator-service/internal/api/response"
	"github.com/kiranshivaraju/operator-service/internal/cache"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 60
	maxLocalClients          = 10000
)

// Counter is a shared fixed-window counter, normally Redis.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RateLimit limits requests per client IP. With a Counter the budget is
// shared across replicas using fixed one-minute windows; without one each
// process keeps its own token buckets.
type RateLimit struct {
	counter        Counter
	requestsPerMin int

	mu    sync.Mutex
	local map[string]*rate.Limiter

	now func() time.Time
}

// NewRateLimit creates a new RateLimit middleware. c may be nil.
func NewRateLimit(c Counter, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{
		counter:        c,
		requestsPerMin: requestsPerMin,
		local:          make(map[string]*rate.Limiter),
		now:            time.Now,
	}
}

// Limit applies the per-client budget.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)

		var allowed bool
		var remaining int
		var reset int64
		if rl.counter != nil {
			var ok bool
			allowed, remaining, reset, ok = rl.shared(r.Context(), client)
			if !ok {
				// Counter unavailable: fail open.
				next.ServeHTTP(w, r)
				return
			}
		} else {
			allowed, remaining, reset = rl.inProcess(client)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if !allowed {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) shared(ctx context.Context, client string) (allowed bool, remaining int, reset int64, ok bool) {
	window := rl.now().Unix() / 60
	count, err := rl.counter.IncrWithExpiry(ctx, cache.RateLimitKey(client, window), 60*time.Second)
	if err != nil {
		slog.Warn("rate limit counter unavailable", "error", err)
		return false, 0, 0, false
	}
	remaining = rl.requestsPerMin - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(rl.requestsPerMin), remaining, (window + 1) * 60, true
}

func (rl *RateLimit) inProcess(client string) (allowed bool, remaining int, reset int64) {
	rl.mu.Lock()
	lim, ok := rl.local[client]
	if !ok {
		if len(rl.local) >= maxLocalClients {
			rl.local = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Limit(float64(rl.requestsPerMin)/60), rl.requestsPerMin)
		rl.local[client] = lim
	}
	rl.mu.Unlock()

	now := rl.now()
	allowed = lim.AllowN(now, 1)
	remaining = int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, now.Add(time.Minute).Unix()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
