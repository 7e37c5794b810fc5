package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// ClientKey buckets by tenant and client address, so one salon's traffic
// never exhausts another's budget behind a shared proxy.
func ClientKey(r *http.Request) string {
	ip := clientIP(r)
	if b := BusinessIDFromContext(r.Context()); b != "" {
		return b + ":" + ip
	}
	return ip
}

// RateLimiter is the single-replica counterpart of RedisRateLimiter, using
// the same aligned windows.
type RateLimiter struct {
	limit  int
	window time.Duration
	key    KeyFunc
	now    func() time.Time

	mu     sync.Mutex
	bucket int64
	counts map[string]int
}

func NewRateLimiter(limit int, window time.Duration, key KeyFunc) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if key == nil {
		key = ClientKey
	}
	return &RateLimiter{limit: limit, window: window, key: key, now: time.Now, counts: map[string]int{}}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(rl.key(r)) {
				w.Header().Set("Retry-After", retryAfter(rl.untilNextWindow()))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// A new window drops every counter at once.
	if b := rl.now().UnixNano() / int64(rl.window); b != rl.bucket {
		rl.bucket = b
		clear(rl.counts)
	}
	if rl.counts[key] >= rl.limit {
		return false
	}
	rl.counts[key]++
	return true
}

func (rl *RateLimiter) untilNextWindow() time.Duration {
	now := rl.now().UnixNano()
	w := int64(rl.window)
	return time.Duration(w - now%w)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// retryAfter renders d as whole seconds, rounded up.
func retryAfter(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
