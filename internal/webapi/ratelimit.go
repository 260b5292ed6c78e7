package webapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// rateLimiter is a fixed window counter per client IP.
type rateLimiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(limit int, per time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		per:     per,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// allow reports whether ip may make one more call, and if not, how long
// until its window resets.
func (l *rateLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[ip]
	if !ok || now.After(b.until) {
		if !ok && len(l.buckets) >= 4096 {
			l.purgeLocked(now)
		}
		b = &bucket{until: now.Add(l.per)}
		l.buckets[ip] = b
	}
	if b.count >= l.limit {
		return false, b.until.Sub(now)
	}
	b.count++
	return true, 0
}

func (l *rateLimiter) purgeLocked(now time.Time) {
	for ip, b := range l.buckets {
		if now.After(b.until) {
			delete(l.buckets, ip)
		}
	}
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	if l == nil || l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(clientIP(r))
		if !ok {
			secs := int(wait.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, http.StatusTooManyRequests, apiError{Error: "Too many requests. Please wait a moment and try again."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
