package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-IP limiter. Uploads and chat calls both
// fan out to expensive model requests, so they get modest per-client caps.
type RateLimiter struct {
	mu       sync.Mutex
	counts   map[string]*window
	limit    int
	interval time.Duration
}

type window struct {
	count   int
	started time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		counts:   make(map[string]*window),
		limit:    limit,
		interval: interval,
	}

	// Cleanup goroutine
	go func() {
		for {
			time.Sleep(interval)
			rl.mu.Lock()
			for ip, w := range rl.counts {
				if time.Since(w.started) > interval {
					delete(rl.counts, ip)
				}
			}
			rl.mu.Unlock()
		}
	}()

	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr

		rl.mu.Lock()
		win, ok := rl.counts[ip]
		if !ok || time.Since(win.started) > rl.interval {
			rl.counts[ip] = &window{count: 1, started: time.Now()}
			rl.mu.Unlock()
			next.ServeHTTP(w, r)
			return
		}

		win.count++
		count := win.count
		rl.mu.Unlock()

		if count > rl.limit {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}
