// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter counts requests per key in fixed windows. It is safe for
// concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit requests per key per duration. Stop
// releases its cleanup goroutine.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop(duration * 2)
	return l
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many requests key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit
	}
	if left := l.limit - w.count; left > 0 {
		return left
	}
	return 0
}

// Reset clears key's window.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// ClientIP extracts the client IP, preferring X-Forwarded-For and X-Real-IP
// over RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// JoinLimiter throttles join requests per client IP and per applicant.
type JoinLimiter struct {
	ip        *Limiter
	applicant *Limiter
}

// NewJoinLimiter allows 30 join requests a minute per IP and 10 per
// applicant every 10 minutes.
func NewJoinLimiter() *JoinLimiter {
	return NewJoinLimiterWithConfig(30, time.Minute, 10, 10*time.Minute)
}

func NewJoinLimiterWithConfig(ipLimit int, ipWindow time.Duration, applicantLimit int, applicantWindow time.Duration) *JoinLimiter {
	return &JoinLimiter{
		ip:        New(ipLimit, ipWindow),
		applicant: New(applicantLimit, applicantWindow),
	}
}

// Check records a join attempt. When it is refused the returned message
// says why.
func (jl *JoinLimiter) Check(r *http.Request, email string) (bool, string) {
	if !jl.ip.Allow(ClientIP(r)) {
		return false, "Too many requests. Please wait a minute before trying again."
	}
	if key := strings.ToLower(strings.TrimSpace(email)); key != "" && !jl.applicant.Allow(key) {
		return false, "Too many join requests from this account. Please wait a few minutes."
	}
	return true, ""
}

func (jl *JoinLimiter) Stop() {
	jl.ip.Stop()
	jl.applicant.Stop()
}
