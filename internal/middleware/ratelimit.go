package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/mediahub/internal/metrics"
)

// LoginLimiterConfig sets the per-client budget for login attempts.
type LoginLimiterConfig struct {
	// PerMinute is both the sustained rate and the burst.
	PerMinute       int
	CleanupInterval time.Duration
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LoginLimiter throttles credential guessing per client IP. It relies on
// chi's RealIP middleware having already rewritten RemoteAddr when the
// server sits behind a proxy.
type LoginLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.RWMutex
	clients map[string]*clientLimiter

	rec    metrics.Recorder
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLoginLimiter starts the background cleanup goroutine; call Stop to
// end it.
func NewLoginLimiter(cfg LoginLimiterConfig, rec metrics.Recorder, logger *slog.Logger) *LoginLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	l := &LoginLimiter{
		limit:   rate.Limit(float64(cfg.PerMinute) / 60.0),
		burst:   cfg.PerMinute,
		ttl:     cfg.CleanupInterval * 2,
		clients: make(map[string]*clientLimiter),
		rec:     rec,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop(cfg.CleanupInterval)
	return l
}

func (l *LoginLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Middleware rejects requests over budget with 429 and a Retry-After header.
func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.get(ip).Allow() {
			l.rec.Login(metrics.LoginLimited)
			l.logger.Warn("login rate limit exceeded", slog.String("client_ip", ip))
			l.writeTooMany(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Clients returns the number of tracked client IPs.
func (l *LoginLimiter) Clients() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

func (l *LoginLimiter) get(ip string) *rate.Limiter {
	now := time.Now()

	l.mu.RLock()
	c, ok := l.clients[ip]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		c.lastAccess = now
		l.mu.Unlock()
		return c.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[ip]; ok {
		c.lastAccess = now
		return c.limiter
	}
	c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst), lastAccess: now}
	l.clients[ip] = c
	return c.limiter
}

func (l *LoginLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *LoginLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if now.Sub(c.lastAccess) > l.ttl {
			delete(l.clients, ip)
		}
	}
}

func (l *LoginLimiter) writeTooMany(w http.ResponseWriter) {
	// seconds until one token is back
	retry := int(math.Ceil(1.0 / float64(l.limit)))
	if retry < 1 {
		retry = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate_limited",
		"message": "Too many login attempts. Please try again later.",
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
