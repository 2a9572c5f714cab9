package api

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/afyalink/afyalink/internal/ussd"
)

// recoverMiddleware turns a handler panic into a 503 with the generic USSD
// failure screen.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("recoverMiddleware: handler panicked", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				writeUSSD(w, http.StatusServiceUnavailable, ussd.ScreenUnavailable)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("loggingMiddleware: request served", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start), "client", clientIP(r))
	})
}

// limiterIdleTTL is how long a client's bucket survives without requests. A
// bucket idle for a full minute has refilled, so dropping it loses no state.
const limiterIdleTTL = 3 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// rateLimiter keeps one token bucket per client IP. Idle buckets are swept at
// most once per limiterIdleTTL, on the request path.
type rateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	perMinute int
	now       func() time.Time
	lastSweep time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{limiters: make(map[string]*limiterEntry), perMinute: perMinute, now: time.Now}
}

func (l *rateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleTTL {
		l.sweep(now)
	}
	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.limiters[ip] = e
	}
	e.seen = now
	return e.lim
}

// sweep drops buckets idle for limiterIdleTTL. Callers hold l.mu.
func (l *rateLimiter) sweep(now time.Time) {
	for ip, e := range l.limiters {
		if now.Sub(e.seen) >= limiterIdleTTL {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
	slog.Debug("rateLimiter.sweep: idle buckets dropped", "remaining", len(l.limiters))
}

// middleware answers 429 once a client exceeds its budget. A non-positive
// budget disables limiting.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	if l.perMinute <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.limiter(ip).Allow() {
			slog.Warn("rateLimiter.middleware: rate limit exceeded", "ip", ip, "path", r.URL.Path)
			writeText(w, http.StatusTooManyRequests, "END Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, as set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
