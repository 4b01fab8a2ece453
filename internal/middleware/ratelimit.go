// Package middleware provides the HTTP cross-cutting layers: rate limiting,
// CORS, request logging and metrics collection.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/novadex/wallet-layer/internal/app/metrics"
	"github.com/novadex/wallet-layer/internal/errors"
	"github.com/novadex/wallet-layer/pkg/logger"
)

// Budget names one rate limit: at most Requests per Window per client.
type Budget struct {
	Name     string
	Requests int
	Window   time.Duration
}

// The three stock budgets. General covers the whole surface, API the data
// endpoints, Withdrawal the money-moving ones.
var (
	GeneralBudget    = Budget{Name: "general", Requests: 1000, Window: time.Minute}
	APIBudget        = Budget{Name: "api", Requests: 500, Window: time.Minute}
	WithdrawalBudget = Budget{Name: "withdrawal", Requests: 50, Window: 30 * time.Second}
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AuditRecorder receives security events for the admin-visible trail.
type AuditRecorder interface {
	Record(event, severity string, details map[string]interface{})
}

// RateLimiter enforces one Budget per client address.
type RateLimiter struct {
	budget  Budget
	log     *logger.Logger
	metrics *metrics.Metrics
	audit   AuditRecorder

	mu       sync.Mutex
	visitors map[string]*visitor

	stop chan struct{}
	once sync.Once
}

// NewRateLimiter builds a limiter for the given budget and starts its idle
// visitor reaper.
func NewRateLimiter(budget Budget, m *metrics.Metrics, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	rl := &RateLimiter{
		budget:   budget,
		log:      log,
		metrics:  m,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go rl.reapLoop()
	return rl
}

// WithAudit attaches an audit trail for rejected requests.
func (rl *RateLimiter) WithAudit(a AuditRecorder) *RateLimiter {
	rl.audit = a
	return rl
}

// Stop halts the background reaper.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Middleware wraps next with the limiter. Over-budget requests get 429 and a
// security log entry; the response carries the budget's retry window.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			rl.log.LogSecurityEvent("rate_limit_exceeded", "warning", map[string]interface{}{
				"budget": rl.budget.Name,
				"ip":     ip,
				"path":   r.URL.Path,
			})
			if rl.metrics != nil {
				rl.metrics.RateLimitRejections.WithLabelValues(rl.budget.Name).Inc()
			}
			if rl.audit != nil {
				rl.audit.Record("rate_limit_exceeded", "warning", map[string]interface{}{
					"budget": rl.budget.Name,
					"ip":     ip,
					"path":   r.URL.Path,
				})
			}
			w.Header().Set("Retry-After", retryAfter(rl.budget.Window))
			WriteError(w, errors.RateLimitExceeded(rl.budget.Name))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[ip]
	if !ok {
		per := rate.Every(rl.budget.Window / time.Duration(rl.budget.Requests))
		v = &visitor{limiter: rate.NewLimiter(per, rl.budget.Requests)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// reapLoop drops visitors idle for three windows so the map stays bounded.
func (rl *RateLimiter) reapLoop() {
	ticker := time.NewTicker(rl.budget.Window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-3 * rl.budget.Window)
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// retryAfter renders the budget window as the delta-seconds form RFC 9110
// requires for the Retry-After header.
func retryAfter(window time.Duration) string {
	secs := int(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP prefers the first X-Forwarded-For hop, then falls back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
