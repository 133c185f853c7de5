package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/infrastructure/http/response"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

// RateLimitPolicy sets the per-window budgets for mutating and read requests
type RateLimitPolicy struct {
	WriteLimit    int
	ReadLimit     int
	Window        time.Duration
	BlockDuration time.Duration
}

type RateLimitMiddleware struct {
	rateLimitService inbound.RateLimitService
	policy           RateLimitPolicy
	logger           logger.Logger
}

func NewRateLimitMiddleware(rateLimitService inbound.RateLimitService, policy RateLimitPolicy, log logger.Logger) *RateLimitMiddleware {
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	if policy.BlockDuration <= 0 {
		policy.BlockDuration = 5 * time.Minute
	}
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		policy:           policy,
		logger:           log,
	}
}

// RateLimit keys budgets by caller identity when authenticated, otherwise by client IP.
// Limiter failures let the request through.
func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.rateLimitService == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		class, limit := "read", m.policy.ReadLimit
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			class, limit = "write", m.policy.WriteLimit
		}
		if limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		principal := "ip:" + getClientIP(r)
		if id := Identity(ctx); id != "" {
			principal = "user:" + id
		}
		key := fmt.Sprintf("%s:%s", class, principal)

		blocked, err := m.rateLimitService.IsBlocked(ctx, key)
		if err != nil {
			m.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
		}
		if blocked {
			m.reject(w, r, key, "rate_limit_blocked", "MEDIUM")
			return
		}

		allowed, err := m.rateLimitService.CheckLimit(ctx, key, limit, m.policy.Window)
		if err != nil {
			m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"key": key})
			allowed = true
		}
		if !allowed {
			if err := m.rateLimitService.Block(ctx, key, m.policy.BlockDuration, "Rate limit exceeded"); err != nil {
				m.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
			}
			m.reject(w, r, key, "rate_limit_exceeded", "HIGH")
			return
		}

		if err := m.rateLimitService.Increment(ctx, key, m.policy.Window); err != nil {
			m.logger.Error(ctx, "Failed to increment rate limit", err, map[string]interface{}{"key": key})
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) reject(w http.ResponseWriter, r *http.Request, key, event, severity string) {
	logger.LogSecurityEvent(r.Context(), m.logger, event, severity, map[string]interface{}{
		"key":       key,
		"path":      r.URL.Path,
		"userAgent": r.UserAgent(),
	})
	w.Header().Set("Retry-After", strconv.Itoa(int(m.policy.BlockDuration.Seconds())))
	response.TooManyRequests(w, "Too many requests. Please try again later.")
}

// getClientIP extracts client IP from request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
