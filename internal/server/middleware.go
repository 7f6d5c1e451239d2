package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/easyfix/easyfix-go/internal/errors"
	"github.com/easyfix/easyfix-go/internal/models"
)

// authInfoKey is the gin context key for the verified caller identity.
const authInfoKey = "easyfix_auth_info"

// requireAuth verifies the bearer token through the identity gateway and
// stores the resulting AuthInfo in the request context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			renderError(c, err)
			c.Abort()
			return
		}

		info, _, err := s.gateway.VerifyToken(c.Request.Context(), token)
		if err != nil {
			renderError(c, err)
			c.Abort()
			return
		}

		c.Set(authInfoKey, info)
		c.Next()
	}
}

// requireRoles denies unless the verified caller holds at least one of the
// given roles. Must run after requireAuth.
func requireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := authInfo(c)
		if info == nil {
			renderError(c, apperrors.Authentication("not authenticated"))
			c.Abort()
			return
		}
		for _, role := range roles {
			if info.HasRole(role) {
				c.Next()
				return
			}
		}
		renderError(c, apperrors.Authorization("insufficient role"))
		c.Abort()
	}
}

// authInfo retrieves the caller identity stored by requireAuth.
func authInfo(c *gin.Context) *models.AuthInfo {
	raw, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, ok := raw.(*models.AuthInfo)
	if !ok {
		return nil
	}
	return info
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", apperrors.Authentication("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", apperrors.Authentication("malformed authorization header")
	}
	return parts[1], nil
}

const (
	// loginLimiterIdle is how long an IP's limiter may sit unused before
	// it is eligible for eviction.
	loginLimiterIdle = 15 * time.Minute
	// maxLoginLimiters caps the per-IP limiter map.
	maxLoginLimiters = 10000
)

// loginLimiters tracks one token-bucket limiter per client IP. Idle
// entries are evicted once the map hits its cap, so distinct IPs cannot
// grow it without bound.
type loginLimiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rate    rate.Limit
	burst   int
	idle    time.Duration
	max     int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiters(perSecond float64, burst int) *loginLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &loginLimiters{
		entries: make(map[string]*limiterEntry),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		idle:    loginLimiterIdle,
		max:     maxLoginLimiters,
	}
}

func (l *loginLimiters) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ip]
	if !ok {
		if len(l.entries) >= l.max {
			l.evict(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// evict drops idle entries, then oldest entries until under the cap.
// Caller holds the lock.
func (l *loginLimiters) evict(now time.Time) {
	for ip, entry := range l.entries {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.entries, ip)
		}
	}
	for len(l.entries) >= l.max {
		oldestIP := ""
		var oldest time.Time
		for ip, entry := range l.entries {
			if oldestIP == "" || entry.lastSeen.Before(oldest) {
				oldestIP, oldest = ip, entry.lastSeen
			}
		}
		delete(l.entries, oldestIP)
	}
}

func (l *loginLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// loginRateLimit throttles login attempts per client IP, shielding the
// identity provider from credential stuffing.
func loginRateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newLoginLimiters(perSecond, burst)

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"kind":    "rate_limited",
					"message": "too many login attempts",
				},
			})
			return
		}
		c.Next()
	}
}
