package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/PYPE-AI-MAIN/whispey-sub003/pkg/utils"
)

// TieredRateLimiter provides per-IP rate limiting with separate tiers for
// login, general traffic, API traffic and exports.
type TieredRateLimiter struct {
	loginLimiter   *IPRateLimiter
	generalLimiter *IPRateLimiter
	apiLimiter     *IPRateLimiter
	exportLimiter  *IPRateLimiter
	failedAttempts map[string]*FailedAttemptTracker
	mu             sync.RWMutex
}

// FailedAttemptTracker tracks failed attempts for progressive rate limiting
type FailedAttemptTracker struct {
	Count        int
	LastFailed   time.Time
	BlockedUntil *time.Time
}

// IPRateLimiter manages rate limiters per IP
type IPRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

// GetLimiter returns the rate limiter for an IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists := i.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(i.rate, i.burst)
		i.limiters[ip] = limiter
	}

	return limiter
}

// NewTieredRateLimiter creates the standard limiter set. Exports are the
// most expensive operation served, hence the tightest tier.
func NewTieredRateLimiter() *TieredRateLimiter {
	return &TieredRateLimiter{
		loginLimiter:   NewIPRateLimiter(rate.Every(time.Minute), 5),
		generalLimiter: NewIPRateLimiter(rate.Every(time.Second), 30),
		apiLimiter:     NewIPRateLimiter(rate.Every(time.Second), 100),
		exportLimiter:  NewIPRateLimiter(rate.Every(time.Minute), 3),
		failedAttempts: make(map[string]*FailedAttemptTracker),
	}
}

var tieredLimiter = NewTieredRateLimiter()

func (trl *TieredRateLimiter) GetProgressiveDelay(ip string) time.Duration {
	trl.mu.RLock()
	tracker, exists := trl.failedAttempts[ip]
	trl.mu.RUnlock()

	if !exists {
		return 0
	}

	if tracker.BlockedUntil != nil && time.Now().Before(*tracker.BlockedUntil) {
		return time.Until(*tracker.BlockedUntil)
	}

	return progressiveDelay(tracker.Count)
}

func progressiveDelay(count int) time.Duration {
	switch {
	case count >= 10:
		return 30 * time.Minute
	case count >= 5:
		return 10 * time.Minute
	case count >= 3:
		return 5 * time.Minute
	case count >= 1:
		return 1 * time.Minute
	default:
		return 0
	}
}

func (trl *TieredRateLimiter) RecordFailedAttempt(ip string) (bool, *time.Time, int) {
	trl.mu.Lock()
	defer trl.mu.Unlock()

	tracker, exists := trl.failedAttempts[ip]
	if !exists {
		tracker = &FailedAttemptTracker{}
		trl.failedAttempts[ip] = tracker
	}

	tracker.Count++
	tracker.LastFailed = time.Now()
	prevBlocked := tracker.BlockedUntil != nil && time.Now().Before(*tracker.BlockedUntil)
	var newlyBlocked bool
	var blockedUntil *time.Time

	if os.Getenv("DISABLE_PROGRESSIVE_LOGIN_DELAY") != "true" {
		if delay := progressiveDelay(tracker.Count); delay > 0 {
			until := time.Now().Add(delay)
			tracker.BlockedUntil = &until
			if !prevBlocked {
				newlyBlocked = true
			}
		} else {
			tracker.BlockedUntil = nil
		}
	}

	if tracker.BlockedUntil != nil {
		blockedUntil = tracker.BlockedUntil
	}

	return newlyBlocked, blockedUntil, tracker.Count
}

func (trl *TieredRateLimiter) RecordSuccessfulAttempt(ip string) {
	trl.mu.Lock()
	defer trl.mu.Unlock()

	if tracker, exists := trl.failedAttempts[ip]; exists {
		tracker.Count = 0
		tracker.BlockedUntil = nil
	}
}

func (trl *TieredRateLimiter) IsBlocked(ip string) bool {
	trl.mu.RLock()
	defer trl.mu.RUnlock()

	tracker, exists := trl.failedAttempts[ip]
	if !exists {
		return false
	}

	return tracker.BlockedUntil != nil && time.Now().Before(*tracker.BlockedUntil)
}

func (trl *TieredRateLimiter) CleanupExpiredEntries() {
	trl.mu.Lock()
	defer trl.mu.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)
	for ip, tracker := range trl.failedAttempts {
		if tracker.LastFailed.Before(cutoff) {
			delete(trl.failedAttempts, ip)
		}
	}
}

func buildLoginRateLimitKey(c *gin.Context) string {
	email := strings.ToLower(c.GetString("validated_email"))
	if email == "" {
		return getClientIP(c)
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func rejectBlocked(c *gin.Context, key string) bool {
	if !tieredLimiter.IsBlocked(key) {
		return false
	}
	delay := tieredLimiter.GetProgressiveDelay(key)
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":         "Too many failed attempts. Temporarily blocked.",
		"retry_after":   fmt.Sprintf("%.0f seconds", delay.Seconds()),
		"blocked_until": time.Now().Add(delay).Format(time.RFC3339),
	})
	c.Abort()
	return true
}

func LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := buildLoginRateLimitKey(c)
		if key == "" {
			key = getClientIP(c)
		}

		if rejectBlocked(c, key) {
			return
		}

		limiter := tieredLimiter.loginLimiter.GetLimiter(key)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many login attempts. Please try again later.",
				"retry_after": "60 seconds",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c)

		if rejectBlocked(c, ip) {
			return
		}

		limiter := tieredLimiter.apiLimiter.GetLimiter(ip)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many API requests. Please slow down.",
				"retry_after": "1 second",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ExportRateLimit throttles CSV exports, which scan the full filtered
// result set per request.
func ExportRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c)

		if rejectBlocked(c, ip) {
			return
		}

		limiter := tieredLimiter.exportLimiter.GetLimiter(ip)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many export requests. Please try again later.",
				"retry_after": "1 minute",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func GeneralRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health and metrics probes are exempt
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" || path == "/api/v1/health" ||
			strings.HasPrefix(path, "/api/v1/auth/") {
			c.Next()
			return
		}

		ip := getClientIP(c)

		if rejectBlocked(c, ip) {
			return
		}

		limiter := tieredLimiter.generalLimiter.GetLimiter(ip)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please slow down.",
				"retry_after": "1 second",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RecordFailedLoginAttempt records a failed login attempt
func RecordFailedLoginAttempt(c *gin.Context) {
	key := buildLoginRateLimitKey(c)
	if key == "" {
		key = getClientIP(c)
	}
	if blocked, blockedUntil, count := tieredLimiter.RecordFailedAttempt(key); blocked {
		extras := map[string]interface{}{
			"login_key":       key,
			"client_ip":       getClientIP(c),
			"failed_attempts": count,
		}
		if email := strings.ToLower(c.GetString("validated_email")); email != "" {
			extras["email"] = email
		}
		if blockedUntil != nil {
			extras["blocked_until"] = blockedUntil.Format(time.RFC3339)
		}
		utils.CaptureSentryError(c, nil, "rate_limit.login_blocked", extras)
	}
}

// RecordSuccessfulLoginAttempt resets failed login tracking
func RecordSuccessfulLoginAttempt(c *gin.Context) {
	key := buildLoginRateLimitKey(c)
	if key == "" {
		key = getClientIP(c)
	}
	tieredLimiter.RecordSuccessfulAttempt(key)
}

// StartCleanup starts the cleanup routine for expired entries
func StartCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.CaptureSentryPanic("middleware.StartCleanup", r)
			}
		}()
		for range ticker.C {
			tieredLimiter.CleanupExpiredEntries()
		}
	}()
}

func getClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return c.ClientIP()
}
