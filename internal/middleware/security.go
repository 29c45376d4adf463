package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds comprehensive security headers
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		csp := "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: https:; " +
			"font-src 'self' data:; " +
			"connect-src 'self'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'; " +
			"object-src 'none'; " +
			"upgrade-insecure-requests;"

		if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("ENVIRONMENT") == "dev" {
			c.Header("Content-Security-Policy-Report-Only", csp)
		} else {
			c.Header("Content-Security-Policy", csp)
		}

		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "0")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Cross-Origin-Resource-Policy", "same-origin")
		c.Header("Server", "")
		c.Header("X-Powered-By", "")

		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}

		c.Next()
	}
}

// RequestSizeLimit limits request body size to prevent DoS
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// CSRFProtection implements CSRF protection for cookie-authenticated
// mutating requests. Bearer-token requests are exempt.
func CSRFProtection(authCookieName, csrfCookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		if strings.HasPrefix(c.Request.URL.Path, "/api/v1/auth/login") {
			c.Next()
			return
		}

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			c.Next()
			return
		}

		if _, err := c.Cookie(authCookieName); err != nil {
			c.Next()
			return
		}

		headerToken := strings.TrimSpace(c.GetHeader("X-CSRF-Token"))
		if headerToken == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Missing CSRF token"})
			c.Abort()
			return
		}

		cookieToken, err := c.Cookie(csrfCookieName)
		if err != nil || cookieToken == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Missing CSRF cookie"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid CSRF token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// SecurityMonitoring logs security events
func SecurityMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		userAgent := c.GetHeader("User-Agent")
		if isSuspiciousUserAgent(userAgent) {
			log.Printf("🚨 Suspicious User-Agent detected: %s from IP: %s", userAgent, getClientIP(c))
		}

		c.Next()

		duration := time.Since(start)
		if duration > 5*time.Second {
			log.Printf("⚠️ Slow request: %s %s took %v from IP: %s",
				c.Request.Method, c.Request.URL.Path, duration, getClientIP(c))
		}

		if c.Writer.Status() >= 400 {
			log.Printf("🚨 Error response: %d %s %s from IP: %s",
				c.Writer.Status(), c.Request.Method, c.Request.URL.Path, getClientIP(c))
		}
	}
}

func isSuspiciousUserAgent(userAgent string) bool {
	suspiciousPatterns := []string{
		"sqlmap", "nmap", "nikto", "w3af", "burp", "zap",
		"bot", "crawler", "spider", "scanner",
	}

	userAgentLower := strings.ToLower(userAgent)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(userAgentLower, pattern) {
			return true
		}
	}
	return false
}

// SecurityConfig returns security configuration from environment
type SecurityConfig struct {
	MaxRequestSize int64
}

func GetSecurityConfig() SecurityConfig {
	config := SecurityConfig{
		MaxRequestSize: 10 * 1024 * 1024, // 10MB default
	}

	if maxSize := os.Getenv("MAX_REQUEST_SIZE"); maxSize != "" {
		if size, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			config.MaxRequestSize = size
		}
	}

	return config
}
