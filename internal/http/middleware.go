package http

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	callerHeader = "X-User-ID"
	callerKey    = "callerID"
)

// CallerMiddleware reads the account id the gateway put in X-User-ID.
// Sessions are issued upstream; this service only trusts the header.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c.GetHeader(callerHeader))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: X-User-ID header required"})
			return
		}
		c.Set(callerKey, id)
		c.Next()
	}
}

func callerID(c *gin.Context) uint {
	return c.GetUint(callerKey)
}

func parseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// AdminAuthMiddleware checks for a secret X-Admin-Token header. With no
// token configured every request is refused.
func AdminAuthMiddleware(requiredToken string) gin.HandlerFunc {
	if requiredToken == "" {
		log.Println("X_ADMIN_TOKEN not set; admin routes will refuse all requests")
	}

	return func(c *gin.Context) {
		suppliedToken := c.GetHeader("X-Admin-Token")
		if suppliedToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Admin token required"})
			return
		}
		if requiredToken == "" || subtle.ConstantTimeCompare([]byte(suppliedToken), []byte(requiredToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: Invalid admin token"})
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware adds basic security headers. The service only
// serves JSON and websocket upgrades, so nothing may be framed or loaded.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
