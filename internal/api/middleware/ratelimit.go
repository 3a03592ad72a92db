package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ratelimit-service/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit applies the limiter to inbound traffic. Denials become 429
// responses with a Retry-After header; limiter errors never block the
// request (the limiter itself already fails open on store faults, the guard
// here covers request cancellation).
func RateLimit(limiter *ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier, idType := callerIdentity(c)

		result, err := limiter.Check(c.Request.Context(), ratelimit.CheckRequest{
			Identifier:     identifier,
			IdentifierType: idType,
			Endpoint:       endpointID(c),
			Cost:           1,
		})
		if err != nil {
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			retryAfter := int64(result.RetryAfter / time.Second)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"message":    fmt.Sprintf("Too many requests. Try again in %ds", retryAfter),
				"code":       "RATE_LIMIT_EXCEEDED",
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// callerIdentity resolves who the request should be counted against, in
// decreasing order of specificity: authenticated user, API key, client IP.
func callerIdentity(c *gin.Context) (string, ratelimit.IdentifierType) {
	if userID, exists := c.Get("user_id"); exists {
		if uid, ok := userID.(string); ok && uid != "" {
			return uid, ratelimit.IdentifierUser
		}
	}

	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		return apiKey, ratelimit.IdentifierAPIKey
	}

	return clientIP(c), ratelimit.IdentifierIP
}

func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		// first hop in the chain is the original client
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}

// endpointID is what rule endpoint patterns match against
func endpointID(c *gin.Context) string {
	return c.Request.Method + ":" + c.Request.URL.Path
}

func setRateLimitHeaders(c *gin.Context, result ratelimit.CheckResult) {
	if result.Limit < ratelimit.Unlimited {
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	}
	if !result.Allowed {
		c.Header("Retry-After", strconv.FormatInt(int64(result.RetryAfter/time.Second), 10))
	}
}
