package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ratelimit-service/pkg/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	rules := ratelimit.NewRuleService()
	require.NoError(t, rules.UpsertRule(ratelimit.Rule{
		ID:             "ip-tight",
		Name:           "tight per-IP limit",
		IdentifierType: ratelimit.IdentifierIP,
		Algorithm:      ratelimit.FixedWindow,
		Limit:          2,
		Window:         time.Minute,
		Priority:       1,
		Enabled:        true,
	}))

	limiter := ratelimit.NewRateLimiter(
		ratelimit.NewRedisCounterStore(client), rules, nil, nil, zerolog.Nop())

	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return router
}

func doRequest(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_EnforcesLimit(t *testing.T) {
	router := setupRouter(t)

	for i := 0; i < 2; i++ {
		w := doRequest(router, "203.0.113.5")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := doRequest(router, "203.0.113.5")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimitMiddleware_CountsPerClient(t *testing.T) {
	router := setupRouter(t)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, doRequest(router, "203.0.113.5").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, doRequest(router, "203.0.113.5").Code)

	// a different client has its own counter
	assert.Equal(t, http.StatusOK, doRequest(router, "203.0.113.6").Code)
}

func TestRateLimitMiddleware_RemainingHeaderCountsDown(t *testing.T) {
	router := setupRouter(t)

	w := doRequest(router, "203.0.113.7")
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = doRequest(router, "203.0.113.7")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}
