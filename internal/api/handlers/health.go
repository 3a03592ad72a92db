package handlers

import (
	"net/http"

	"ratelimit-service/pkg/database"
	"ratelimit-service/pkg/redis"
	"ratelimit-service/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler reports the state of the service's backends. The limiter
// keeps serving (failing open) while Redis is down, so health here is about
// enforcement fidelity rather than liveness.
type HealthHandler struct {
	redisClient *redis.Client
	db          *mongo.Database // nil when running without Mongo
}

func NewHealthHandler(redisClient *redis.Client, db *mongo.Database) *HealthHandler {
	return &HealthHandler{redisClient: redisClient, db: db}
}

func (h *HealthHandler) Health(c *gin.Context) {
	redisStatus := h.redisClient.HealthCheck()

	status := gin.H{
		"redis": gin.H{
			"connected":    redisStatus.IsConnected,
			"responseTime": redisStatus.ResponseTime.String(),
			"error":        redisStatus.Error,
		},
		"pool": h.redisClient.PoolStats(),
	}

	if h.db != nil {
		mongoErr := database.Health(h.db)
		status["mongo"] = gin.H{"connected": mongoErr == nil}
		if mongoErr != nil {
			status["mongo"].(gin.H)["error"] = mongoErr.Error()
		}
	}

	code := http.StatusOK
	if !redisStatus.IsConnected {
		// degraded: limits are not being enforced
		code = http.StatusServiceUnavailable
	}
	utils.SuccessResponse(c, code, "Health status", status)
}
