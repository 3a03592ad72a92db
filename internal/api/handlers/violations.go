package handlers

import (
	"net/http"
	"strconv"

	"ratelimit-service/pkg/ratelimit"
	"ratelimit-service/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ViolationHandler lists recent denials from the short-TTL Redis log
type ViolationHandler struct {
	sink *ratelimit.RedisViolationSink
}

func NewViolationHandler(sink *ratelimit.RedisViolationSink) *ViolationHandler {
	return &ViolationHandler{sink: sink}
}

func (h *ViolationHandler) Recent(c *gin.Context) {
	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = parsed
	}

	violations, err := h.sink.Recent(c.Request.Context(), limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to list violations", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Violations retrieved", violations)
}
