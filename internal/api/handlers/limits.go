package handlers

import (
	"net/http"
	"time"

	"ratelimit-service/pkg/ratelimit"
	"ratelimit-service/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// LimitHandler exposes the limiter to out-of-process callers: gateways that
// cannot embed the middleware call Check over HTTP, and operators use the
// status and reset endpoints.
type LimitHandler struct {
	limiter   *ratelimit.RateLimiter
	validator *validator.Validate
}

func NewLimitHandler(limiter *ratelimit.RateLimiter) *LimitHandler {
	return &LimitHandler{
		limiter:   limiter,
		validator: validator.New(),
	}
}

type checkRequest struct {
	Identifier     string `json:"identifier" validate:"required"`
	IdentifierType string `json:"identifierType" validate:"required,oneof=global ip_address user_id api_key"`
	Endpoint       string `json:"endpoint"`
	Cost           int64  `json:"cost" validate:"gte=0"`
}

type checkResponse struct {
	Allowed           bool  `json:"allowed"`
	Remaining         int64 `json:"remaining"`
	Limit             int64 `json:"limit"`
	ResetAt           int64 `json:"resetAt"`
	RetryAfterSeconds int64 `json:"retryAfterSeconds,omitempty"`
}

func toCheckResponse(result ratelimit.CheckResult) checkResponse {
	resp := checkResponse{
		Allowed:   result.Allowed,
		Remaining: result.Remaining,
		Limit:     result.Limit,
		ResetAt:   result.ResetAt.Unix(),
	}
	if !result.Allowed {
		resp.RetryAfterSeconds = int64(result.RetryAfter / time.Second)
	}
	return resp
}

// Check runs one admission decision
func (h *LimitHandler) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	result, err := h.limiter.Check(c.Request.Context(), ratelimit.CheckRequest{
		Identifier:     req.Identifier,
		IdentifierType: ratelimit.IdentifierType(req.IdentifierType),
		Endpoint:       req.Endpoint,
		Cost:           req.Cost,
	})
	if err != nil {
		// only context cancellation reaches here
		utils.ErrorResponse(c, http.StatusRequestTimeout, "Request cancelled", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Check completed", toCheckResponse(result))
}

// Status reports the current quota without consuming any
func (h *LimitHandler) Status(c *gin.Context) {
	identifier := c.Query("identifier")
	idType := c.Query("identifierType")
	if identifier == "" || idType == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "identifier and identifierType are required", nil)
		return
	}

	result, err := h.limiter.Status(c.Request.Context(), identifier, ratelimit.IdentifierType(idType), c.Query("endpoint"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Status unavailable", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Status retrieved", toCheckResponse(result))
}

type resetRequest struct {
	Identifier     string `json:"identifier" validate:"required"`
	IdentifierType string `json:"identifierType" validate:"required,oneof=global ip_address user_id api_key"`
}

// Reset clears counter state for an identifier
func (h *LimitHandler) Reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	if err := h.limiter.Reset(c.Request.Context(), req.Identifier, ratelimit.IdentifierType(req.IdentifierType)); err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Reset failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Counters reset", nil)
}
