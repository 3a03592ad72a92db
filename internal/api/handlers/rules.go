package handlers

import (
	"net/http"
	"time"

	"ratelimit-service/internal/repository"
	"ratelimit-service/internal/services"
	"ratelimit-service/pkg/ratelimit"
	"ratelimit-service/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// RuleHandler is the CRUD surface over rate limit rules
type RuleHandler struct {
	manager   *services.RuleManager
	validator *validator.Validate
}

func NewRuleHandler(manager *services.RuleManager) *RuleHandler {
	return &RuleHandler{
		manager:   manager,
		validator: validator.New(),
	}
}

type ruleRequest struct {
	Name            string `json:"name" validate:"required"`
	IdentifierType  string `json:"identifierType" validate:"required,oneof=global ip_address user_id api_key"`
	EndpointPattern string `json:"endpointPattern"`
	Algorithm       string `json:"algorithm" validate:"required,oneof=fixed_window sliding_window token_bucket leaky_bucket"`
	Limit           int64  `json:"limit" validate:"required,gt=0"`
	WindowSeconds   int64  `json:"windowSeconds" validate:"required,gt=0"`
	Priority        int    `json:"priority" validate:"gte=0"`
	Enabled         *bool  `json:"enabled"`
}

func (r ruleRequest) toRule(id string) ratelimit.Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return ratelimit.Rule{
		ID:              id,
		Name:            r.Name,
		IdentifierType:  ratelimit.IdentifierType(r.IdentifierType),
		EndpointPattern: r.EndpointPattern,
		Algorithm:       ratelimit.Algorithm(r.Algorithm),
		Limit:           r.Limit,
		Window:          time.Duration(r.WindowSeconds) * time.Second,
		Priority:        r.Priority,
		Enabled:         enabled,
	}
}

func (h *RuleHandler) ListRules(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Rules retrieved", h.manager.ListRules())
}

func (h *RuleHandler) GetRule(c *gin.Context) {
	rule, ok := h.manager.GetRule(c.Param("id"))
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Rule not found", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Rule retrieved", rule)
}

func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	rule, err := h.manager.CreateRule(req.toRule(""))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to create rule", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Rule created", rule)
}

func (h *RuleHandler) UpdateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	rule, err := h.manager.UpdateRule(req.toRule(c.Param("id")))
	if err != nil {
		if err == repository.ErrRuleNotFound {
			utils.ErrorResponse(c, http.StatusNotFound, "Rule not found", err)
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to update rule", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Rule updated", rule)
}

func (h *RuleHandler) DeleteRule(c *gin.Context) {
	if err := h.manager.DeleteRule(c.Param("id")); err != nil {
		if err == repository.ErrRuleNotFound {
			utils.ErrorResponse(c, http.StatusNotFound, "Rule not found", err)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to delete rule", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Rule deleted", nil)
}
