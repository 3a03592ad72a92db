package handlers

import (
	"net/http"

	"ratelimit-service/internal/services"
	"ratelimit-service/pkg/ratelimit"
	"ratelimit-service/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// AccessHandler toggles whitelist and blacklist membership
type AccessHandler struct {
	manager   *services.RuleManager
	validator *validator.Validate
}

func NewAccessHandler(manager *services.RuleManager) *AccessHandler {
	return &AccessHandler{
		manager:   manager,
		validator: validator.New(),
	}
}

type accessRequest struct {
	Identifier     string `json:"identifier" validate:"required"`
	IdentifierType string `json:"identifierType" validate:"required,oneof=global ip_address user_id api_key"`
}

func (h *AccessHandler) Add(list ratelimit.AccessList) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req accessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
			return
		}
		if err := h.validator.Struct(&req); err != nil {
			utils.ValidationErrorResponse(c, err)
			return
		}

		err := h.manager.AddAccessEntry(ratelimit.AccessEntry{
			Identifier:     req.Identifier,
			IdentifierType: ratelimit.IdentifierType(req.IdentifierType),
			List:           list,
		})
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Failed to add entry", err)
			return
		}
		utils.SuccessResponse(c, http.StatusCreated, "Entry added", nil)
	}
}

func (h *AccessHandler) Remove(list ratelimit.AccessList) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.Query("identifier")
		idType := c.Query("identifierType")
		if identifier == "" || idType == "" {
			utils.ErrorResponse(c, http.StatusBadRequest, "identifier and identifierType are required", nil)
			return
		}

		if err := h.manager.RemoveAccessEntry(identifier, ratelimit.IdentifierType(idType), list); err != nil {
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to remove entry", err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Entry removed", nil)
	}
}
