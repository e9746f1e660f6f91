package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shifahealth/adherence-backend/internal/service"
	"go.uber.org/zap"
)

// ErasureHandler implements user-data deletion and export endpoints
type ErasureHandler struct {
	service *service.ErasureService
	logger  *zap.Logger
}

// NewErasureHandler creates a new ErasureHandler
func NewErasureHandler(service *service.ErasureService, logger *zap.Logger) *ErasureHandler {
	return &ErasureHandler{
		service: service,
		logger:  logger,
	}
}

// DeleteUserData deletes all adherence data for a user
func (h *ErasureHandler) DeleteUserData(c *gin.Context) {
	userID := c.Param("userId")

	err := h.service.DeleteUserData(c.Request.Context(), userID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.logger.Error("failed to delete user data",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to delete user data",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User data deleted successfully",
	})
}

// ExportUserData exports all adherence data held for a user
func (h *ErasureHandler) ExportUserData(c *gin.Context) {
	userID := c.Param("userId")

	export, err := h.service.ExportUserData(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to export user data",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to export user data",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, export)
}

// GetAuditTrail returns the recent audit entries for a user
func (h *ErasureHandler) GetAuditTrail(c *gin.Context) {
	userID := c.Param("userId")

	limit := 100
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	logs, err := h.service.AuditTrail(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to read audit trail",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to read audit trail",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"entries": logs,
	})
}
