package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shifahealth/adherence-backend/internal/audit"
	"github.com/shifahealth/adherence-backend/internal/engine"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// AdherenceHandler implements the adherence analytics API endpoints.
// auditLogger may be nil when no audit trail is configured.
type AdherenceHandler struct {
	recorder    *engine.Recorder
	analytics   *engine.AnalyticsService
	auditLogger *audit.Logger
	logger      *zap.Logger
}

// NewAdherenceHandler creates a new AdherenceHandler
func NewAdherenceHandler(recorder *engine.Recorder, analytics *engine.AnalyticsService, auditLogger *audit.Logger, logger *zap.Logger) *AdherenceHandler {
	return &AdherenceHandler{
		recorder:    recorder,
		analytics:   analytics,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// RecordDoseEventRequest is the ingestion payload for one dose observation
type RecordDoseEventRequest struct {
	UserID                      string     `json:"userId"`
	MedicationID                string     `json:"medicationId"`
	ScheduledTime               time.Time  `json:"scheduledTime"`
	ActualTime                  *time.Time `json:"actualTime,omitempty"`
	Skipped                     bool       `json:"skipped,omitempty"`
	DeliveryMethod              string     `json:"deliveryMethod,omitempty"`
	Region                      string     `json:"region,omitempty"`
	TraditionalMedicineConflict bool       `json:"traditionalMedicineConflict,omitempty"`
	CorrectsID                  *string    `json:"correctsId,omitempty"`
}

// PostAdherenceEvents records one dose intake, miss, or skip
func (h *AdherenceHandler) PostAdherenceEvents(c *gin.Context) {
	var req RecordDoseEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	event, err := h.recorder.Record(c.Request.Context(), engine.RecordInput{
		UserID:         req.UserID,
		MedicationID:   req.MedicationID,
		ScheduledTime:  req.ScheduledTime,
		ActualTime:     req.ActualTime,
		Skipped:        req.Skipped,
		DeliveryMethod: model.DeliveryMethod(req.DeliveryMethod),
		Region:         req.Region,
		RawCulturalFlags: model.CulturalContext{
			TraditionalMedicineConflict: req.TraditionalMedicineConflict,
		},
		CorrectsID: req.CorrectsID,
	})
	if err != nil {
		var invalid *engine.InvalidEventError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: invalid.Error(),
			})
			return
		}

		h.logger.Error("failed to record dose event",
			zap.Error(err),
			zap.String("user_id", req.UserID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to record dose event",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if h.auditLogger != nil {
		if err := h.auditLogger.LogRecord(c.Request.Context(), event.UserID, event.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
			h.logger.Error("failed to log audit entry for dose event", zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, event)
}

// GetAdherenceProfile returns the full adherence profile for a user
func (h *AdherenceHandler) GetAdherenceProfile(c *gin.Context) {
	userID := c.Param("userId")

	profile, err := h.analytics.Profile(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get adherence profile",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to get adherence profile",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// GetMedicationInsights returns the per-medication analytical summary
func (h *AdherenceHandler) GetMedicationInsights(c *gin.Context) {
	userID := c.Param("userId")
	medicationID := c.Param("medicationId")

	insights, err := h.analytics.MedicationInsights(c.Request.Context(), userID, medicationID)
	if err != nil {
		h.logger.Error("failed to get medication insights",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("medication_id", medicationID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to get medication insights",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, insights)
}

// GetRiskPrediction forecasts the miss risk for one upcoming dose
func (h *AdherenceHandler) GetRiskPrediction(c *gin.Context) {
	userID := c.Param("userId")
	medicationID := c.Param("medicationId")

	scheduledParam := c.Query("scheduledTime")
	if scheduledParam == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "scheduledTime query parameter is required",
		})
		return
	}
	scheduledTime, err := time.Parse(time.RFC3339, scheduledParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "scheduledTime must be RFC 3339",
			Details: stringPtr(err.Error()),
		})
		return
	}

	prediction, err := h.analytics.PredictRisk(c.Request.Context(), userID, medicationID, scheduledTime, c.Query("region"))
	if err != nil {
		h.logger.Error("failed to predict risk",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("medication_id", medicationID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to predict risk",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, prediction)
}

// GetReminderSlot resolves a conflict-free reminder time near the proposed one
func (h *AdherenceHandler) GetReminderSlot(c *gin.Context) {
	proposedParam := c.Query("proposedTime")
	if proposedParam == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "proposedTime query parameter is required",
		})
		return
	}
	proposed, err := time.Parse(time.RFC3339, proposedParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "proposedTime must be RFC 3339",
			Details: stringPtr(err.Error()),
		})
		return
	}

	slot := h.analytics.ResolveReminderSlot(c.Request.Context(), c.Query("region"), proposed)

	c.JSON(http.StatusOK, gin.H{
		"time":               slot.Time,
		"noAlternativeFound": slot.NoAlternativeFound,
	})
}
