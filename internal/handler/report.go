package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shifahealth/adherence-backend/internal/audit"
	"github.com/shifahealth/adherence-backend/internal/engine"
	"github.com/shifahealth/adherence-backend/internal/pdf"
	"go.uber.org/zap"
)

// ReportHandler serves printable adherence reports
type ReportHandler struct {
	analytics   *engine.AnalyticsService
	generator   *pdf.PDFGenerator
	auditLogger *audit.Logger
	windowDays  int
	logger      *zap.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(analytics *engine.AnalyticsService, generator *pdf.PDFGenerator, auditLogger *audit.Logger, windowDays int, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		analytics:   analytics,
		generator:   generator,
		auditLogger: auditLogger,
		windowDays:  windowDays,
		logger:      logger,
	}
}

// GetAdherenceReport renders the user's profile as a PDF
func (h *ReportHandler) GetAdherenceReport(c *gin.Context) {
	userID := c.Param("userId")

	profile, err := h.analytics.Profile(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to build profile for report",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to build adherence report",
			Details: stringPtr(err.Error()),
		})
		return
	}

	now := time.Now()
	dateRange := fmt.Sprintf("%s - %s",
		now.AddDate(0, 0, -h.windowDays).Format("2006-01-02"),
		now.Format("2006-01-02"),
	)

	pdfBytes, err := h.generator.Generate(&pdf.ReportData{
		Profile:   profile,
		DateRange: dateRange,
	})
	if err != nil {
		h.logger.Error("failed to generate report PDF",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to generate report PDF",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.auditLogger.Log(c.Request.Context(), audit.AuditLog{
		UserID:        userID,
		OperationType: audit.OperationRead,
		ResourceType:  audit.ResourceProfile,
		ResourceID:    userID,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	}); err != nil {
		h.logger.Error("failed to log audit entry for report", zap.Error(err))
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=adherence_report_%s.pdf", userID))
	c.Header("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
