package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SystemHandler serves liveness and readiness probes
type SystemHandler struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db *pgxpool.Pool, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		db:     db,
		logger: logger,
	}
}

// GetHealth reports service health including database connectivity
func (h *SystemHandler) GetHealth(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"

	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.Error("database ping failed", zap.Error(err))
		status = "degraded"
		dbStatus = "unreachable"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
