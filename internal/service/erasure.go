package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shifahealth/adherence-backend/internal/audit"
	"github.com/shifahealth/adherence-backend/internal/engine"
	"github.com/shifahealth/adherence-backend/internal/repository"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// ErasureService handles user data deletion and export (right to be
// forgotten / right of access).
type ErasureService struct {
	store       *repository.EventStore
	invalidator engine.Invalidator
	auditLogger *audit.Logger
	logger      *zap.Logger
}

// NewErasureService creates a new ErasureService
func NewErasureService(store *repository.EventStore, invalidator engine.Invalidator, auditLogger *audit.Logger, logger *zap.Logger) *ErasureService {
	return &ErasureService{
		store:       store,
		invalidator: invalidator,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// UserDataExport represents all adherence data held for a user
type UserDataExport struct {
	UserID     string                      `json:"user_id"`
	Events     []model.DoseEvent           `json:"events"`
	Profile    *model.UserAdherenceProfile `json:"profile,omitempty"`
	ExportedAt time.Time                   `json:"exported_at"`
}

// DeleteUserData deletes every dose event and profile for a user, drops the
// cached profile, and audit-logs the erasure.
func (s *ErasureService) DeleteUserData(ctx context.Context, userID, ipAddress, userAgent string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}

	s.logger.Info("starting user data erasure",
		zap.String("user_id", userID),
	)

	deleted, err := s.store.DeleteUserData(ctx, userID)
	if err != nil {
		s.logger.Error("failed to erase user data",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return fmt.Errorf("failed to erase user data: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}

	if err := s.auditLogger.LogErase(ctx, userID, ipAddress, userAgent, deleted); err != nil {
		s.logger.Error("failed to log audit entry for erasure", zap.Error(err))
	}

	s.logger.Info("user data erasure completed",
		zap.String("user_id", userID),
		zap.Int64("deleted_events", deleted),
	)

	return nil
}

// ExportUserData returns every dose event and the stored profile for a user
func (s *ErasureService) ExportUserData(ctx context.Context, userID string) (*UserDataExport, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	events, err := s.store.QueryEvents(ctx, userID, "", time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to export events: %w", err)
	}

	profile, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to export profile: %w", err)
	}

	return &UserDataExport{
		UserID:     userID,
		Events:     events,
		Profile:    profile,
		ExportedAt: time.Now(),
	}, nil
}

// AuditTrail returns the most recent audit entries recorded for a user
func (s *ErasureService) AuditTrail(ctx context.Context, userID string, limit int) ([]audit.AuditLog, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if limit <= 0 {
		limit = 100
	}

	logs, err := s.auditLogger.GetAuditLogs(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	return logs, nil
}
