package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// InvalidEventError rejects a malformed dose observation at ingestion
type InvalidEventError struct {
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid dose event: %s %s", e.Field, e.Reason)
}

// RecordInput is a raw intake/miss observation before canonicalization
type RecordInput struct {
	UserID         string
	MedicationID   string
	ScheduledTime  time.Time
	ActualTime     *time.Time
	Skipped        bool // caller-reported intentional skip
	DeliveryMethod model.DeliveryMethod
	Region         string
	// RawCulturalFlags carries caller-observed flags the calendar cannot
	// know, currently only the traditional-medicine conflict.
	RawCulturalFlags model.CulturalContext
	CorrectsID       *string
}

// Recorder validates and timestamps raw observations into immutable DoseEvents
type Recorder struct {
	store       EventStore
	analyzer    *ConflictAnalyzer
	invalidator Invalidator
	cfg         config.EngineConfig
	logger      *zap.Logger
}

// NewRecorder creates a new Recorder
func NewRecorder(store EventStore, analyzer *ConflictAnalyzer, invalidator Invalidator, cfg config.EngineConfig, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:       store,
		analyzer:    analyzer,
		invalidator: invalidator,
		cfg:         cfg,
		logger:      logger,
	}
}

// Record validates the observation, derives status and delay, annotates the
// cultural context, and appends the resulting immutable event. Nothing is
// written when validation fails.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*model.DoseEvent, error) {
	if in.UserID == "" {
		return nil, &InvalidEventError{Field: "userId", Reason: "is required"}
	}
	if in.MedicationID == "" {
		return nil, &InvalidEventError{Field: "medicationId", Reason: "is required"}
	}
	if in.ScheduledTime.IsZero() {
		return nil, &InvalidEventError{Field: "scheduledTime", Reason: "is required"}
	}
	if in.ActualTime != nil && in.ScheduledTime.Sub(*in.ActualTime) > r.cfg.EarlyTolerance {
		return nil, &InvalidEventError{
			Field:  "actualTime",
			Reason: fmt.Sprintf("precedes scheduled time by more than %s", r.cfg.EarlyTolerance),
		}
	}

	region := in.Region
	if region == "" {
		region = r.cfg.DefaultRegion
	}

	// Provider failure degrades to unknown context, never blocks ingestion
	culturalCtx := r.analyzer.ContextFor(ctx, region, in.ScheduledTime)
	if in.RawCulturalFlags.TraditionalMedicineConflict {
		culturalCtx.TraditionalMedicineConflict = true
	}

	event := &model.DoseEvent{
		ID:              uuid.New().String(),
		UserID:          in.UserID,
		MedicationID:    in.MedicationID,
		ScheduledTime:   in.ScheduledTime,
		ActualTime:      in.ActualTime,
		DeliveryMethod:  in.DeliveryMethod,
		CulturalContext: culturalCtx,
		CorrectsID:      in.CorrectsID,
		CreatedAt:       time.Now(),
	}
	event.Status, event.DelayMinutes = r.deriveStatus(in)

	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.logger.Error("failed to append dose event",
			zap.Error(err),
			zap.String("user_id", in.UserID),
			zap.String("medication_id", in.MedicationID),
		)
		return nil, fmt.Errorf("failed to append dose event: %w", err)
	}

	// Cache invalidation is asynchronous; the write path never blocks on
	// recomputation.
	if r.invalidator != nil {
		r.invalidator.Invalidate(in.UserID)
	}

	r.logger.Info("dose event recorded",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("medication_id", event.MedicationID),
		zap.String("status", string(event.Status)),
	)

	return event, nil
}

// deriveStatus maps the raw observation onto the canonical status set.
// Lateness within the threshold still counts as on time; anything later is
// taken_late, which remains taken-equivalent. Only an absent intake is a
// miss.
func (r *Recorder) deriveStatus(in RecordInput) (model.DoseStatus, *int) {
	if in.ActualTime == nil {
		if in.Skipped {
			return model.DoseStatusSkipped, nil
		}
		return model.DoseStatusMissed, nil
	}

	delay := int(in.ActualTime.Sub(in.ScheduledTime).Round(time.Minute) / time.Minute)
	switch {
	case delay < 0:
		return model.DoseStatusTakenEarly, &delay
	case time.Duration(delay)*time.Minute <= r.cfg.LateThreshold:
		return model.DoseStatusTakenOnTime, &delay
	default:
		return model.DoseStatusTakenLate, &delay
	}
}
