package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shifahealth/adherence-backend/internal/security"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// EventStore persists dose events and derived profiles in Postgres. Events
// are append-only; profiles are replaced wholesale per user. The cultural
// factors sub-document is encrypted at rest because religious-observance
// indicators are sensitive personal data.
type EventStore struct {
	db        *pgxpool.Pool
	encryptor *security.Encryptor
	logger    *zap.Logger
}

// NewEventStore creates a new EventStore
func NewEventStore(db *pgxpool.Pool, encryptor *security.Encryptor, logger *zap.Logger) *EventStore {
	return &EventStore{
		db:        db,
		encryptor: encryptor,
		logger:    logger,
	}
}

// AppendEvent inserts one immutable dose event
func (s *EventStore) AppendEvent(ctx context.Context, event *model.DoseEvent) error {
	query := `
		INSERT INTO dose_events (
			id, user_id, medication_id, scheduled_time, actual_time,
			status, delay_minutes, delivery_method,
			prayer_time_conflict, fasting_period, festival_day,
			traditional_medicine_conflict, cultural_context_unknown,
			corrects_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.MedicationID,
		event.ScheduledTime,
		event.ActualTime,
		event.Status,
		event.DelayMinutes,
		event.DeliveryMethod,
		event.CulturalContext.PrayerTimeConflict,
		event.CulturalContext.FastingPeriod,
		event.CulturalContext.FestivalDay,
		event.CulturalContext.TraditionalMedicineConflict,
		event.CulturalContext.Unknown,
		event.CorrectsID,
		event.CreatedAt,
	)

	if err != nil {
		s.logger.Error("failed to append dose event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("user_id", event.UserID),
		)
		return fmt.Errorf("failed to append dose event: %w", err)
	}

	return nil
}

// QueryEvents returns a user's events ordered by scheduled time ascending,
// optionally filtered to one medication.
func (s *EventStore) QueryEvents(ctx context.Context, userID, medicationID string, since time.Time) ([]model.DoseEvent, error) {
	query := `
		SELECT
			id, user_id, medication_id, scheduled_time, actual_time,
			status, delay_minutes, delivery_method,
			prayer_time_conflict, fasting_period, festival_day,
			traditional_medicine_conflict, cultural_context_unknown,
			corrects_id, created_at
		FROM dose_events
		WHERE user_id = $1
		  AND scheduled_time >= $2
		  AND ($3 = '' OR medication_id = $3)
		ORDER BY scheduled_time ASC
	`

	rows, err := s.db.Query(ctx, query, userID, since, medicationID)
	if err != nil {
		s.logger.Error("failed to query dose events", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to query dose events: %w", err)
	}
	defer rows.Close()

	var events []model.DoseEvent
	for rows.Next() {
		var ev model.DoseEvent
		err := rows.Scan(
			&ev.ID,
			&ev.UserID,
			&ev.MedicationID,
			&ev.ScheduledTime,
			&ev.ActualTime,
			&ev.Status,
			&ev.DelayMinutes,
			&ev.DeliveryMethod,
			&ev.CulturalContext.PrayerTimeConflict,
			&ev.CulturalContext.FastingPeriod,
			&ev.CulturalContext.FestivalDay,
			&ev.CulturalContext.TraditionalMedicineConflict,
			&ev.CulturalContext.Unknown,
			&ev.CorrectsID,
			&ev.CreatedAt,
		)
		if err != nil {
			// A bad row must not silently shrink the analysis window
			s.logger.Error("failed to scan dose event", zap.Error(err), zap.String("user_id", userID))
			return nil, fmt.Errorf("failed to scan dose event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("error iterating dose events", zap.Error(err))
		return nil, fmt.Errorf("error iterating dose events: %w", err)
	}

	return events, nil
}

// SaveProfile upserts the user's profile. The cultural factors leave the
// JSON document and travel encrypted in their own column.
func (s *EventStore) SaveProfile(ctx context.Context, profile *model.UserAdherenceProfile) error {
	stripped := *profile
	stripped.CulturalFactors = model.CulturalFactors{}

	doc, err := json.Marshal(&stripped)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	factorsJSON, err := json.Marshal(profile.CulturalFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal cultural factors: %w", err)
	}
	factorsEnc, err := s.encryptor.Encrypt(string(factorsJSON))
	if err != nil {
		return fmt.Errorf("failed to encrypt cultural factors: %w", err)
	}

	query := `
		INSERT INTO adherence_profiles (user_id, profile, cultural_factors_enc, last_analyzed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			profile = EXCLUDED.profile,
			cultural_factors_enc = EXCLUDED.cultural_factors_enc,
			last_analyzed = EXCLUDED.last_analyzed
	`

	_, err = s.db.Exec(ctx, query, profile.UserID, doc, factorsEnc, profile.LastAnalyzed)
	if err != nil {
		s.logger.Error("failed to save profile",
			zap.Error(err),
			zap.String("user_id", profile.UserID),
		)
		return fmt.Errorf("failed to save profile: %w", err)
	}

	return nil
}

// LoadProfile returns the stored profile, or nil when none exists
func (s *EventStore) LoadProfile(ctx context.Context, userID string) (*model.UserAdherenceProfile, error) {
	query := `
		SELECT profile, cultural_factors_enc
		FROM adherence_profiles
		WHERE user_id = $1
	`

	var doc []byte
	var factorsEnc string
	err := s.db.QueryRow(ctx, query, userID).Scan(&doc, &factorsEnc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("failed to load profile", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var profile model.UserAdherenceProfile
	if err := json.Unmarshal(doc, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	factorsJSON, err := s.encryptor.Decrypt(factorsEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt cultural factors: %w", err)
	}
	if factorsJSON != "" {
		if err := json.Unmarshal([]byte(factorsJSON), &profile.CulturalFactors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cultural factors: %w", err)
		}
	}

	return &profile, nil
}

// DeleteUserData removes every event and profile for a user in one
// transaction and reports the number of events removed. Used by the erasure
// service.
func (s *EventStore) DeleteUserData(ctx context.Context, userID string) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM dose_events WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dose events: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM adherence_profiles WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("failed to delete profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit erasure: %w", err)
	}

	return tag.RowsAffected(), nil
}
