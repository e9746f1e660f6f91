package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shifahealth/adherence-backend/internal/security"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupTestDB creates a PostgreSQL testcontainer and returns the connection pool
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("adherence_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	runMigrations(t, pool)

	cleanup := func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return pool, cleanup
}

// runMigrations creates the adherence schema
func runMigrations(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS dose_events (
			id UUID PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			medication_id VARCHAR(255) NOT NULL,
			scheduled_time TIMESTAMPTZ NOT NULL,
			actual_time TIMESTAMPTZ,
			status VARCHAR(50) NOT NULL,
			delay_minutes INTEGER,
			delivery_method VARCHAR(50),
			prayer_time_conflict BOOLEAN NOT NULL DEFAULT FALSE,
			fasting_period BOOLEAN NOT NULL DEFAULT FALSE,
			festival_day BOOLEAN NOT NULL DEFAULT FALSE,
			traditional_medicine_conflict BOOLEAN NOT NULL DEFAULT FALSE,
			cultural_context_unknown BOOLEAN NOT NULL DEFAULT FALSE,
			corrects_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dose_events_user_scheduled
			ON dose_events(user_id, scheduled_time)`,
		`CREATE TABLE IF NOT EXISTS adherence_profiles (
			user_id VARCHAR(255) PRIMARY KEY,
			profile JSONB NOT NULL,
			cultural_factors_enc TEXT NOT NULL DEFAULT '',
			last_analyzed TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id VARCHAR(255) NOT NULL,
			operation_type VARCHAR(50) NOT NULL,
			resource_type VARCHAR(50) NOT NULL,
			resource_id VARCHAR(255),
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ip_address VARCHAR(45),
			user_agent TEXT,
			additional_data JSONB
		)`,
	}

	for _, migration := range migrations {
		_, err := pool.Exec(ctx, migration)
		require.NoError(t, err)
	}
}

func newTestStore(t *testing.T, pool *pgxpool.Pool) *EventStore {
	encryptor, err := security.NewEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)
	return NewEventStore(pool, encryptor, zap.NewNop())
}

// genDoseEvent generates one random dose event for the given user
func genDoseEvent(userID string, base time.Time) gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 29),   // day offset
		gen.IntRange(0, 23),   // scheduled hour
		gen.IntRange(0, 4),    // status selector
		gen.IntRange(31, 240), // late delay minutes
		gen.Bool(),            // prayer flag
		gen.Bool(),            // fasting flag
	).Map(func(values []interface{}) model.DoseEvent {
		day := values[0].(int)
		hour := values[1].(int)
		statusSel := values[2].(int)
		lateDelay := values[3].(int)

		scheduled := base.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
		ev := model.DoseEvent{
			ID:             uuid.New().String(),
			UserID:         userID,
			MedicationID:   "med-1",
			ScheduledTime:  scheduled,
			DeliveryMethod: model.DeliveryMethodPush,
			CulturalContext: model.CulturalContext{
				PrayerTimeConflict: values[4].(bool),
				FastingPeriod:      values[5].(bool),
			},
			CreatedAt: scheduled,
		}

		switch statusSel {
		case 0:
			actual := scheduled.Add(10 * time.Minute)
			delay := 10
			ev.ActualTime = &actual
			ev.Status = model.DoseStatusTakenOnTime
			ev.DelayMinutes = &delay
		case 1:
			actual := scheduled.Add(time.Duration(lateDelay) * time.Minute)
			ev.ActualTime = &actual
			ev.Status = model.DoseStatusTakenLate
			ev.DelayMinutes = &lateDelay
		case 2:
			actual := scheduled.Add(-20 * time.Minute)
			delay := -20
			ev.ActualTime = &actual
			ev.Status = model.DoseStatusTakenEarly
			ev.DelayMinutes = &delay
		case 3:
			ev.Status = model.DoseStatusMissed
		default:
			ev.Status = model.DoseStatusSkipped
		}
		return ev
	})
}

func TestEventStore_AppendQueryProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := newTestStore(t, pool)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("appended events come back complete and ordered", prop.ForAll(
		func(events []model.DoseEvent) bool {
			userID := uuid.New().String()
			for i := range events {
				events[i].UserID = userID
				if err := store.AppendEvent(ctx, &events[i]); err != nil {
					return false
				}
			}

			got, err := store.QueryEvents(ctx, userID, "", time.Time{})
			if err != nil || len(got) != len(events) {
				return false
			}
			for i := 1; i < len(got); i++ {
				if got[i].ScheduledTime.Before(got[i-1].ScheduledTime) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genDoseEvent("placeholder", base)),
	))

	properties.Property("since filter excludes older events", prop.ForAll(
		func(events []model.DoseEvent) bool {
			userID := uuid.New().String()
			for i := range events {
				events[i].UserID = userID
				if err := store.AppendEvent(ctx, &events[i]); err != nil {
					return false
				}
			}

			since := base.AddDate(0, 0, 15)
			got, err := store.QueryEvents(ctx, userID, "", since)
			if err != nil {
				return false
			}
			for _, ev := range got {
				if ev.ScheduledTime.Before(since) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genDoseEvent("placeholder", base)),
	))

	properties.TestingRun(t)
}

func TestEventStore_EventRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := newTestStore(t, pool)
	ctx := context.Background()

	scheduled := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	actual := scheduled.Add(40 * time.Minute)
	delay := 40
	correction := uuid.New().String()

	event := &model.DoseEvent{
		ID:             uuid.New().String(),
		UserID:         uuid.New().String(),
		MedicationID:   "med-1",
		ScheduledTime:  scheduled,
		ActualTime:     &actual,
		Status:         model.DoseStatusTakenLate,
		DelayMinutes:   &delay,
		DeliveryMethod: model.DeliveryMethodSMS,
		CulturalContext: model.CulturalContext{
			PrayerTimeConflict:          true,
			TraditionalMedicineConflict: true,
		},
		CorrectsID: &correction,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.AppendEvent(ctx, event))

	got, err := store.QueryEvents(ctx, event.UserID, "med-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, event.ID, got[0].ID)
	assert.Equal(t, model.DoseStatusTakenLate, got[0].Status)
	require.NotNil(t, got[0].DelayMinutes)
	assert.Equal(t, 40, *got[0].DelayMinutes)
	assert.True(t, got[0].CulturalContext.PrayerTimeConflict)
	assert.True(t, got[0].CulturalContext.TraditionalMedicineConflict)
	require.NotNil(t, got[0].CorrectsID)
	assert.Equal(t, correction, *got[0].CorrectsID)
	assert.True(t, got[0].ScheduledTime.Equal(scheduled))
}

func TestEventStore_ProfileRoundTripEncryptsFactors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := newTestStore(t, pool)
	ctx := context.Background()

	userID := uuid.New().String()
	profile := &model.UserAdherenceProfile{
		UserID:               userID,
		OverallAdherenceRate: 0.85,
		Streaks:              model.StreakSummary{Current: 4, Longest: 9},
		CulturalFactors: model.CulturalFactors{
			ReligiosityIndicator:     0.82,
			TraditionalMedicineBias:  0.1,
			FamilyInfluenceIndicator: 0.5,
		},
		LastAnalyzed: time.Now().UTC(),
	}
	require.NoError(t, store.SaveProfile(ctx, profile))

	// The factors must not appear in the plaintext profile document
	var doc string
	err := pool.QueryRow(ctx, `SELECT profile::text FROM adherence_profiles WHERE user_id = $1`, userID).Scan(&doc)
	require.NoError(t, err)
	assert.NotContains(t, doc, "0.82")

	loaded, err := store.LoadProfile(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, profile.CulturalFactors, loaded.CulturalFactors)
	assert.Equal(t, profile.OverallAdherenceRate, loaded.OverallAdherenceRate)
	assert.Equal(t, profile.Streaks, loaded.Streaks)
}

func TestEventStore_QueryFailsOnMalformedRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := newTestStore(t, pool)
	ctx := context.Background()

	userID := uuid.New().String()
	scheduled := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEvent(ctx, &model.DoseEvent{
		ID:            uuid.New().String(),
		UserID:        userID,
		MedicationID:  "med-1",
		ScheduledTime: scheduled,
		Status:        model.DoseStatusTakenOnTime,
		CreatedAt:     time.Now().UTC(),
	}))

	// Corrupt one row so it cannot scan
	_, err := pool.Exec(ctx, `ALTER TABLE dose_events ALTER COLUMN status DROP NOT NULL`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO dose_events (id, user_id, medication_id, scheduled_time, status)
		VALUES ($1, $2, 'med-1', $3, NULL)`,
		uuid.New().String(), userID, scheduled.AddDate(0, 0, 1))
	require.NoError(t, err)

	// The bad row must fail the query, not silently shrink the history
	_, err = store.QueryEvents(ctx, userID, "", time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan dose event")
}

func TestEventStore_LoadProfileMissingReturnsNil(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := newTestStore(t, pool)

	profile, err := store.LoadProfile(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestEventStore_DeleteUserData(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := newTestStore(t, pool)
	ctx := context.Background()

	userID := uuid.New().String()
	otherID := uuid.New().String()
	scheduled := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)

	for i, uid := range []string{userID, userID, otherID} {
		require.NoError(t, store.AppendEvent(ctx, &model.DoseEvent{
			ID:            uuid.New().String(),
			UserID:        uid,
			MedicationID:  "med-1",
			ScheduledTime: scheduled.AddDate(0, 0, i),
			Status:        model.DoseStatusMissed,
			CreatedAt:     time.Now().UTC(),
		}))
	}
	require.NoError(t, store.SaveProfile(ctx, &model.UserAdherenceProfile{
		UserID:       userID,
		LastAnalyzed: time.Now().UTC(),
	}))

	deleted, err := store.DeleteUserData(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := store.QueryEvents(ctx, userID, "", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	profile, err := store.LoadProfile(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, profile)

	// The other user's data is untouched
	others, err := store.QueryEvents(ctx, otherID, "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
