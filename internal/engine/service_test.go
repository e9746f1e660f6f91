package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(store *memoryStore, cfg config.EngineConfig) *AnalyticsService {
	logger := testLogger()
	analyzer := NewConflictAnalyzer(&stubProvider{}, cfg, logger)
	return NewAnalyticsService(
		store,
		NewProfileCache(cfg.CacheTTL),
		NewCalculator(cfg, logger),
		analyzer,
		NewPatternDetector(cfg, logger),
		NewRiskPredictor(analyzer, cfg, logger),
		NewInsightGenerator(cfg, logger),
		cfg,
		logger,
	)
}

func TestProfile_RequiresUserID(t *testing.T) {
	svc := newTestService(newMemoryStore(), testConfig())

	_, err := svc.Profile(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user ID is required")
}

func TestProfile_ComputesAndCaches(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.events = dailyTaken("user-1", now, 14)
	svc := newTestService(store, testConfig())

	profile, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", profile.UserID)
	assert.Equal(t, 1.0, profile.OverallAdherenceRate)
	assert.Equal(t, 14, profile.Streaks.Current)
	assert.False(t, profile.LowConfidence)
	require.Len(t, profile.Patterns, 1)
	assert.NotNil(t, profile.Patterns[0].CulturalRates)

	queriesAfterFirst := store.queryCalls

	// Second read is a cache hit: no further store traffic
	again, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Same(t, profile, again)
	assert.Equal(t, queriesAfterFirst, store.queryCalls)
}

func TestProfile_RecomputeIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.events = dailyTaken("user-1", now, 14)
	svc := newTestService(store, testConfig())

	first, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)

	svc.Invalidate("user-1")
	second, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)

	// Same events in, same analysis out; only the analysis timestamp moves
	assert.Equal(t, first.OverallAdherenceRate, second.OverallAdherenceRate)
	assert.Equal(t, first.Streaks, second.Streaks)
	assert.Equal(t, first.Patterns, second.Patterns)
	assert.Equal(t, first.Insights, second.Insights)
	assert.Equal(t, first.CulturalFactors, second.CulturalFactors)
	assert.Equal(t, first.OptimizationOpportunities, second.OptimizationOpportunities)
}

func TestProfile_MilestonesCarryForward(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.events = dailyTaken("user-1", now, 14)
	svc := newTestService(store, testConfig())

	first, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	achieved := findMilestone(t, first.Milestones, "streak_7").AchievedDate
	require.NotNil(t, achieved)

	// History collapses, but the achievement stays
	store.mu.Lock()
	store.events = []model.DoseEvent{missedEvent("user-1", now.Add(-time.Hour))}
	store.mu.Unlock()

	svc.Invalidate("user-1")
	second, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)

	kept := findMilestone(t, second.Milestones, "streak_7").AchievedDate
	require.NotNil(t, kept)
	assert.Equal(t, *achieved, *kept)
}

func TestProfile_PersistFailureIsBestEffort(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.events = dailyTaken("user-1", now, 14)
	store.saveErr = assert.AnError
	svc := newTestService(store, testConfig())

	profile, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err, "a failed profile save must not fail the read")
	assert.NotNil(t, profile)
}

func TestMedicationInsights(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.events = dailyTaken("user-1", now, 14)
	svc := newTestService(store, testConfig())

	t.Run("validation", func(t *testing.T) {
		_, err := svc.MedicationInsights(context.Background(), "", "med-1")
		assert.Error(t, err)
		_, err = svc.MedicationInsights(context.Background(), "user-1", "")
		assert.Error(t, err)
	})

	t.Run("scoped to the medication", func(t *testing.T) {
		insights, err := svc.MedicationInsights(context.Background(), "user-1", "med-1")
		require.NoError(t, err)
		assert.Equal(t, "med-1", insights.MedicationID)
		assert.Equal(t, 1.0, insights.AdherenceRate)
		assert.False(t, insights.LowConfidence)

		other, err := svc.MedicationInsights(context.Background(), "user-1", "med-other")
		require.NoError(t, err)
		assert.True(t, other.LowConfidence, "no history for this medication")
	})
}

func TestPredictRisk_Validation(t *testing.T) {
	svc := newTestService(newMemoryStore(), testConfig())
	ctx := context.Background()

	_, err := svc.PredictRisk(ctx, "", "med-1", time.Now(), "")
	assert.Error(t, err)
	_, err = svc.PredictRisk(ctx, "user-1", "", time.Now(), "")
	assert.Error(t, err)
	_, err = svc.PredictRisk(ctx, "user-1", "med-1", time.Time{}, "")
	assert.Error(t, err)
}

func TestInvalidate_QueuesBackgroundRefresh(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.events = dailyTaken("user-1", now, 14)
	cfg := testConfig()
	cfg.RefreshInterval = 10 * time.Millisecond
	svc := newTestService(store, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	svc.Invalidate("user-1")

	// The background loop recomputes and persists the profile
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.profiles["user-1"] != nil
	}, 2*time.Second, 10*time.Millisecond)
}
