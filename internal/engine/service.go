package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// AnalyticsService orchestrates the analysis pipeline: the synchronous read
// path (profile/insight/risk queries) and the background recompute loop fed
// by cache invalidations from the write path.
type AnalyticsService struct {
	store     EventStore
	cache     *ProfileCache
	calc      *Calculator
	analyzer  *ConflictAnalyzer
	detector  *PatternDetector
	predictor *RiskPredictor
	insights  *InsightGenerator
	cfg       config.EngineConfig
	logger    *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(
	store EventStore,
	cache *ProfileCache,
	calc *Calculator,
	analyzer *ConflictAnalyzer,
	detector *PatternDetector,
	predictor *RiskPredictor,
	insights *InsightGenerator,
	cfg config.EngineConfig,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		store:     store,
		cache:     cache,
		calc:      calc,
		analyzer:  analyzer,
		detector:  detector,
		predictor: predictor,
		insights:  insights,
		cfg:       cfg,
		logger:    logger,
		pending:   make(map[string]struct{}),
	}
}

// Invalidate implements the write path's cache-invalidation signal. It drops
// the cached profile and queues the user for background recomputation; it
// never blocks on analysis.
func (s *AnalyticsService) Invalidate(userID string) {
	s.cache.Invalidate(userID)

	s.mu.Lock()
	s.pending[userID] = struct{}{}
	s.mu.Unlock()
}

// Profile returns the user's adherence profile, serving a valid cached copy
// when one exists and recomputing otherwise. Concurrent cold reads for the
// same user share one computation.
func (s *AnalyticsService) Profile(ctx context.Context, userID string) (*model.UserAdherenceProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	if cached := s.cache.Get(userID, s.cfg.WindowDays, time.Now()); cached != nil {
		return cached, nil
	}

	result, err, _ := s.group.Do(userID, func() (interface{}, error) {
		return s.recompute(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.UserAdherenceProfile), nil
}

// recompute runs the full analysis pipeline for one user and refreshes both
// the cache and the persisted profile. Recomputation always folds in the
// full event history available at computation time, so re-running on an
// unchanged event set yields the same profile.
func (s *AnalyticsService) recompute(ctx context.Context, userID string) (*model.UserAdherenceProfile, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -s.cfg.WindowDays)

	events, err := s.store.QueryEvents(ctx, userID, "", since)
	if err != nil {
		s.logger.Error("failed to query events for analysis",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	// The three analysis stages are independent and share no mutable state;
	// run them concurrently. Risk and insights depend on all three and run
	// after the group completes.
	var (
		metrics  AdherenceMetrics
		pattern  *model.AdherencePattern
		impacts  map[string]model.CulturalFactorRate
		cultural model.CulturalFactors
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics = s.calc.Compute(events, now)
		return gctx.Err()
	})
	g.Go(func() error {
		impacts = s.analyzer.FactorImpacts(events)
		cultural = s.analyzer.Indicators(events)
		return gctx.Err()
	})
	g.Go(func() error {
		pattern = s.detector.Detect(userID, "", events)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}

	pattern.CulturalRates = impacts
	pattern.ConsistencyScore = metrics.ConsistencyScore
	pattern.RiskLevel = levelFor(clamp01(1.0 - metrics.OverallAdherenceRate))

	// Previously achieved milestones are append-only; load them from the
	// stored profile before evaluation.
	var previousMilestones []model.Milestone
	if stored, err := s.store.LoadProfile(ctx, userID); err != nil {
		s.logger.Warn("failed to load stored profile, milestones start fresh",
			zap.Error(err),
			zap.String("user_id", userID),
		)
	} else if stored != nil {
		previousMilestones = stored.Milestones
	}

	milestones := s.insights.EvaluateMilestones(previousMilestones, metrics, events, now)
	insightTexts, opportunities, triggers := s.insights.Generate(metrics, pattern, impacts, cultural)

	profile := &model.UserAdherenceProfile{
		UserID:                    userID,
		OverallAdherenceRate:      metrics.OverallAdherenceRate,
		Streaks:                   metrics.Streaks,
		Patterns:                  []model.AdherencePattern{*pattern},
		Insights:                  insightTexts,
		CulturalFactors:           cultural,
		BehavioralTriggers:        triggers,
		OptimizationOpportunities: opportunities,
		Milestones:                milestones,
		LowConfidence:             pattern.LowConfidence,
		LastAnalyzed:              now,
	}

	s.cache.Set(userID, s.cfg.WindowDays, profile, now)

	// Persisting the profile is best effort; a failed save leaves the read
	// path intact and the next recompute retries it.
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		s.logger.Warn("failed to persist profile",
			zap.Error(err),
			zap.String("user_id", userID),
		)
	}

	s.logger.Info("profile recomputed",
		zap.String("user_id", userID),
		zap.Int("events", len(events)),
		zap.Float64("adherence_rate", metrics.OverallAdherenceRate),
	)

	return profile, nil
}

// MedicationInsights returns the per-medication analytical summary
func (s *AnalyticsService) MedicationInsights(ctx context.Context, userID, medicationID string) (*model.MedicationInsights, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if medicationID == "" {
		return nil, fmt.Errorf("medication ID is required")
	}

	now := time.Now()
	since := now.AddDate(0, 0, -s.cfg.WindowDays)
	events, err := s.store.QueryEvents(ctx, userID, medicationID, since)
	if err != nil {
		s.logger.Error("failed to query medication events",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("medication_id", medicationID),
		)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	metrics := s.calc.Compute(events, now)
	pattern := s.detector.Detect(userID, medicationID, events)
	impacts := s.analyzer.FactorImpacts(events)
	cultural := s.analyzer.Indicators(events)
	_, opportunities, _ := s.insights.Generate(metrics, pattern, impacts, cultural)

	return &model.MedicationInsights{
		UserID:          userID,
		MedicationID:    medicationID,
		AdherenceRate:   metrics.OverallAdherenceRate,
		AverageLatency:  metrics.AverageDelayMinutes,
		BestTimes:       pattern.TimeWindow,
		CulturalImpacts: impacts,
		Recommendations: opportunities,
		LowConfidence:   pattern.LowConfidence,
	}, nil
}

// PredictRisk forecasts the miss risk for one upcoming dose
func (s *AnalyticsService) PredictRisk(ctx context.Context, userID, medicationID string, scheduledTime time.Time, region string) (*model.RiskPrediction, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if medicationID == "" {
		return nil, fmt.Errorf("medication ID is required")
	}
	if scheduledTime.IsZero() {
		return nil, fmt.Errorf("scheduled time is required")
	}

	now := time.Now()
	since := now.AddDate(0, 0, -s.cfg.WindowDays)
	events, err := s.store.QueryEvents(ctx, userID, medicationID, since)
	if err != nil {
		s.logger.Error("failed to query events for risk prediction",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("medication_id", medicationID),
		)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	metrics := s.calc.Compute(events, now)
	pattern := s.detector.Detect(userID, medicationID, events)
	cultural := s.analyzer.Indicators(events)

	return s.predictor.Predict(ctx, PredictInput{
		UserID:        userID,
		MedicationID:  medicationID,
		ScheduledTime: scheduledTime,
		Region:        region,
		Events:        events,
		Metrics:       metrics,
		Pattern:       pattern,
		Cultural:      cultural,
	}), nil
}

// ResolveReminderSlot exposes the conflict-aware slot search
func (s *AnalyticsService) ResolveReminderSlot(ctx context.Context, region string, proposed time.Time) ReminderSlot {
	if region == "" {
		region = s.cfg.DefaultRegion
	}
	return s.analyzer.ResolveReminderSlot(ctx, region, proposed)
}

// Run drains pending invalidations on the configured interval so subsequent
// reads find a warm cache. It blocks until the context is cancelled; callers
// start it in its own goroutine.
func (s *AnalyticsService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("background analysis loop stopped")
			return
		case <-ticker.C:
			s.refreshPending(ctx)
		}
	}
}

// refreshPending recomputes profiles for every user with a pending
// invalidation, batched per tick.
func (s *AnalyticsService) refreshPending(ctx context.Context) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(s.pending))
	for userID := range s.pending {
		batch = append(batch, userID)
	}
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	s.logger.Debug("refreshing invalidated profiles", zap.Int("users", len(batch)))

	for _, userID := range batch {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.recompute(ctx, userID); err != nil {
			s.logger.Warn("background recompute failed",
				zap.Error(err),
				zap.String("user_id", userID),
			)
		}
	}
}

// Shutdown clears the cache; the orchestration layer owns the cache
// lifecycle.
func (s *AnalyticsService) Shutdown() {
	s.cache.Clear()
}
