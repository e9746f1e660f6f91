package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// Risk adjustment weights. Each adjustment that fires is surfaced verbatim
// in RiskFactors so the prediction stays explainable.
const (
	weekdayRiskWeight       = 0.3
	culturalRiskAdjustment  = 0.2
	recentDeclineAdjustment = 0.3
	recentDeclineThreshold  = 0.7
)

// Risk level boundaries on the clamped probability
const (
	riskLevelMediumFloor   = 0.2
	riskLevelHighFloor     = 0.4
	riskLevelCriticalFloor = 0.7
)

// RiskPredictor forecasts the miss risk for one specific upcoming dose
type RiskPredictor struct {
	analyzer *ConflictAnalyzer
	cfg      config.EngineConfig
	logger   *zap.Logger
}

// NewRiskPredictor creates a new RiskPredictor
func NewRiskPredictor(analyzer *ConflictAnalyzer, cfg config.EngineConfig, logger *zap.Logger) *RiskPredictor {
	return &RiskPredictor{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger,
	}
}

// PredictInput bundles the upstream analysis a prediction derives from
type PredictInput struct {
	UserID        string
	MedicationID  string
	ScheduledTime time.Time
	Region        string
	Events        []model.DoseEvent // ordered by scheduled time ascending
	Metrics       AdherenceMetrics
	Pattern       *model.AdherencePattern
	Cultural      model.CulturalFactors
}

// Predict computes the forward-looking risk estimate. Sparse history falls
// back to the raw base risk with a reduced-confidence note; it never errors.
func (p *RiskPredictor) Predict(ctx context.Context, in PredictInput) *model.RiskPrediction {
	base := 1.0 - in.Metrics.OverallAdherenceRate
	prediction := &model.RiskPrediction{
		UserID:        in.UserID,
		MedicationID:  in.MedicationID,
		ScheduledTime: in.ScheduledTime,
	}

	score := base
	if len(in.Events) < p.cfg.MinPatternEvents || in.Pattern == nil || in.Pattern.LowConfidence {
		prediction.RiskFactors = append(prediction.RiskFactors,
			fmt.Sprintf("fewer than %d historical events; confidence reduced, risk derived from overall adherence only", p.cfg.MinPatternEvents))
	} else {
		weekday := in.ScheduledTime.Weekday()
		if dayRate, ok := in.Pattern.WeekdayRates[weekday]; ok {
			adj := (1.0 - dayRate) * weekdayRiskWeight
			if adj > 0 {
				score += adj
				prediction.RiskFactors = append(prediction.RiskFactors,
					fmt.Sprintf("%s adherence rate is %.0f%%", weekday, dayRate*100))
			}
		}

		region := in.Region
		if region == "" {
			region = p.cfg.DefaultRegion
		}
		cc := p.analyzer.ContextFor(ctx, region, in.ScheduledTime)
		inConflict := cc.PrayerTimeConflict || cc.FastingPeriod || cc.FestivalDay
		if inConflict && in.Cultural.ReligiosityIndicator > p.cfg.ReligiosityThreshold {
			score += culturalRiskAdjustment
			prediction.RiskFactors = append(prediction.RiskFactors,
				"scheduled time falls in an active cultural conflict window")
			prediction.Recommendations = append(prediction.Recommendations,
				"shift the reminder outside the conflict window")
		}

		if recent := recentRate(in.Events, trendSampleSize); recent < recentDeclineThreshold {
			score += recentDeclineAdjustment
			prediction.RiskFactors = append(prediction.RiskFactors,
				fmt.Sprintf("recent adherence dropped to %.0f%% over the last %d doses", recent*100, trendSampleSize))
		}
	}

	prediction.Probability = clamp01(score)
	prediction.RiskLevel = levelFor(prediction.Probability)
	prediction.Recommendations = append(prediction.Recommendations, recommendationsFor(prediction.RiskLevel)...)

	p.logger.Debug("risk predicted",
		zap.String("user_id", in.UserID),
		zap.String("medication_id", in.MedicationID),
		zap.Float64("probability", prediction.Probability),
		zap.String("level", string(prediction.RiskLevel)),
	)

	return prediction
}

// recentRate is the taken-equivalent rate of the last n events
func recentRate(events []model.DoseEvent, n int) float64 {
	if len(events) == 0 {
		return 0
	}
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return takenRate(events)
}

// levelFor maps a clamped probability onto the risk level buckets
func levelFor(probability float64) model.RiskLevel {
	switch {
	case probability < riskLevelMediumFloor:
		return model.RiskLevelLow
	case probability < riskLevelHighFloor:
		return model.RiskLevelMedium
	case probability < riskLevelCriticalFloor:
		return model.RiskLevelHigh
	default:
		return model.RiskLevelCritical
	}
}

// recommendationsFor returns the baseline mitigation actions per level
func recommendationsFor(level model.RiskLevel) []string {
	switch level {
	case model.RiskLevelHigh:
		return []string{"send the reminder over the user's most effective channel"}
	case model.RiskLevelCritical:
		return []string{
			"send the reminder over the user's most effective channel",
			"escalate to a caregiver if the dose is missed",
		}
	default:
		return nil
	}
}

// clamp01 clamps a score into [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
