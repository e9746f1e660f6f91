package engine

import (
	"fmt"
	"time"

	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// milestoneCatalog is the fixed set of achievement definitions
func milestoneCatalog() []model.Milestone {
	return []model.Milestone{
		{ID: "streak_7", Type: model.MilestoneTypeStreakDays, Threshold: 7, Title: "One week strong", Description: "7 consecutive days of full adherence"},
		{ID: "streak_30", Type: model.MilestoneTypeStreakDays, Threshold: 30, Title: "One month strong", Description: "30 consecutive days of full adherence"},
		{ID: "streak_90", Type: model.MilestoneTypeStreakDays, Threshold: 90, Title: "Quarter champion", Description: "90 consecutive days of full adherence"},
		{ID: "streak_365", Type: model.MilestoneTypeStreakDays, Threshold: 365, Title: "A full year", Description: "365 consecutive days of full adherence"},
		{ID: "rate_80", Type: model.MilestoneTypeAdherenceRate, Threshold: 0.8, Title: "Reliable", Description: "80% adherence over the analysis window"},
		{ID: "rate_90", Type: model.MilestoneTypeAdherenceRate, Threshold: 0.9, Title: "Excellent", Description: "90% adherence over the analysis window"},
		{ID: "perfect_week", Type: model.MilestoneTypePerfectWeek, Threshold: 7, Title: "Perfect week", Description: "every dose taken on time for 7 days"},
	}
}

// insightInput is the evidence a suggestion rule can read
type insightInput struct {
	Metrics  AdherenceMetrics
	Pattern  *model.AdherencePattern
	Impacts  map[string]model.CulturalFactorRate
	Cultural model.CulturalFactors
}

// suggestionRule pairs a trigger condition with its suggestion text.
// Suggestion generation is a declarative table, not branching prose.
type suggestionRule struct {
	ID       string
	When     func(in insightInput) bool
	Text     string
	Negative bool // also listed as a negative behavioral trigger
}

// suggestionRules is the fixed trigger-condition table
var suggestionRules = []suggestionRule{
	{
		ID: "prayer_window_conflict",
		When: func(in insightInput) bool {
			f, ok := in.Impacts[FactorKeyPrayer]
			return ok && f.SampleCount >= 3 && f.Impact < -0.1
		},
		Text:     "adherence drops around prayer times; shift the dose schedule outside prayer windows",
		Negative: true,
	},
	{
		ID: "fasting_conflict",
		When: func(in insightInput) bool {
			f, ok := in.Impacts[FactorKeyFasting]
			return ok && f.SampleCount >= 3 && f.Impact < -0.1
		},
		Text:     "adherence drops during fasting periods; discuss a suhoor/iftar-aligned schedule",
		Negative: true,
	},
	{
		ID: "festival_disruption",
		When: func(in insightInput) bool {
			f, ok := in.Impacts[FactorKeyFestival]
			return ok && f.SampleCount >= 2 && f.Impact < -0.1
		},
		Text:     "festival days disrupt the routine; plan reminders ahead of holidays",
		Negative: true,
	},
	{
		ID: "traditional_medicine",
		When: func(in insightInput) bool {
			return in.Cultural.TraditionalMedicineBias > 0.3
		},
		Text:     "traditional medicine use overlaps with prescribed doses; flag for a pharmacist conversation",
		Negative: true,
	},
	{
		ID: "low_family_involvement",
		When: func(in insightInput) bool {
			return in.Cultural.FamilyInfluenceIndicator < 0.3
		},
		Text: "low family involvement; suggest enabling shared visibility with a family member",
	},
	{
		ID: "timing_jitter",
		When: func(in insightInput) bool {
			return in.Metrics.AverageDelayMinutes > 45 && in.Metrics.TakenCount >= 5
		},
		Text:     "doses are taken but often late; move the reminder closer to the usual intake time",
		Negative: true,
	},
	{
		ID: "declining_trend",
		When: func(in insightInput) bool {
			return in.Pattern != nil && in.Pattern.Trend == model.TrendDeclining
		},
		Text:     "adherence is declining over the last doses; consider a check-in call",
		Negative: true,
	},
	{
		ID: "improving_trend",
		When: func(in insightInput) bool {
			return in.Pattern != nil && in.Pattern.Trend == model.TrendImproving
		},
		Text: "adherence is improving; reinforce the current routine",
	},
}

// InsightGenerator derives milestones, insights, and optimization suggestions
// from the composed analysis.
type InsightGenerator struct {
	cfg    config.EngineConfig
	logger *zap.Logger
}

// NewInsightGenerator creates a new InsightGenerator
func NewInsightGenerator(cfg config.EngineConfig, logger *zap.Logger) *InsightGenerator {
	return &InsightGenerator{cfg: cfg, logger: logger}
}

// EvaluateMilestones checks the catalog against the current metrics.
// Previously achieved milestones carry forward untouched; a newly satisfied
// definition is marked achieved exactly once. Re-evaluating an unchanged
// state is a no-op.
func (g *InsightGenerator) EvaluateMilestones(previous []model.Milestone, metrics AdherenceMetrics, events []model.DoseEvent, now time.Time) []model.Milestone {
	achieved := make(map[string]*time.Time, len(previous))
	for _, m := range previous {
		if m.AchievedDate != nil {
			achieved[m.ID] = m.AchievedDate
		}
	}

	catalog := milestoneCatalog()
	for i := range catalog {
		m := &catalog[i]
		if date, ok := achieved[m.ID]; ok {
			m.AchievedDate = date
			continue
		}
		if g.satisfied(*m, metrics, events, now) {
			at := now
			m.AchievedDate = &at
			g.logger.Info("milestone achieved",
				zap.String("milestone_id", m.ID),
				zap.String("title", m.Title),
			)
		}
	}
	return catalog
}

// satisfied checks one milestone definition against the current state
func (g *InsightGenerator) satisfied(m model.Milestone, metrics AdherenceMetrics, events []model.DoseEvent, now time.Time) bool {
	switch m.Type {
	case model.MilestoneTypeStreakDays:
		return float64(metrics.Streaks.Current) >= m.Threshold ||
			float64(metrics.Streaks.Longest) >= m.Threshold
	case model.MilestoneTypeAdherenceRate:
		return metrics.TotalCount > 0 && metrics.OverallAdherenceRate >= m.Threshold
	case model.MilestoneTypePerfectWeek:
		return perfectWeek(events, now)
	default:
		return false
	}
}

// perfectWeek reports whether the last 7 calendar days held at least one
// event per day and every event was taken on time.
func perfectWeek(events []model.DoseEvent, now time.Time) bool {
	start := dateOf(now).AddDate(0, 0, -6)
	perDay := make(map[string]bool, 7)
	for _, ev := range events {
		day := dateOf(ev.ScheduledTime)
		if day.Before(start) || day.After(dateOf(now)) {
			continue
		}
		if ev.Status != model.DoseStatusTakenOnTime {
			return false
		}
		perDay[day.Format("2006-01-02")] = true
	}
	return len(perDay) == 7
}

// Generate produces the human-facing insight lists from the composed
// analysis by walking the declarative rule table.
func (g *InsightGenerator) Generate(metrics AdherenceMetrics, pattern *model.AdherencePattern, impacts map[string]model.CulturalFactorRate, cultural model.CulturalFactors) (insights, opportunities []string, triggers model.BehavioralTriggers) {
	in := insightInput{
		Metrics:  metrics,
		Pattern:  pattern,
		Impacts:  impacts,
		Cultural: cultural,
	}

	for _, rule := range suggestionRules {
		if !rule.When(in) {
			continue
		}
		opportunities = append(opportunities, rule.Text)
		if rule.Negative {
			triggers.Negative = append(triggers.Negative, rule.ID)
		} else {
			triggers.Positive = append(triggers.Positive, rule.ID)
		}
	}

	if metrics.TotalCount == 0 {
		insights = append(insights, "not enough history yet to analyze adherence")
		return insights, opportunities, triggers
	}

	insights = append(insights,
		fmt.Sprintf("overall adherence is %.0f%% across %d doses", metrics.OverallAdherenceRate*100, metrics.TotalCount))
	if metrics.Streaks.Current > 0 {
		insights = append(insights,
			fmt.Sprintf("current streak: %d day(s)", metrics.Streaks.Current))
	}
	if pattern != nil && !pattern.LowConfidence {
		insights = append(insights,
			fmt.Sprintf("doses are most reliably taken between %s and %s", pattern.TimeWindow.Start, pattern.TimeWindow.End))
	}
	return insights, opportunities, triggers
}
