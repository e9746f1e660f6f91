package engine

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// trendDelta is the taken-rate change (in percentage points) that separates
// improving/declining from stable.
const trendDelta = 0.05

// trendSampleSize compares the most recent N events against the N before them
const trendSampleSize = 7

// defaultReminderWindow is returned when history is too sparse to trust
var defaultReminderWindow = model.TimeWindow{Start: "08:00", End: "09:00"}

// PatternDetector mines time-of-day, day-of-week, and delivery-channel
// patterns from historical events.
type PatternDetector struct {
	cfg    config.EngineConfig
	logger *zap.Logger
}

// NewPatternDetector creates a new PatternDetector
func NewPatternDetector(cfg config.EngineConfig, logger *zap.Logger) *PatternDetector {
	return &PatternDetector{cfg: cfg, logger: logger}
}

// Detect produces the adherence pattern for an event set. Below the minimum
// event count it returns explicit low-confidence defaults instead of
// fabricating trends from sparse data.
func (d *PatternDetector) Detect(userID, medicationID string, events []model.DoseEvent) *model.AdherencePattern {
	pattern := &model.AdherencePattern{
		UserID:       userID,
		MedicationID: medicationID,
		WindowDays:   d.cfg.WindowDays,
		EventCount:   len(events),
	}

	if len(events) < d.cfg.MinPatternEvents {
		pattern.LowConfidence = true
		pattern.TimeWindow = defaultReminderWindow
		pattern.Trend = model.TrendStable
		d.logger.Debug("insufficient history for pattern detection",
			zap.String("user_id", userID),
			zap.Int("events", len(events)),
			zap.Int("required", d.cfg.MinPatternEvents),
		)
		return pattern
	}

	pattern.WeekdayRates = weekdayRates(events)
	pattern.HourlyRates = hourlyRates(events)
	pattern.DeliveryMethodStats = deliveryStats(events)
	pattern.TimeWindow = d.optimalWindow(events)
	pattern.Trend = classifyTrend(events)
	return pattern
}

// weekdayRates buckets taken-equivalent rates by day of week
func weekdayRates(events []model.DoseEvent) map[time.Weekday]float64 {
	taken := make(map[time.Weekday]int)
	total := make(map[time.Weekday]int)
	for _, ev := range events {
		wd := ev.ScheduledTime.Weekday()
		total[wd]++
		if ev.Status.TakenEquivalent() {
			taken[wd]++
		}
	}
	rates := make(map[time.Weekday]float64, len(total))
	for wd, n := range total {
		rates[wd] = float64(taken[wd]) / float64(n)
	}
	return rates
}

// hourlyRates buckets taken-equivalent rates by scheduled hour
func hourlyRates(events []model.DoseEvent) map[int]float64 {
	taken := make(map[int]int)
	total := make(map[int]int)
	for _, ev := range events {
		h := ev.ScheduledTime.Hour()
		total[h]++
		if ev.Status.TakenEquivalent() {
			taken[h]++
		}
	}
	rates := make(map[int]float64, len(total))
	for h, n := range total {
		rates[h] = float64(taken[h]) / float64(n)
	}
	return rates
}

// deliveryStats computes per-channel success rate and usage share
func deliveryStats(events []model.DoseEvent) map[model.DeliveryMethod]model.DeliveryMethodStats {
	taken := make(map[model.DeliveryMethod]int)
	total := make(map[model.DeliveryMethod]int)
	for _, ev := range events {
		total[ev.DeliveryMethod]++
		if ev.Status.TakenEquivalent() {
			taken[ev.DeliveryMethod]++
		}
	}
	out := make(map[model.DeliveryMethod]model.DeliveryMethodStats, len(total))
	for method, n := range total {
		out[method] = model.DeliveryMethodStats{
			SuccessRate: float64(taken[method]) / float64(n),
			UsageShare:  float64(n) / float64(len(events)),
		}
	}
	return out
}

// optimalWindow centers the smallest reminder interval on the mean clock
// time of successful intakes, widening it when intake times scatter.
func (d *PatternDetector) optimalWindow(events []model.DoseEvent) model.TimeWindow {
	var minutes []float64
	for _, ev := range events {
		if !ev.Status.TakenEquivalent() {
			continue
		}
		at := ev.ScheduledTime
		if ev.ActualTime != nil {
			at = *ev.ActualTime
		}
		minutes = append(minutes, float64(at.Hour()*60+at.Minute()))
	}
	if len(minutes) == 0 {
		return defaultReminderWindow
	}

	mean, _ := stats.Mean(minutes)
	spread, _ := stats.StandardDeviation(minutes)

	halfWidth := 30.0
	if spread > halfWidth {
		halfWidth = spread
	}
	if halfWidth > 120 {
		halfWidth = 120
	}

	return model.TimeWindow{
		Start: clockString(mean - halfWidth),
		End:   clockString(mean + halfWidth),
	}
}

// clockString renders minutes-since-midnight as HH:MM, clamped to the day
func clockString(minutes float64) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes > 23*60+59 {
		minutes = 23*60 + 59
	}
	m := int(minutes)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// classifyTrend compares the taken rate of the most recent events against
// the preceding batch. Events arrive ordered by scheduled time ascending.
func classifyTrend(events []model.DoseEvent) model.Trend {
	if len(events) < 2*trendSampleSize {
		return model.TrendStable
	}
	recent := events[len(events)-trendSampleSize:]
	previous := events[len(events)-2*trendSampleSize : len(events)-trendSampleSize]

	diff := takenRate(recent) - takenRate(previous)
	switch {
	case diff >= trendDelta:
		return model.TrendImproving
	case diff <= -trendDelta:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// takenRate is the taken-equivalent share of an event slice
func takenRate(events []model.DoseEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	taken := 0
	for _, ev := range events {
		if ev.Status.TakenEquivalent() {
			taken++
		}
	}
	return float64(taken) / float64(len(events))
}
