package engine

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// neutralConsistency is the score reported when there is no history at all;
// absence of data is not non-adherence.
const neutralConsistency = 50.0

// maxTimingPenalty caps how far timing jitter can pull the consistency score
const maxTimingPenalty = 30.0

// AdherenceMetrics are the windowed aggregates produced by the Calculator
type AdherenceMetrics struct {
	OverallAdherenceRate float64
	Streaks              model.StreakSummary
	ConsistencyScore     float64
	AverageDelayMinutes  float64
	TakenCount           int
	MissedCount          int
	TotalCount           int
}

// Calculator converts ordered event sets into scores, streaks, and rates
type Calculator struct {
	cfg    config.EngineConfig
	logger *zap.Logger
}

// NewCalculator creates a new Calculator
func NewCalculator(cfg config.EngineConfig, logger *zap.Logger) *Calculator {
	return &Calculator{cfg: cfg, logger: logger}
}

// Compute derives the adherence metrics for an event set. The zero-event case
// returns rate 0, streak 0, and the neutral consistency score.
func (c *Calculator) Compute(events []model.DoseEvent, now time.Time) AdherenceMetrics {
	if len(events) == 0 {
		return AdherenceMetrics{ConsistencyScore: neutralConsistency}
	}

	var taken, missed int
	var delays []float64
	for _, ev := range events {
		if ev.Status.TakenEquivalent() {
			taken++
			if ev.DelayMinutes != nil {
				delays = append(delays, math.Abs(float64(*ev.DelayMinutes)))
			}
		}
		if ev.Status == model.DoseStatusMissed {
			missed++
		}
	}

	rate := float64(taken) / float64(len(events))

	var avgDelay float64
	if len(delays) > 0 {
		avgDelay, _ = stats.Mean(delays)
	}

	current, longest := c.streaks(events, now)

	return AdherenceMetrics{
		OverallAdherenceRate: rate,
		Streaks:              model.StreakSummary{Current: current, Longest: longest},
		ConsistencyScore:     c.consistency(rate, avgDelay),
		AverageDelayMinutes:  avgDelay,
		TakenCount:           taken,
		MissedCount:          missed,
		TotalCount:           len(events),
	}
}

// consistency starts from the adherence rate and subtracts a capped penalty
// that grows linearly with average lateness.
func (c *Calculator) consistency(rate, avgDelayMinutes float64) float64 {
	penalty := avgDelayMinutes / 60.0 * 100.0 * c.cfg.TimingPenaltyWeight
	if penalty > maxTimingPenalty {
		penalty = maxTimingPenalty
	}
	score := rate*100.0 - penalty
	if score < 0 {
		return 0
	}
	return score
}

// dayOutcome summarizes one calendar day of events
type dayOutcome struct {
	taken  bool
	missed bool
}

// streaks computes the current and longest consecutive-day adherence runs.
// A day qualifies when it has at least one taken-equivalent event and no
// missed events.
func (c *Calculator) streaks(events []model.DoseEvent, now time.Time) (current, longest int) {
	days := make(map[string]*dayOutcome)
	var first, last time.Time
	for _, ev := range events {
		day := dateOf(ev.ScheduledTime)
		key := day.Format("2006-01-02")
		out, ok := days[key]
		if !ok {
			out = &dayOutcome{}
			days[key] = out
		}
		if ev.Status.TakenEquivalent() {
			out.taken = true
		}
		if ev.Status == model.DoseStatusMissed {
			out.missed = true
		}
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}

	qualifies := func(day time.Time) (present, ok bool) {
		out, found := days[day.Format("2006-01-02")]
		if !found {
			return false, false
		}
		return true, out.taken && !out.missed
	}

	// Current streak walks backward from today. A today with no events yet
	// does not break the chain; it just is not counted.
	cursor := dateOf(now)
	if present, _ := qualifies(cursor); !present {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for {
		present, ok := qualifies(cursor)
		if !present || !ok {
			break
		}
		current++
		cursor = cursor.AddDate(0, 0, -1)
	}

	// Longest streak scans the full span; gap days break the run the same
	// way a missed day does.
	run := 0
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		present, ok := qualifies(day)
		if present && ok {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}

	return current, longest
}

// DoseScore grades a single event 0-100 for milestone checks and trend
// lines. It is never averaged into the overall adherence rate.
func (c *Calculator) DoseScore(ev model.DoseEvent) float64 {
	switch ev.Status {
	case model.DoseStatusTakenOnTime:
		return 100
	case model.DoseStatusTakenEarly:
		return 95
	case model.DoseStatusTakenLate:
		if ev.DelayMinutes == nil {
			return 50
		}
		switch delay := *ev.DelayMinutes; {
		case delay <= 60:
			return 85
		case delay <= 120:
			return 70
		default:
			return 50
		}
	default:
		return 0
	}
}

// dateOf truncates an instant to its calendar day
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
