package model

import "time"

// DoseStatus represents the derived outcome of a scheduled dose
type DoseStatus string

const (
	DoseStatusTakenOnTime DoseStatus = "taken_on_time"
	DoseStatusTakenEarly  DoseStatus = "taken_early"
	DoseStatusTakenLate   DoseStatus = "taken_late"
	DoseStatusMissed      DoseStatus = "missed"
	DoseStatusSkipped     DoseStatus = "skipped"
)

// TakenEquivalent reports whether the status counts toward adherence
func (s DoseStatus) TakenEquivalent() bool {
	switch s {
	case DoseStatusTakenOnTime, DoseStatusTakenEarly, DoseStatusTakenLate:
		return true
	}
	return false
}

// DeliveryMethod represents the channel a dose reminder was delivered over
type DeliveryMethod string

const (
	DeliveryMethodPush  DeliveryMethod = "push"
	DeliveryMethodSMS   DeliveryMethod = "sms"
	DeliveryMethodVoice DeliveryMethod = "voice"
	DeliveryMethodInApp DeliveryMethod = "in_app"
)

// CulturalContext flags the cultural conditions active at the scheduled time
type CulturalContext struct {
	PrayerTimeConflict          bool `json:"prayer_time_conflict"`
	FastingPeriod               bool `json:"fasting_period"`
	FestivalDay                 bool `json:"festival_day"`
	TraditionalMedicineConflict bool `json:"traditional_medicine_conflict"`
	// Unknown is set when the calendar provider was unavailable at ingestion,
	// so absence of flags cannot be read as absence of conflict.
	Unknown bool `json:"unknown,omitempty"`
}

// DoseEvent is an immutable record of one scheduled-dose observation.
// Corrections are recorded as new events referencing the original via CorrectsID.
type DoseEvent struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	MedicationID    string          `json:"medication_id"`
	ScheduledTime   time.Time       `json:"scheduled_time"`
	ActualTime      *time.Time      `json:"actual_time,omitempty"`
	Status          DoseStatus      `json:"status"`
	DelayMinutes    *int            `json:"delay_minutes,omitempty"`
	DeliveryMethod  DeliveryMethod  `json:"delivery_method"`
	CulturalContext CulturalContext `json:"cultural_context"`
	CorrectsID      *string         `json:"corrects_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// RiskLevel buckets a risk probability
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// TimeWindow is a preferred clock-time interval for reminders
type TimeWindow struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

// CulturalFactorRate holds the adherence rate observed under one cultural factor
// and its signed impact (rate in-context minus rate out-of-context).
type CulturalFactorRate struct {
	Rate        float64 `json:"rate"`
	Impact      float64 `json:"impact"`
	SampleCount int     `json:"sample_count"`
}

// DeliveryMethodStats holds per-channel reminder effectiveness
type DeliveryMethodStats struct {
	SuccessRate float64 `json:"success_rate"`
	UsageShare  float64 `json:"usage_share"`
}

// Trend classifies the short-term adherence direction
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// AdherencePattern is a derived per-user (optionally per-medication) summary
// over a rolling window. It is replaced wholesale on recomputation.
type AdherencePattern struct {
	UserID              string                                 `json:"user_id"`
	MedicationID        string                                 `json:"medication_id,omitempty"`
	WindowDays          int                                    `json:"window_days"`
	TimeWindow          TimeWindow                             `json:"time_window"`
	WeekdayRates        map[time.Weekday]float64               `json:"weekday_rates"`
	HourlyRates         map[int]float64                        `json:"hourly_rates"`
	CulturalRates       map[string]CulturalFactorRate          `json:"cultural_rates"`
	DeliveryMethodStats map[DeliveryMethod]DeliveryMethodStats `json:"delivery_method_stats"`
	ConsistencyScore    float64                                `json:"consistency_score"`
	RiskLevel           RiskLevel                              `json:"risk_level"`
	Trend               Trend                                  `json:"trend"`
	LowConfidence       bool                                   `json:"low_confidence"`
	EventCount          int                                    `json:"event_count"`
}

// RiskPrediction is a point-in-time forecast for one upcoming dose.
// Ephemeral; never persisted.
type RiskPrediction struct {
	UserID          string    `json:"user_id"`
	MedicationID    string    `json:"medication_id"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Probability     float64   `json:"probability"`
	RiskFactors     []string  `json:"risk_factors"`
	Recommendations []string  `json:"recommendations"`
}

// CulturalFactors aggregates the heuristic cultural indicators for a user.
// These are behavioral signals derived from event flags, not validated
// clinical measures.
type CulturalFactors struct {
	ReligiosityIndicator     float64 `json:"religiosity_indicator"`
	TraditionalMedicineBias  float64 `json:"traditional_medicine_bias"`
	FamilyInfluenceIndicator float64 `json:"family_influence_indicator"`
}

// BehavioralTriggers lists conditions observed to help or hurt adherence
type BehavioralTriggers struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

// StreakSummary holds consecutive-day adherence runs
type StreakSummary struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// UserAdherenceProfile is the aggregate analytical view exposed to consumers
type UserAdherenceProfile struct {
	UserID                    string             `json:"user_id"`
	OverallAdherenceRate      float64            `json:"overall_adherence_rate"`
	Streaks                   StreakSummary      `json:"streaks"`
	Patterns                  []AdherencePattern `json:"patterns"`
	Insights                  []string           `json:"insights"`
	CulturalFactors           CulturalFactors    `json:"cultural_factors"`
	BehavioralTriggers        BehavioralTriggers `json:"behavioral_triggers"`
	OptimizationOpportunities []string           `json:"optimization_opportunities"`
	Milestones                []Milestone        `json:"milestones"`
	LowConfidence             bool               `json:"low_confidence"`
	LastAnalyzed              time.Time          `json:"last_analyzed"`
}

// MilestoneType identifies the threshold kind a milestone checks
type MilestoneType string

const (
	MilestoneTypeStreakDays    MilestoneType = "streak_days"
	MilestoneTypeAdherenceRate MilestoneType = "adherence_rate"
	MilestoneTypePerfectWeek   MilestoneType = "perfect_week"
)

// Milestone is an achievement definition plus its optional achievement time.
// Achieved milestones are append-only; a milestone is never un-achieved.
type Milestone struct {
	ID           string        `json:"id"`
	Type         MilestoneType `json:"type"`
	Threshold    float64       `json:"threshold"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	AchievedDate *time.Time    `json:"achieved_date,omitempty"`
}

// MedicationInsights is the per-medication analytical summary
type MedicationInsights struct {
	UserID          string                        `json:"user_id"`
	MedicationID    string                        `json:"medication_id"`
	AdherenceRate   float64                       `json:"adherence_rate"`
	AverageLatency  float64                       `json:"average_latency_minutes"`
	BestTimes       TimeWindow                    `json:"best_times"`
	CulturalImpacts map[string]CulturalFactorRate `json:"cultural_impacts"`
	Recommendations []string                      `json:"recommendations"`
	LowConfidence   bool                          `json:"low_confidence"`
}
