package engine

import (
	"context"
	"time"

	"github.com/shifahealth/adherence-backend/internal/calendar"
	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// Cultural factor keys used in impact maps
const (
	FactorKeyPrayer              = "prayer_time_conflict"
	FactorKeyFasting             = "fasting_period"
	FactorKeyFestival            = "festival_day"
	FactorKeyTraditionalMedicine = "traditional_medicine_conflict"
)

// ReminderSlot is the outcome of a conflict-aware slot search
type ReminderSlot struct {
	Time time.Time `json:"time"`
	// NoAlternativeFound is set when every candidate within the search bound
	// fell inside a prayer buffer; Time then carries the original request
	// unchanged. Callers decide how to surface this.
	NoAlternativeFound bool `json:"no_alternative_found"`
}

// ConflictAnalyzer annotates instants with cultural context and measures the
// adherence impact of each cultural factor.
type ConflictAnalyzer struct {
	provider calendar.ConflictProvider
	cfg      config.EngineConfig
	logger   *zap.Logger
}

// NewConflictAnalyzer creates a new ConflictAnalyzer
func NewConflictAnalyzer(provider calendar.ConflictProvider, cfg config.EngineConfig, logger *zap.Logger) *ConflictAnalyzer {
	return &ConflictAnalyzer{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// ContextFor returns the cultural context active at the given instant.
// Calendar failures degrade to an unknown context rather than blocking the
// caller.
func (a *ConflictAnalyzer) ContextFor(ctx context.Context, region string, at time.Time) model.CulturalContext {
	windows, err := a.provider.ConflictWindows(ctx, region, at)
	if err != nil {
		a.logger.Warn("calendar provider unavailable, cultural context unknown",
			zap.Error(err),
			zap.String("region", region),
		)
		return model.CulturalContext{Unknown: true}
	}

	var cc model.CulturalContext
	for _, w := range windows {
		switch w.Factor {
		case calendar.FactorPrayer:
			if a.inBuffered(at, w) {
				cc.PrayerTimeConflict = true
			}
		case calendar.FactorFasting:
			if !at.Before(w.Start) && !at.After(w.End) {
				cc.FastingPeriod = true
			}
		case calendar.FactorFestival:
			if !at.Before(w.Start) && at.Before(w.End) {
				cc.FestivalDay = true
			}
		}
	}
	return cc
}

// inBuffered reports whether the instant falls inside the window once the
// configured buffer is applied. The weekly congregational window carries the
// wider buffer.
func (a *ConflictAnalyzer) inBuffered(at time.Time, w calendar.ConflictWindow) bool {
	buffer := a.cfg.PrayerBuffer
	if w.Weekly {
		buffer = a.cfg.FridayBuffer
	}
	return !at.Before(w.Start.Add(-buffer)) && !at.After(w.End.Add(buffer))
}

// FactorImpacts computes, for each cultural factor, the adherence rate among
// flagged events and the signed impact against unflagged events. Negative
// impact means the factor correlates with worse adherence.
func (a *ConflictAnalyzer) FactorImpacts(events []model.DoseEvent) map[string]model.CulturalFactorRate {
	type split struct {
		inTaken, inTotal   int
		outTaken, outTotal int
	}
	splits := map[string]*split{
		FactorKeyPrayer:              {},
		FactorKeyFasting:             {},
		FactorKeyFestival:            {},
		FactorKeyTraditionalMedicine: {},
	}

	flagged := func(cc model.CulturalContext, key string) bool {
		switch key {
		case FactorKeyPrayer:
			return cc.PrayerTimeConflict
		case FactorKeyFasting:
			return cc.FastingPeriod
		case FactorKeyFestival:
			return cc.FestivalDay
		default:
			return cc.TraditionalMedicineConflict
		}
	}

	for _, ev := range events {
		// Events recorded while the calendar was down carry no usable flags
		if ev.CulturalContext.Unknown {
			continue
		}
		taken := ev.Status.TakenEquivalent()
		for key, s := range splits {
			if flagged(ev.CulturalContext, key) {
				s.inTotal++
				if taken {
					s.inTaken++
				}
			} else {
				s.outTotal++
				if taken {
					s.outTaken++
				}
			}
		}
	}

	impacts := make(map[string]model.CulturalFactorRate, len(splits))
	for key, s := range splits {
		var inRate, outRate float64
		if s.inTotal > 0 {
			inRate = float64(s.inTaken) / float64(s.inTotal)
		}
		if s.outTotal > 0 {
			outRate = float64(s.outTaken) / float64(s.outTotal)
		}
		fr := model.CulturalFactorRate{Rate: inRate, SampleCount: s.inTotal}
		if s.inTotal > 0 && s.outTotal > 0 {
			fr.Impact = inRate - outRate
		}
		impacts[key] = fr
	}
	return impacts
}

// Indicators derives the heuristic cultural indicators from event flags.
// These are flag-frequency ratios, not validated clinical signals; the risk
// model only reads them through a configurable threshold.
func (a *ConflictAnalyzer) Indicators(events []model.DoseEvent) model.CulturalFactors {
	factors := model.CulturalFactors{
		// No event field carries family data; the indicator stays neutral
		// and only the suggestion table reads it.
		FamilyInfluenceIndicator: 0.5,
	}
	if len(events) == 0 {
		return factors
	}

	var religious, traditional, known int
	for _, ev := range events {
		if ev.CulturalContext.Unknown {
			continue
		}
		known++
		if ev.CulturalContext.PrayerTimeConflict || ev.CulturalContext.FastingPeriod {
			religious++
		}
		if ev.CulturalContext.TraditionalMedicineConflict {
			traditional++
		}
	}
	if known == 0 {
		return factors
	}
	factors.ReligiosityIndicator = float64(religious) / float64(known)
	factors.TraditionalMedicineBias = float64(traditional) / float64(known)
	return factors
}

// ResolveReminderSlot moves a proposed reminder time out of prayer buffers by
// searching outward in fixed increments within the allowed daily range. When
// no candidate clears every buffer the original time comes back unchanged
// with NoAlternativeFound set; the request is never silently dropped.
func (a *ConflictAnalyzer) ResolveReminderSlot(ctx context.Context, region string, proposed time.Time) ReminderSlot {
	windows, err := a.provider.ConflictWindows(ctx, region, proposed)
	if err != nil {
		a.logger.Warn("calendar provider unavailable, keeping proposed slot",
			zap.Error(err),
			zap.String("region", region),
		)
		return ReminderSlot{Time: proposed}
	}

	var prayers []calendar.ConflictWindow
	for _, w := range windows {
		if w.Factor == calendar.FactorPrayer {
			prayers = append(prayers, w)
		}
	}

	inAnyBuffer := func(t time.Time) bool {
		for _, w := range prayers {
			if a.inBuffered(t, w) {
				return true
			}
		}
		return false
	}

	if !inAnyBuffer(proposed) {
		return ReminderSlot{Time: proposed}
	}

	for offset := a.cfg.SlotSearchStep; offset <= a.cfg.SlotSearchBound; offset += a.cfg.SlotSearchStep {
		for _, candidate := range []time.Time{proposed.Add(offset), proposed.Add(-offset)} {
			if !a.withinDayRange(candidate) {
				continue
			}
			if !inAnyBuffer(candidate) {
				a.logger.Debug("reminder slot shifted",
					zap.Time("proposed", proposed),
					zap.Time("resolved", candidate),
				)
				return ReminderSlot{Time: candidate}
			}
		}
	}

	a.logger.Warn("no conflict-free reminder slot within search bound",
		zap.Time("proposed", proposed),
		zap.String("region", region),
	)
	return ReminderSlot{Time: proposed, NoAlternativeFound: true}
}

// withinDayRange checks the allowed daily reminder range
func (a *ConflictAnalyzer) withinDayRange(t time.Time) bool {
	h := t.Hour()
	if h < a.cfg.DayStartHour {
		return false
	}
	if h > a.cfg.DayEndHour || (h == a.cfg.DayEndHour && (t.Minute() > 0 || t.Second() > 0)) {
		return false
	}
	return true
}
