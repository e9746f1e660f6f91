package calendar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FactorType identifies the cultural factor behind a conflict window
type FactorType string

const (
	FactorPrayer   FactorType = "prayer"
	FactorFasting  FactorType = "fasting"
	FactorFestival FactorType = "festival"
)

// ConflictWindow is one interval during which dose reminders are discouraged.
// Prayer windows are returned unbuffered; the conflict analyzer applies its
// own configurable buffer around them.
type ConflictWindow struct {
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Factor FactorType `json:"factor"`
	Name   string     `json:"name"`
	// Weekly marks the high-impact weekly congregational window, which gets a
	// wider buffer and can veto a slot independently of the daily windows.
	Weekly bool `json:"weekly"`
}

// ConflictProvider supplies cultural conflict windows for a region and date
type ConflictProvider interface {
	ConflictWindows(ctx context.Context, region string, date time.Time) ([]ConflictWindow, error)
}

// clockTime is a named clock time within a day
type clockTime struct {
	Name   string
	Hour   int
	Minute int
}

// dateSpan is an inclusive calendar-date interval
type dateSpan struct {
	Name  string
	Start time.Time // midnight, location-local
	End   time.Time // midnight of the last day
}

// regionCalendar holds the static lookup tables for one region
type regionCalendar struct {
	PrayerTimes    []clockTime
	FridayPrayer   clockTime
	FastingPeriods []dateSpan
	FestivalDays   []dateSpan
	FastingStart   clockTime // daily abstention start during a fasting period
	FastingEnd     clockTime // daily abstention end
}

// StaticProvider serves conflict windows from fixed per-region tables. It
// stands in for the external calendar service in tests, the simulator, and
// deployments without a live feed.
type StaticProvider struct {
	regions map[string]regionCalendar
	logger  *zap.Logger
}

// NewStaticProvider creates a StaticProvider with the built-in region tables
func NewStaticProvider(logger *zap.Logger) *StaticProvider {
	return &StaticProvider{
		regions: builtinRegions(),
		logger:  logger,
	}
}

// builtinRegions returns the default region tables. Times follow the common
// Gulf-region schedule; a live provider would compute them astronomically.
func builtinRegions() map[string]regionCalendar {
	base := regionCalendar{
		PrayerTimes: []clockTime{
			{Name: "fajr", Hour: 5, Minute: 30},
			{Name: "dhuhr", Hour: 13, Minute: 15},
			{Name: "asr", Hour: 16, Minute: 45},
			{Name: "maghrib", Hour: 19, Minute: 30},
			{Name: "isha", Hour: 21, Minute: 0},
		},
		FridayPrayer: clockTime{Name: "jumuah", Hour: 12, Minute: 30},
		FastingPeriods: []dateSpan{
			{
				Name:  "ramadan",
				Start: time.Date(2026, time.February, 17, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC),
			},
		},
		FestivalDays: []dateSpan{
			{
				Name:  "eid_al_fitr",
				Start: time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, time.March, 21, 0, 0, 0, 0, time.UTC),
			},
			{
				Name:  "eid_al_adha",
				Start: time.Date(2026, time.May, 26, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, time.May, 29, 0, 0, 0, 0, time.UTC),
			},
		},
		FastingStart: clockTime{Name: "suhoor_end", Hour: 5, Minute: 0},
		FastingEnd:   clockTime{Name: "iftar", Hour: 19, Minute: 30},
	}

	return map[string]regionCalendar{
		"default": base,
		"gulf":    base,
	}
}

// ConflictWindows returns every conflict window active on the given date
func (p *StaticProvider) ConflictWindows(ctx context.Context, region string, date time.Time) ([]ConflictWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cal, ok := p.regions[region]
	if !ok {
		cal, ok = p.regions["default"]
		if !ok {
			return nil, fmt.Errorf("no calendar for region %q", region)
		}
		p.logger.Debug("unknown region, using default calendar",
			zap.String("region", region),
		)
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	var windows []ConflictWindow

	// Five daily prayer instants. The provider returns them as zero-length
	// windows; callers widen them with their own buffer.
	for _, pt := range cal.PrayerTimes {
		at := day.Add(time.Duration(pt.Hour)*time.Hour + time.Duration(pt.Minute)*time.Minute)
		windows = append(windows, ConflictWindow{
			Start:  at,
			End:    at,
			Factor: FactorPrayer,
			Name:   pt.Name,
		})
	}

	// Weekly congregational prayer replaces dhuhr's weight on Fridays
	if day.Weekday() == time.Friday {
		at := day.Add(time.Duration(cal.FridayPrayer.Hour)*time.Hour + time.Duration(cal.FridayPrayer.Minute)*time.Minute)
		windows = append(windows, ConflictWindow{
			Start:  at,
			End:    at,
			Factor: FactorPrayer,
			Name:   cal.FridayPrayer.Name,
			Weekly: true,
		})
	}

	// Fasting: during a fasting period the daily abstention span applies
	for _, span := range cal.FastingPeriods {
		if !day.Before(span.Start) && !day.After(span.End) {
			start := day.Add(time.Duration(cal.FastingStart.Hour)*time.Hour + time.Duration(cal.FastingStart.Minute)*time.Minute)
			end := day.Add(time.Duration(cal.FastingEnd.Hour)*time.Hour + time.Duration(cal.FastingEnd.Minute)*time.Minute)
			windows = append(windows, ConflictWindow{
				Start:  start,
				End:    end,
				Factor: FactorFasting,
				Name:   span.Name,
			})
		}
	}

	// Festivals cover the whole day
	for _, span := range cal.FestivalDays {
		if !day.Before(span.Start) && !day.After(span.End) {
			windows = append(windows, ConflictWindow{
				Start:  day,
				End:    day.Add(24 * time.Hour),
				Factor: FactorFestival,
				Name:   span.Name,
			})
		}
	}

	return windows, nil
}
