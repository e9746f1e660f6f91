package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shifahealth/adherence-backend/internal/calendar"
	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// memoryStore is an in-memory EventStore test double
type memoryStore struct {
	mu         sync.Mutex
	events     []model.DoseEvent
	profiles   map[string]*model.UserAdherenceProfile
	appendErr  error
	queryErr   error
	saveErr    error
	loadErr    error
	queryCalls int
	saveCalls  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{profiles: make(map[string]*model.UserAdherenceProfile)}
}

func (s *memoryStore) AppendEvent(ctx context.Context, event *model.DoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *memoryStore) QueryEvents(ctx context.Context, userID, medicationID string, since time.Time) ([]model.DoseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []model.DoseEvent
	for _, ev := range s.events {
		if ev.UserID != userID {
			continue
		}
		if medicationID != "" && ev.MedicationID != medicationID {
			continue
		}
		if ev.ScheduledTime.Before(since) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out, nil
}

func (s *memoryStore) SaveProfile(ctx context.Context, profile *model.UserAdherenceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *memoryStore) LoadProfile(ctx context.Context, userID string) (*model.UserAdherenceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.profiles[userID], nil
}

// stubProvider returns canned conflict windows or a fixed error
type stubProvider struct {
	windows []calendar.ConflictWindow
	err     error
}

func (p *stubProvider) ConflictWindows(ctx context.Context, region string, date time.Time) ([]calendar.ConflictWindow, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.windows, nil
}

// failingProvider is a stubProvider that always errors
func failingProvider() *stubProvider {
	return &stubProvider{err: fmt.Errorf("calendar unavailable")}
}

func testConfig() config.EngineConfig {
	return config.EngineDefaults()
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// takenEvent builds one taken-on-time event scheduled at the given instant
func takenEvent(userID string, scheduled time.Time) model.DoseEvent {
	actual := scheduled.Add(5 * time.Minute)
	delay := 5
	return model.DoseEvent{
		ID:             fmt.Sprintf("ev-%d", scheduled.Unix()),
		UserID:         userID,
		MedicationID:   "med-1",
		ScheduledTime:  scheduled,
		ActualTime:     &actual,
		Status:         model.DoseStatusTakenOnTime,
		DelayMinutes:   &delay,
		DeliveryMethod: model.DeliveryMethodPush,
		CreatedAt:      scheduled,
	}
}

// missedEvent builds one missed event scheduled at the given instant
func missedEvent(userID string, scheduled time.Time) model.DoseEvent {
	return model.DoseEvent{
		ID:             fmt.Sprintf("ev-%d", scheduled.Unix()),
		UserID:         userID,
		MedicationID:   "med-1",
		ScheduledTime:  scheduled,
		Status:         model.DoseStatusMissed,
		DeliveryMethod: model.DeliveryMethodPush,
		CreatedAt:      scheduled,
	}
}

// lateEvent builds one taken-late event with the given delay in minutes
func lateEvent(userID string, scheduled time.Time, delayMinutes int) model.DoseEvent {
	actual := scheduled.Add(time.Duration(delayMinutes) * time.Minute)
	return model.DoseEvent{
		ID:             fmt.Sprintf("ev-%d", scheduled.Unix()),
		UserID:         userID,
		MedicationID:   "med-1",
		ScheduledTime:  scheduled,
		ActualTime:     &actual,
		Status:         model.DoseStatusTakenLate,
		DelayMinutes:   &delayMinutes,
		DeliveryMethod: model.DeliveryMethodPush,
		CreatedAt:      scheduled,
	}
}

// dailyTaken builds days consecutive taken days ending the day before now
func dailyTaken(userID string, now time.Time, days int) []model.DoseEvent {
	var events []model.DoseEvent
	for i := days; i >= 1; i-- {
		scheduled := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, time.UTC).AddDate(0, 0, -i)
		events = append(events, takenEvent(userID, scheduled))
	}
	return events
}
