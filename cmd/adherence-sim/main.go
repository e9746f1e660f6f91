// Command adherence-sim runs the analysis pipeline against a synthetic event
// history without a database, for smoke-testing engine changes locally.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shifahealth/adherence-backend/internal/calendar"
	"github.com/shifahealth/adherence-backend/internal/config"
	"github.com/shifahealth/adherence-backend/internal/engine"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// memStore is an in-memory EventStore for simulation runs
type memStore struct {
	mu       sync.Mutex
	events   []model.DoseEvent
	profiles map[string]*model.UserAdherenceProfile
}

func newMemStore() *memStore {
	return &memStore{
		profiles: make(map[string]*model.UserAdherenceProfile),
	}
}

func (s *memStore) AppendEvent(ctx context.Context, event *model.DoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *memStore) QueryEvents(ctx context.Context, userID, medicationID string, since time.Time) ([]model.DoseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

func (s *memStore) SaveProfile(ctx context.Context, profile *model.UserAdherenceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *memStore) LoadProfile(ctx context.Context, userID string) (*model.UserAdherenceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID], nil
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.EngineDefaults()
	store := newMemStore()
	provider := calendar.NewStaticProvider(logger)

	analyzer := engine.NewConflictAnalyzer(provider, cfg, logger)
	calculator := engine.NewCalculator(cfg, logger)
	detector := engine.NewPatternDetector(cfg, logger)
	predictor := engine.NewRiskPredictor(analyzer, cfg, logger)
	insightGen := engine.NewInsightGenerator(cfg, logger)
	cache := engine.NewProfileCache(cfg.CacheTTL)

	analytics := engine.NewAnalyticsService(store, cache, calculator, analyzer, detector, predictor, insightGen, cfg, logger)
	recorder := engine.NewRecorder(store, analyzer, analytics, cfg, logger)

	ctx := context.Background()
	userID := uuid.New().String()
	medicationID := uuid.New().String()

	seed(ctx, recorder, userID, medicationID, cfg)

	profile, err := analytics.Profile(ctx, userID)
	if err != nil {
		logger.Fatal("failed to compute profile", zap.Error(err))
	}

	nextDose := time.Now().Add(24 * time.Hour)
	prediction, err := analytics.PredictRisk(ctx, userID, medicationID, nextDose, "default")
	if err != nil {
		logger.Fatal("failed to predict risk", zap.Error(err))
	}

	fmt.Println("=== Adherence profile ===")
	dump(profile)
	fmt.Println("=== Risk prediction for next dose ===")
	dump(prediction)
}

// seed records 28 days of one-dose-a-day history with realistic noise: most
// doses on time, some late, a few missed, occasional skips.
func seed(ctx context.Context, recorder *engine.Recorder, userID, medicationID string, cfg config.EngineConfig) {
	rng := rand.New(rand.NewSource(42))
	now := time.Now()

	for day := 28; day >= 1; day-- {
		scheduled := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, time.Local).AddDate(0, 0, -day)

		in := engine.RecordInput{
			UserID:         userID,
			MedicationID:   medicationID,
			ScheduledTime:  scheduled,
			DeliveryMethod: model.DeliveryMethodPush,
		}

		switch roll := rng.Float64(); {
		case roll < 0.70:
			actual := scheduled.Add(time.Duration(rng.Intn(20)) * time.Minute)
			in.ActualTime = &actual
		case roll < 0.85:
			actual := scheduled.Add(cfg.LateThreshold + time.Duration(rng.Intn(90))*time.Minute)
			in.ActualTime = &actual
		case roll < 0.95:
			// missed: no actual time
		default:
			in.Skipped = true
		}

		if _, err := recorder.Record(ctx, in); err != nil {
			fmt.Fprintf(os.Stderr, "failed to record seed event: %v\n", err)
			os.Exit(1)
		}
	}
}

func dump(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
