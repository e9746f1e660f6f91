package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func countFactor(windows []ConflictWindow, factor FactorType) int {
	n := 0
	for _, w := range windows {
		if w.Factor == factor {
			n++
		}
	}
	return n
}

func TestConflictWindows_DailyPrayers(t *testing.T) {
	provider := NewStaticProvider(zap.NewNop())
	monday := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	windows, err := provider.ConflictWindows(context.Background(), "default", monday)
	require.NoError(t, err)

	assert.Equal(t, 5, countFactor(windows, FactorPrayer))
	for _, w := range windows {
		if w.Factor == FactorPrayer {
			assert.Equal(t, w.Start, w.End, "prayer windows are zero-length instants")
			assert.False(t, w.Weekly)
		}
	}
}

func TestConflictWindows_FridayAddsWeeklyPrayer(t *testing.T) {
	provider := NewStaticProvider(zap.NewNop())
	friday := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Friday, friday.Weekday())

	windows, err := provider.ConflictWindows(context.Background(), "default", friday)
	require.NoError(t, err)

	assert.Equal(t, 6, countFactor(windows, FactorPrayer))

	var weekly *ConflictWindow
	for i := range windows {
		if windows[i].Weekly {
			weekly = &windows[i]
		}
	}
	require.NotNil(t, weekly, "Friday must carry the congregational window")
	assert.Equal(t, "jumuah", weekly.Name)
	assert.Equal(t, 12, weekly.Start.Hour())
	assert.Equal(t, 30, weekly.Start.Minute())
}

func TestConflictWindows_FastingPeriod(t *testing.T) {
	provider := NewStaticProvider(zap.NewNop())

	t.Run("inside the period", func(t *testing.T) {
		windows, err := provider.ConflictWindows(context.Background(), "default", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, 1, countFactor(windows, FactorFasting))

		for _, w := range windows {
			if w.Factor == FactorFasting {
				assert.Equal(t, "ramadan", w.Name)
				assert.Equal(t, 5, w.Start.Hour())
				assert.Equal(t, 19, w.End.Hour())
			}
		}
	})

	t.Run("outside the period", func(t *testing.T) {
		windows, err := provider.ConflictWindows(context.Background(), "default", time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Zero(t, countFactor(windows, FactorFasting))
	})
}

func TestConflictWindows_FestivalCoversWholeDay(t *testing.T) {
	provider := NewStaticProvider(zap.NewNop())
	eid := time.Date(2026, 3, 19, 15, 0, 0, 0, time.UTC)

	windows, err := provider.ConflictWindows(context.Background(), "default", eid)
	require.NoError(t, err)

	require.Equal(t, 1, countFactor(windows, FactorFestival))
	for _, w := range windows {
		if w.Factor == FactorFestival {
			assert.Equal(t, "eid_al_fitr", w.Name)
			assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
		}
	}
}

func TestConflictWindows_UnknownRegionFallsBack(t *testing.T) {
	provider := NewStaticProvider(zap.NewNop())

	windows, err := provider.ConflictWindows(context.Background(), "atlantis", time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 5, countFactor(windows, FactorPrayer))
}

func TestConflictWindows_CancelledContext(t *testing.T) {
	provider := NewStaticProvider(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.ConflictWindows(ctx, "default", time.Now())
	assert.Error(t, err)
}
