package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/air-monitor/airquality"
)

func TestMemoryStorage_Readings(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	latest, err := m.LatestReading(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, m.SaveReading(ctx, airquality.SensorSample{CO2: 500, Timestamp: t0.Add(2 * time.Minute)}))
	require.NoError(t, m.SaveReading(ctx, airquality.SensorSample{CO2: 400, Timestamp: t0}))
	require.NoError(t, m.SaveReading(ctx, airquality.SensorSample{CO2: 450, Timestamp: t0.Add(time.Minute)}))

	latest, err = m.LatestReading(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500.0, latest.CO2)

	history, err := m.ReadingHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 450.0, history[0].CO2)
	assert.Equal(t, 500.0, history[1].CO2)

	n, err := m.CountReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryStorage_CompareAndAppend(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	require.NoError(t, m.AppendFanState(ctx, airquality.ActuatorState{ID: "a", Desired: false}))
	assert.ErrorIs(t, m.AppendFanState(ctx, airquality.ActuatorState{ID: "x", Desired: true}), ErrStaleState)

	require.NoError(t, m.AppendFanState(ctx, airquality.ActuatorState{ID: "b", PrevID: "a", Desired: true}))
	assert.ErrorIs(t, m.AppendFanState(ctx, airquality.ActuatorState{ID: "c", PrevID: "a", Desired: true}), ErrStaleState)

	latest, err := m.LatestFanState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)
	assert.Len(t, m.FanHistory(), 2)
}

func TestMemoryStorage_ConcurrentAppendsAcceptOne(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()
	require.NoError(t, m.AppendFanState(ctx, airquality.ActuatorState{ID: "genesis"}))

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- m.AppendFanState(ctx, airquality.ActuatorState{ID: string(rune('a' + i)), PrevID: "genesis", Desired: true})
		}(i)
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, ErrStaleState)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Len(t, m.FanHistory(), 2)
}

func TestMemoryStorage_SettingsLatestWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	got, err := m.LatestSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := airquality.DefaultThresholds()
	second := airquality.DefaultThresholds()
	second.Mode = airquality.ModeManual
	require.NoError(t, m.SaveSettings(ctx, first))
	require.NoError(t, m.SaveSettings(ctx, second))

	got, err = m.LatestSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, airquality.ModeManual, got.Mode)
}

type failingBackend struct{ calls int }

func (f *failingBackend) Store(string, interface{}) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingBackend) Close() error { return nil }

func TestManager_ArchivesAcceptedWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	files, err := NewFileStorage(dir)
	require.NoError(t, err)
	broken := &failingBackend{}

	m := NewManager(NewMemoryStorage(), files)
	m.AddBackend(broken)

	require.NoError(t, m.SaveReading(ctx, airquality.SensorSample{CO2: 410}))
	require.NoError(t, m.AppendFanState(ctx, airquality.ActuatorState{ID: "a", Desired: true}))
	assert.ErrorIs(t, m.AppendFanState(ctx, airquality.ActuatorState{ID: "b", PrevID: "zzz"}), ErrStaleState)

	readings, err := filepath.Glob(filepath.Join(dir, KindReading, "*.json"))
	require.NoError(t, err)
	assert.Len(t, readings, 1)

	states, err := filepath.Glob(filepath.Join(dir, KindFanState, "*.json"))
	require.NoError(t, err)
	require.Len(t, states, 1)

	raw, err := os.ReadFile(states[0])
	require.NoError(t, err)
	var archived airquality.ActuatorState
	require.NoError(t, json.Unmarshal(raw, &archived))
	assert.Equal(t, "a", archived.ID)

	assert.Equal(t, 2, broken.calls)
	assert.NoError(t, m.Close())
}
