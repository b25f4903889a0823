package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/eddielth/air-monitor/airquality"
)

// MemoryStorage keeps the append logs in process memory. It is used when no
// database is configured and by tests.
type MemoryStorage struct {
	mu       sync.RWMutex
	readings []airquality.SensorSample
	settings []airquality.ThresholdConfig
	fan      []airquality.ActuatorState
}

// NewMemoryStorage returns an empty store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// SaveReading implements Store
func (m *MemoryStorage) SaveReading(_ context.Context, s airquality.SensorSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, s)
	return nil
}

// LatestReading implements Store. Readings may arrive out of order, so the
// latest is the one with the greatest timestamp, later inserts winning ties.
func (m *MemoryStorage) LatestReading(_ context.Context) (*airquality.SensorSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := -1
	for i, r := range m.readings {
		if idx < 0 || !r.Timestamp.Before(m.readings[idx].Timestamp) {
			idx = i
		}
	}
	if idx < 0 {
		return nil, nil
	}
	r := m.readings[idx]
	return &r, nil
}

// ReadingHistory implements Store
func (m *MemoryStorage) ReadingHistory(_ context.Context, limit int) ([]airquality.SensorSample, error) {
	m.mu.RLock()
	sorted := make([]airquality.SensorSample, len(m.readings))
	copy(sorted, m.readings)
	m.mu.RUnlock()

	sortReadings(sorted)
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted, nil
}

// CountReadings implements Store
func (m *MemoryStorage) CountReadings(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.readings)), nil
}

// SaveSettings implements Store
func (m *MemoryStorage) SaveSettings(_ context.Context, th airquality.ThresholdConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = append(m.settings, th)
	return nil
}

// LatestSettings implements Store
func (m *MemoryStorage) LatestSettings(_ context.Context) (*airquality.ThresholdConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.settings) == 0 {
		return nil, nil
	}
	th := m.settings[len(m.settings)-1]
	return &th, nil
}

// LatestFanState implements Store
func (m *MemoryStorage) LatestFanState(_ context.Context) (*airquality.ActuatorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.fan) == 0 {
		return nil, nil
	}
	st := m.fan[len(m.fan)-1]
	return &st, nil
}

// AppendFanState implements Store
func (m *MemoryStorage) AppendFanState(_ context.Context, next airquality.ActuatorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	latestID := ""
	if n := len(m.fan); n > 0 {
		latestID = m.fan[n-1].ID
	}
	if next.PrevID != latestID {
		return ErrStaleState
	}
	m.fan = append(m.fan, next)
	return nil
}

// FanHistory returns every fan state record, oldest first
func (m *MemoryStorage) FanHistory() []airquality.ActuatorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]airquality.ActuatorState, len(m.fan))
	copy(out, m.fan)
	return out
}

// Ping implements Store
func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

// Close implements Store
func (m *MemoryStorage) Close() error {
	return nil
}

// sortReadings orders oldest first, keeping insertion order on ties
func sortReadings(rs []airquality.SensorSample) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Timestamp.Before(rs[j].Timestamp)
	})
}
