package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/logger"
	"github.com/eddielth/air-monitor/metrics"
)

// ErrStaleState is returned by AppendFanState when the record named by
// PrevID is no longer the latest fan state.
var ErrStaleState = errors.New("fan state changed since it was read")

// Store is the append-only persistence used by the service. Settings and fan
// state are logs: the current value is the most recent record.
type Store interface {
	SaveReading(ctx context.Context, s airquality.SensorSample) error
	// LatestReading returns nil, nil when nothing has been ingested.
	LatestReading(ctx context.Context) (*airquality.SensorSample, error)
	// ReadingHistory returns up to limit most recent readings, oldest first.
	ReadingHistory(ctx context.Context, limit int) ([]airquality.SensorSample, error)
	CountReadings(ctx context.Context) (int64, error)

	SaveSettings(ctx context.Context, th airquality.ThresholdConfig) error
	// LatestSettings returns nil, nil when no settings were stored.
	LatestSettings(ctx context.Context) (*airquality.ThresholdConfig, error)

	// LatestFanState returns nil, nil before the first decision.
	LatestFanState(ctx context.Context) (*airquality.ActuatorState, error)
	// AppendFanState appends next only if next.PrevID is the ID of the
	// latest record ("" when the log is empty), else ErrStaleState.
	AppendFanState(ctx context.Context, next airquality.ActuatorState) error

	Ping(ctx context.Context) error
	Close() error
}

// StorageBackend is a write-only archive of accepted records
type StorageBackend interface {
	// Store archives one record of the given kind
	Store(kind string, data interface{}) error
	// Close closes the backend
	Close() error
}

// Archive record kinds
const (
	KindReading  = "readings"
	KindSettings = "settings"
	KindFanState = "fan_state"
)

// Manager serves reads from the primary store and copies every accepted
// write to the archive backends. Archive failures are logged, not returned.
type Manager struct {
	Store
	backends []StorageBackend
	mutex    sync.RWMutex
}

// NewManager wraps primary with the given archives
func NewManager(primary Store, backends ...StorageBackend) *Manager {
	return &Manager{
		Store:    primary,
		backends: backends,
	}
}

// SaveReading implements Store
func (m *Manager) SaveReading(ctx context.Context, s airquality.SensorSample) error {
	if err := m.Store.SaveReading(ctx, s); err != nil {
		return err
	}
	m.archive(KindReading, s)
	return nil
}

// SaveSettings implements Store
func (m *Manager) SaveSettings(ctx context.Context, th airquality.ThresholdConfig) error {
	if err := m.Store.SaveSettings(ctx, th); err != nil {
		return err
	}
	m.archive(KindSettings, th)
	return nil
}

// AppendFanState implements Store
func (m *Manager) AppendFanState(ctx context.Context, next airquality.ActuatorState) error {
	if err := m.Store.AppendFanState(ctx, next); err != nil {
		return err
	}
	m.archive(KindFanState, next)
	return nil
}

func (m *Manager) archive(kind string, data interface{}) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, backend := range m.backends {
		if err := backend.Store(kind, data); err != nil {
			metrics.ArchiveFailures.Inc()
			logger.Error("failed to archive %s record: %v", kind, err)
		}
	}
}

// AddBackend adds an archive backend
func (m *Manager) AddBackend(backend StorageBackend) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.backends = append(m.backends, backend)
}

// Close closes the primary store and every archive backend
func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close archive backend: %v", err)
		}
	}
	return m.Store.Close()
}
