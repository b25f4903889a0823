package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/config"
	"github.com/eddielth/air-monitor/evaluator"
	"github.com/eddielth/air-monitor/storage"
)

type testEnv struct {
	store   *storage.MemoryStorage
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStorage()
	return &testEnv{store: store, handler: newHandler(store)}
}

func newHandler(store storage.Store) http.Handler {
	ev := evaluator.New(store, 30*time.Second)
	in := evaluator.NewIngestor(store, ev)
	return NewServer(config.HTTPConfig{Addr: ":0"}, store, ev, in).Handler()
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type dataResponse[T any] struct {
	OK    bool   `json:"ok"`
	Data  T      `json:"data"`
	Error string `json:"error"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[healthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.Database.Connected)
	assert.Equal(t, int64(0), resp.Stats["total_readings"])
}

type unreachableStore struct {
	*storage.MemoryStorage
}

func (u unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealth_Unavailable(t *testing.T) {
	mem := storage.NewMemoryStorage()
	env := &testEnv{store: mem, handler: newHandler(unreachableStore{mem})}

	rec := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decode[healthResponse](t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.False(t, resp.Database.Connected)
	assert.Contains(t, resp.Database.Error, "connection refused")
}

func TestIngestAndLatest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/sensor/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": null}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/sensor/ingest", `{"co2": 820, "co": 1.2, "dust": 40, "ts": "2025-03-01T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/sensor/latest", "")
	latest := decode[dataResponse[airquality.SensorSample]](t, rec)
	assert.Equal(t, 820.0, latest.Data.CO2)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), latest.Data.Timestamp)
}

func TestIngest_DefaultsTimestamp(t *testing.T) {
	env := newTestEnv(t)
	before := time.Now().UTC().Add(-time.Second)

	rec := env.do(t, http.MethodPost, "/api/sensor/ingest", `{"co2": 500, "co": 0.2, "dust": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	latest, err := env.store.LatestReading(context.Background())
	require.NoError(t, err)
	assert.True(t, latest.Timestamp.After(before))
}

func TestIngest_Rejects(t *testing.T) {
	tests := map[string]string{
		"malformed":    `{"co2": `,
		"missing dust": `{"co2": 500, "co": 0.2}`,
		"not a number": `{"co2": "lots", "co": 0.2, "dust": 10}`,
		"out of range": `{"co2": 500, "co": -3, "dust": 10}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/sensor/ingest", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			n, err := env.store.CountReadings(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		require.NoError(t, env.store.SaveReading(ctx, airquality.SensorSample{CO2: float64(400 + i), Timestamp: t0.Add(time.Duration(i) * time.Minute)}))
	}

	rec := env.do(t, http.MethodGet, "/api/sensor/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[dataResponse[[]airquality.SensorSample]](t, rec)
	require.Len(t, history.Data, defaultHistoryLimit)
	assert.Equal(t, 406.0, history.Data[0].CO2)
	assert.Equal(t, 429.0, history.Data[len(history.Data)-1].CO2)

	rec = env.do(t, http.MethodGet, "/api/sensor/history?limit=5", "")
	history = decode[dataResponse[[]airquality.SensorSample]](t, rec)
	assert.Len(t, history.Data, 5)

	rec = env.do(t, http.MethodGet, "/api/sensor/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/sensor/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/sensor/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": []}`, rec.Body.String())
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[dataResponse[airquality.ThresholdConfig]](t, rec)
	assert.Equal(t, airquality.DefaultCO2Moderate, got.Data.CO2Moderate)
	assert.Equal(t, airquality.ModeAuto, got.Data.Mode)

	rec = env.do(t, http.MethodPost, "/api/settings", `{"mode": "manual", "threshold_co2_poor": 1200}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/settings", "")
	got = decode[dataResponse[airquality.ThresholdConfig]](t, rec)
	assert.Equal(t, airquality.ModeManual, got.Data.Mode)
	assert.Equal(t, 1200.0, got.Data.CO2Poor)
	assert.Equal(t, airquality.DefaultDustPoor, got.Data.DustPoor)
}

func TestSettings_UnknownModeIsAuto(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/settings", `{"mode": "turbo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	th, err := env.store.LatestSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, airquality.ModeAuto, th.Mode)
}

func TestSettings_Rejects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/settings", `{"threshold_co2_moderate": 1500, "threshold_co2_poor": 1000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[dataResponse[any]](t, rec).Error, "below moderate")

	rec = env.do(t, http.MethodPost, "/api/settings", `{"threshold_dust_moderate": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	th, err := env.store.LatestSettings(context.Background())
	require.NoError(t, err)
	assert.Nil(t, th)
}

func TestFanState(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/fan/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[dataResponse[airquality.ActuatorState]](t, rec)
	assert.False(t, st.Data.Desired)

	rec = env.do(t, http.MethodPost, "/api/fan/state", `{"desired": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cmd := decode[dataResponse[airquality.ActuatorState]](t, rec)
	assert.True(t, cmd.OK)
	assert.Equal(t, airquality.SourceManual, cmd.Data.Source)

	rec = env.do(t, http.MethodGet, "/api/fan/state", "")
	st = decode[dataResponse[airquality.ActuatorState]](t, rec)
	assert.True(t, st.Data.Desired)
	assert.Equal(t, cmd.Data.ID, st.Data.ID)

	rec = env.do(t, http.MethodPost, "/api/fan/state", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationsAndEvaluate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode[notificationsResponse](t, rec)
	assert.Empty(t, empty.Data)
	assert.Equal(t, airquality.StatusUnknown, empty.Status.Overall)

	require.NoError(t, env.store.SaveReading(context.Background(), airquality.SensorSample{CO2: 1200, CO: 1, Dust: 50, Timestamp: time.Now().UTC()}))

	rec = env.do(t, http.MethodGet, "/api/notifications", "")
	resp := decode[notificationsResponse](t, rec)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, airquality.PollutantCO2, resp.Data[0].Pollutant)
	assert.Equal(t, airquality.LevelHigh, resp.Data[0].Level)
	assert.Equal(t, airquality.StatusPoor, resp.Status.Overall)

	rec = env.do(t, http.MethodPost, "/api/evaluate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decode[dataResponse[evaluator.Evaluation]](t, rec)
	assert.True(t, ev.Data.Persisted)
	assert.True(t, ev.Data.State.Desired)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/fan/state", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/health", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
