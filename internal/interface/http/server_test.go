package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type rawSource struct {
	raw []phase.RawDefinition
	err error
}

func (s rawSource) GetRawPhaseConfig(context.Context) ([]phase.RawDefinition, error) {
	return s.raw, s.err
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthz(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{Logger: logger.Discard()})

	rec, body := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.RequestID)
}

func TestReadyz(t *testing.T) {
	valid := []phase.RawDefinition{{Name: "Healing", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(15)}}
	overlapping := []phase.RawDefinition{
		{Name: "A", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(8)},
		{Name: "B", LevelMin: phase.IntBound(5), LevelMax: phase.IntBound(15)},
	}

	tests := []struct {
		name         string
		db           error
		phases       []phase.RawDefinition
		wantCode     int
		wantDegraded bool
	}{
		{name: "all healthy", phases: valid, wantCode: http.StatusOK},
		{name: "invalid phases only degrade", phases: overlapping, wantCode: http.StatusOK, wantDegraded: true},
		{name: "database down", db: errors.New("connection refused"), phases: valid, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := NewHealthChecker("test")
			health.AddCheck("database", NewPingCheck(pinger{err: tt.db}), true)
			health.AddCheck("phase_config", NewPhaseConfigCheck(rawSource{raw: tt.phases}), false)

			s := NewServer(DefaultConfig(), Dependencies{Logger: logger.Discard(), Health: health})
			rec, body := get(t, s.Handler(), "/readyz")
			assert.Equal(t, tt.wantCode, rec.Code)

			raw, err := json.Marshal(body.Data)
			require.NoError(t, err)
			var status HealthStatus
			require.NoError(t, json.Unmarshal(raw, &status))
			assert.Equal(t, tt.wantCode == http.StatusOK, status.Ready)
			assert.Equal(t, tt.wantDegraded, status.Degraded)
			assert.Len(t, status.Checks, 2)
		})
	}
}

func TestHealthChecker_PanickingCheckFails(t *testing.T) {
	health := NewHealthChecker("test")
	health.AddCheck("boom", func(context.Context) error { panic("boom") }, true)

	status := health.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "check panicked", status.Checks["boom"].Message)

	health.RemoveCheck("boom")
	assert.True(t, health.Check(context.Background()).Ready)
}

func TestStatus(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{Logger: logger.Discard()})
	rec, body := get(t, s.Handler(), "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "not_found", body.Error.Code)

	s = NewServer(DefaultConfig(), Dependencies{
		Logger: logger.Discard(),
		Status: func() any { return map[string]int{"jobs": 1} },
	})
	rec, body = get(t, s.Handler(), "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"jobs": float64(1)}, body.Data)
}

func TestShutdownWithoutStart(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{Logger: logger.Discard()})
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, s.Uptime())
}
