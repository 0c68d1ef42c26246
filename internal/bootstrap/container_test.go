package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/config"
	"github.com/auri-hub/progress-hub/internal/application/command"
	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/infrastructure/persistence/sqlite"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

const phases = `
- name: Healing
  level_min: 1
  level_max: 6
- name: Advanced Healing
  level_min: 7
  level_max: 9
- name: Channeling
  level_min: 10
  level_max: 15
`

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(phases), 0o644))

	return &config.Config{
		App:      config.AppConfig{Environment: config.EnvDevelopment},
		Database: config.DatabaseConfig{SnapshotDBPath: sqlite.MemoryPath},
		Redis:    config.RedisConfig{Disabled: true},
		Progress: config.ProgressConfig{
			PhaseSource:       config.PhaseSourceFile,
			PhaseFile:         path,
			PhaseCacheBackend: config.CacheBackendMemory,
			PhaseCacheTTL:     time.Minute,
			DefaultPhaseName:  "Healing",
		},
		Worker:        config.WorkerConfig{SnapshotRetries: 2},
		Observability: config.ObservabilityConfig{LogLevel: "debug", LogFormat: "text"},
	}
}

func TestNew_LocalWiring(t *testing.T) {
	enrolled := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timeutil.FixedClock{At: enrolled.AddDate(0, 0, 300)}

	c, err := New(context.Background(), localConfig(t), nil, nil, Options{Clock: clock})
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.SQLite)
	assert.NotNil(t, c.PhaseCache)

	out, err := c.Recompute.Handle(context.Background(), command.RecomputeProgressCommand{
		Learner: &learner.Learner{ID: "l1", EnrolledAt: enrolled},
	})
	require.NoError(t, err)
	assert.Equal(t, 300, out.Result.ActiveDays)
	assert.Equal(t, 10, out.Result.EffectiveLevel)
	assert.Equal(t, "Channeling", out.Result.EffectivePhase.Name)
	require.NotNil(t, out.Snapshot)

	latest, err := c.Snapshots.Latest(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, 10, latest.EffectiveLevel)

	assert.NoError(t, c.WatchPhaseInvalidations(context.Background()))
	assert.Nil(t, c.PhaseInvalidator())
}

func TestNew_PostgresSourceNeedsDatabase(t *testing.T) {
	cfg := localConfig(t)
	cfg.Progress.PhaseSource = config.PhaseSourcePostgres

	_, err := New(context.Background(), cfg, nil, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a database")
}

func TestNewLoggers(t *testing.T) {
	var buf bytes.Buffer
	log, slogger := NewLoggers(config.ObservabilityConfig{LogLevel: "warn", LogFormat: "text"}, &buf)

	log.Info("hidden")
	slogger.Info("hidden too")
	log.Warn("engine warning")
	slogger.Warn("scheduler warning")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "engine warning")
	assert.Contains(t, out, "scheduler warning")
}
