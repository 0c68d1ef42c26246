package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
}

func TestLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, Now: fixedNow})

	log.With(Component("engine")).Warn("override ledger unavailable", LearnerID("l-1"), Stage("override"))

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "override ledger unavailable", entry.Message)
	assert.Equal(t, "2024-05-01T10:00:00Z", entry.Timestamp)
	assert.Equal(t, "engine", entry.Fields["component"])
	assert.Equal(t, "l-1", entry.Fields["learner_id"])
	assert.Equal(t, "override", entry.Fields["stage"])
	assert.Empty(t, entry.Caller)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn, Now: fixedNow})

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Error("shown")
	assert.Contains(t, buf.String(), "shown")

	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.WithLevel(LevelDebug).Enabled(LevelInfo))
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatText, Now: fixedNow})

	log.Info("computed", EffectiveLevel(4), PhaseID("healing"))

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, "2024-05-01T10:00:00Z INFO computed effective_level=4 phase_id=healing", line)
}

func TestLogger_WithDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf, Level: LevelInfo, Now: fixedNow})

	_ = base.With(String("a", "1"))
	base.Info("plain")

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Nil(t, entry.Fields)
}

func TestLogger_Context(t *testing.T) {
	log := Discard()
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevelAndFormat(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, FormatText, ParseFormat("TEXT"))
	assert.Equal(t, FormatJSON, ParseFormat("logfmt"))
}

func TestErrField(t *testing.T) {
	assert.Nil(t, Err(nil).Value)
	assert.Equal(t, "boom", Err(errString("boom")).Value)
}

type errString string

func (e errString) Error() string { return string(e) }
