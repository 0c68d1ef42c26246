package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

func TestGetOverrideHistory(t *testing.T) {
	revokedAt := onDay(5)
	ledger := &stubOverrides{history: []level.Override{
		{ID: "a", Operator: level.OperatorSet, Value: 3, CreatedAt: onDay(1), RevokedAt: &revokedAt},
		{ID: "c", Operator: level.OperatorAdd, Value: 1, CreatedAt: onDay(9)},
		{ID: "b", Operator: level.OperatorMin, Value: 5, CreatedAt: onDay(4)},
	}}
	h := NewGetOverrideHistoryHandler(ledger)

	res, err := h.Handle(context.Background(), GetOverrideHistoryQuery{ContactKey: "ana@example.com"})
	require.NoError(t, err)

	require.NotNil(t, res.Active)
	assert.Equal(t, "c", res.Active.ID)
	assert.Equal(t, 1, res.RevokedCount)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "c", res.Entries[0].ID)
	assert.Equal(t, "b", res.Entries[1].ID)
	assert.Equal(t, "ana@example.com", ledger.gotKey.ContactKey)

	withRevoked, err := h.Handle(context.Background(), GetOverrideHistoryQuery{LearnerID: "l1", IncludeRevoked: true})
	require.NoError(t, err)
	assert.Len(t, withRevoked.Entries, 3)
	assert.Equal(t, "a", withRevoked.Entries[2].ID)
}

func TestGetOverrideHistory_Errors(t *testing.T) {
	h := NewGetOverrideHistoryHandler(&stubOverrides{err: errors.New("db down")})

	_, err := h.Handle(context.Background(), GetOverrideHistoryQuery{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = h.Handle(context.Background(), GetOverrideHistoryQuery{LearnerID: "l1"})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.True(t, shared.IsRetryable(err))
}

func TestCheckPhaseConfig(t *testing.T) {
	h := NewCheckPhaseConfigHandler(phase.StaticSource{
		{Name: "Healing", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(6)},
		{Name: "Channeling", LevelMin: phase.IntBound(10), LevelMax: phase.IntBound(15)},
	})

	report, err := h.Handle(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	assert.Len(t, report.Phases, 2)
	assert.Equal(t, []int{7, 8, 9}, report.CoverageGaps)
	assert.False(t, report.HasCatchAll)
	assert.False(t, report.FullyCovered())
}

func TestCheckPhaseConfig_Invalid(t *testing.T) {
	report := CheckPhaseConfig([]phase.RawDefinition{
		{Name: "Alpha", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(8)},
		{Name: "Beta", LevelMin: phase.IntBound(5), LevelMax: phase.IntBound(15)},
	})

	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "Alpha")
	assert.Contains(t, report.Errors[0], "Beta")
	assert.Empty(t, report.Phases)
	assert.False(t, report.FullyCovered())
}

func TestCheckPhaseConfigValue(t *testing.T) {
	report := CheckPhaseConfigValue([]any{
		map[string]any{"name": "Healing", "level_min": 1, "level_max": 9},
		map[string]any{"name": "healing ", "level_min": 10, "level_max": 14},
		map[string]any{"name": "Rest"},
	})

	require.True(t, report.Valid, report.Errors)
	assert.True(t, report.HasCatchAll)
	assert.True(t, report.FullyCovered())
	assert.Equal(t, []int{15}, report.CoverageGaps)
	require.Len(t, report.Collisions, 1)
	assert.Equal(t, "healing", report.Collisions[0].ID)
}

func TestCheckPhaseConfig_SourceError(t *testing.T) {
	h := NewCheckPhaseConfigHandler(phase.SourceFunc(func(context.Context) ([]phase.RawDefinition, error) {
		return nil, context.DeadlineExceeded
	}))

	_, err := h.Handle(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestSimulateLevel(t *testing.T) {
	res, err := SimulateLevel(SimulateLevelQuery{ActiveDays: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, res.BaseLevel)
	assert.Equal(t, 2, res.EffectiveLevel)
	assert.Equal(t, 10, res.DaysToNext)
	assert.True(t, res.HasNext)
	assert.Equal(t, level.CategoryHealing, res.Category)

	res, err = SimulateLevel(SimulateLevelQuery{ActiveDays: 50, Operator: level.OperatorAdd, Value: 1000})
	require.NoError(t, err)
	assert.Equal(t, 15, res.EffectiveLevel)
	assert.Equal(t, "Channeling - Level 15", res.LevelName)

	res, err = SimulateLevel(SimulateLevelQuery{ActiveDays: 5000})
	require.NoError(t, err)
	assert.Equal(t, 15, res.BaseLevel)
	assert.False(t, res.HasNext)

	res, err = SimulateLevel(SimulateLevelQuery{ActiveDays: -4})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ActiveDays)
	assert.Equal(t, 1, res.BaseLevel)

	_, err = SimulateLevel(SimulateLevelQuery{ActiveDays: 10, Operator: "MAX", Value: 3})
	assert.Error(t, err)
}
