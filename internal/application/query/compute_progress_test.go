package query

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/pkg/logger"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

var enrolledAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func onDay(n int) time.Time { return enrolledAt.AddDate(0, 0, n) }

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type stubPauses struct {
	intervals []learner.PauseInterval
	err       error
}

func (s *stubPauses) ListPauseIntervals(context.Context, string, *time.Time) ([]learner.PauseInterval, error) {
	return s.intervals, s.err
}

type stubOverrides struct {
	active  *level.Override
	history []level.Override
	err     error
	gotKey  learner.Key
}

func (s *stubOverrides) GetActiveOverride(_ context.Context, key learner.Key) (*level.Override, error) {
	s.gotKey = key
	return s.active, s.err
}

func (s *stubOverrides) History(_ context.Context, key learner.Key) ([]level.Override, error) {
	s.gotKey = key
	return s.history, s.err
}

type panickingSource struct{}

func (panickingSource) GetRawPhaseConfig(context.Context) ([]phase.RawDefinition, error) {
	panic("corrupted cache entry")
}

func standardPhases() phase.StaticSource {
	return phase.StaticSource{
		{Name: "Healing", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(6)},
		{Name: "Advanced Healing", LevelMin: phase.IntBound(7), LevelMax: phase.IntBound(9)},
		{Name: "Channeling", LevelMin: phase.IntBound(10), LevelMax: phase.IntBound(15)},
	}
}

type engineFixture struct {
	pauses    *stubPauses
	overrides *stubOverrides
	phases    phase.Source
	logs      *bytes.Buffer
}

func newFixture() *engineFixture {
	return &engineFixture{
		pauses:    &stubPauses{},
		overrides: &stubOverrides{},
		phases:    standardPhases(),
		logs:      &bytes.Buffer{},
	}
}

func (f *engineFixture) handler() *ComputeProgressHandler {
	log := logger.New(logger.Options{Output: f.logs, Level: logger.LevelDebug, Format: logger.FormatText})
	return NewComputeProgressHandler(
		learner.NewActiveDaysCalculator(f.pauses),
		f.overrides,
		f.phases,
		timeutil.FixedClock{At: onDay(50)},
		DefaultComputeProgressConfig(),
		log,
	)
}

func activeLearner() *learner.Learner {
	return &learner.Learner{ID: "l1", ContactKey: "ana@example.com", EnrolledAt: enrolledAt, Subscription: learner.SubscriptionActive}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scenarios
// ─────────────────────────────────────────────────────────────────────────────

func TestComputeProgress_NoOverride(t *testing.T) {
	f := newFixture()

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 50, r.ActiveDays)
	assert.Equal(t, 0, r.PausedDays)
	assert.Equal(t, 2, r.BaseLevel)
	assert.Equal(t, 2, r.EffectiveLevel)
	assert.Equal(t, "Healing - Level 2", r.LevelName)
	assert.Equal(t, phase.EffectivePhase{ID: "healing", Name: "Healing"}, r.EffectivePhase)
	assert.NotNil(t, r.AppliedOverrides)
	assert.Empty(t, r.AppliedOverrides)
	assert.Equal(t, "base_level=2 (no overrides)", r.DebugReason)
	assert.Equal(t, learner.Key{LearnerID: "l1", ContactKey: "ana@example.com"}, f.overrides.gotKey)
}

func TestComputeProgress_SetOverride(t *testing.T) {
	f := newFixture()
	f.overrides.active = &level.Override{ID: "o1", Operator: level.OperatorSet, Value: 10, Reason: "mentor review"}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 2, r.BaseLevel)
	assert.Equal(t, 10, r.EffectiveLevel)
	assert.Equal(t, "channeling", r.EffectivePhase.ID)
	require.Len(t, r.AppliedOverrides, 1)
	assert.Equal(t, level.OperatorSet, r.AppliedOverrides[0].Operator)
	assert.Equal(t, "mentor review", r.AppliedOverrides[0].Reason)
	assert.Equal(t, "base_level=2, override=SET+10", r.DebugReason)
}

func TestComputeProgress_AddOverride(t *testing.T) {
	f := newFixture()
	f.overrides.active = &level.Override{ID: "o1", Operator: level.OperatorAdd, Value: 2}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 4, r.EffectiveLevel)
	assert.Equal(t, "Healing - Level 4", r.LevelName)
}

func TestComputeProgress_OverrideAlwaysClamped(t *testing.T) {
	cases := []struct {
		op    level.Operator
		value int
		want  int
	}{
		{level.OperatorAdd, 1000, 15},
		{level.OperatorAdd, -1000, 1},
		{level.OperatorSet, -50, 1},
		{level.OperatorSet, 99, 15},
		{level.OperatorMin, 40, 15},
		{level.OperatorMin, -3, 2},
	}
	for _, tc := range cases {
		f := newFixture()
		f.overrides.active = &level.Override{ID: "o", Operator: tc.op, Value: tc.value}

		r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

		assert.Equal(t, tc.want, r.EffectiveLevel, "%s %d", tc.op, tc.value)
	}
}

func TestComputeProgress_FrozenWhilePaused(t *testing.T) {
	f := newFixture()
	f.pauses.intervals = []learner.PauseInterval{{ID: "p1", LearnerID: "l1", StartedAt: onDay(30)}}
	l := activeLearner()
	l.Subscription = learner.SubscriptionPaused

	at80 := f.handler().ComputeProgress(context.Background(), l, onDay(80))
	at200 := f.handler().ComputeProgress(context.Background(), l, onDay(200))

	assert.Equal(t, 30, at80.ActiveDays)
	assert.Equal(t, 0, at80.PausedDays)
	assert.Equal(t, at80, at200)
}

func TestComputeProgress_PhaseNoCoverageFallsBackToDefault(t *testing.T) {
	f := newFixture()
	f.phases = phase.StaticSource{
		{Name: "A", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(6)},
		{Name: "B", LevelMin: phase.IntBound(10), LevelMax: phase.IntBound(15)},
	}
	f.overrides.active = &level.Override{ID: "o1", Operator: level.OperatorSet, Value: 8}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, phase.EffectivePhase{ID: "healing", Name: "Healing", Reason: "level_8_no_coverage"}, r.EffectivePhase)
	assert.Contains(t, r.DebugReason, "level_8_no_coverage")
	assert.Contains(t, f.logs.String(), "phase config has no coverage for level")
}

func TestComputeProgress_CatchAllPhase(t *testing.T) {
	f := newFixture()
	f.phases = phase.StaticSource{
		{Name: "A", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(6)},
		{Name: "B", LevelMin: phase.IntBound(10), LevelMax: phase.IntBound(15)},
		{Name: "C"},
	}
	f.overrides.active = &level.Override{ID: "o1", Operator: level.OperatorSet, Value: 8}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, "C", r.EffectivePhase.Name)
	assert.Empty(t, r.EffectivePhase.Reason)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fail-open
// ─────────────────────────────────────────────────────────────────────────────

func TestComputeProgress_MissingIdentity(t *testing.T) {
	f := newFixture()
	h := f.handler()

	for _, l := range []*learner.Learner{nil, {EnrolledAt: enrolledAt}, {ID: "  "}} {
		r := h.ComputeProgress(context.Background(), l, onDay(50))

		assert.Equal(t, progress.Fallback("Healing", progress.DebugMissingIdentity), r)
	}
	assert.Contains(t, f.logs.String(), "progress requested for learner without identity")
}

func TestComputeProgress_OverrideLedgerUnavailable(t *testing.T) {
	f := newFixture()
	f.overrides.err = errors.New("connection refused")

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 2, r.EffectiveLevel)
	assert.Empty(t, r.AppliedOverrides)
	assert.Equal(t, "base_level=2 (no overrides); override: ledger unavailable", r.DebugReason)
	assert.Contains(t, f.logs.String(), "WARN")
}

func TestComputeProgress_UnknownOperatorIgnored(t *testing.T) {
	f := newFixture()
	f.overrides.active = &level.Override{ID: "o9", Operator: level.Operator("MAX"), Value: 12}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 2, r.EffectiveLevel)
	assert.Empty(t, r.AppliedOverrides)
	assert.Equal(t, "base_level=2, override=MAX+12 ignored", r.DebugReason)
	assert.Contains(t, f.logs.String(), "unknown_override_operator")
}

func TestComputeProgress_RevokedOverrideIgnored(t *testing.T) {
	f := newFixture()
	revoked := onDay(10)
	f.overrides.active = &level.Override{ID: "o1", Operator: level.OperatorSet, Value: 12, RevokedAt: &revoked}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 2, r.EffectiveLevel)
	assert.Contains(t, f.logs.String(), "revoked_override_active")
}

func TestComputeProgress_InvalidPhaseConfig(t *testing.T) {
	f := newFixture()
	f.phases = phase.StaticSource{
		{Name: "Alpha", LevelMin: phase.IntBound(1), LevelMax: phase.IntBound(6)},
		{Name: "Beta", LevelMin: phase.IntBound(6), LevelMax: phase.IntBound(10)},
		{Name: "Rest"},
	}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, phase.Unknown(phase.ReasonInvalidConfig), r.EffectivePhase)
	assert.Equal(t, 2, r.EffectiveLevel)
	assert.Contains(t, f.logs.String(), "ERROR")
	assert.Contains(t, f.logs.String(), "Alpha")
}

func TestComputeProgress_PhaseConfigUnavailable(t *testing.T) {
	f := newFixture()
	f.phases = phase.SourceFunc(func(context.Context) ([]phase.RawDefinition, error) {
		return nil, errors.New("timeout")
	})

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, phase.Unknown(phase.ReasonConfigUnavailable), r.EffectivePhase)
	assert.Equal(t, "base_level=2 (no overrides); phase: config_unavailable", r.DebugReason)
}

func TestComputeProgress_EmptyPhaseConfigIsInvalid(t *testing.T) {
	f := newFixture()
	f.phases = phase.StaticSource{}

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, phase.Unknown(phase.ReasonInvalidConfig), r.EffectivePhase)
}

func TestComputeProgress_PauseLedgerUnavailable(t *testing.T) {
	f := newFixture()
	f.pauses.err = errors.New("db down")

	r := f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 50, r.ActiveDays)
	assert.Equal(t, 0, r.PausedDays)
	assert.Contains(t, r.DebugReason, "active_days: pause ledger unavailable")
}

func TestComputeProgress_InvalidLearnerContext(t *testing.T) {
	f := newFixture()
	l := &learner.Learner{ContactKey: "no-enrollment@example.com"}

	r := f.handler().ComputeProgress(context.Background(), l, onDay(50))

	assert.Equal(t, 0, r.ActiveDays)
	assert.Equal(t, 1, r.BaseLevel)
	assert.Contains(t, r.DebugReason, "invalid learner context")
}

func TestComputeProgress_PanicYieldsGlobalFallback(t *testing.T) {
	f := newFixture()
	f.phases = panickingSource{}

	var r progress.Result
	require.NotPanics(t, func() {
		r = f.handler().ComputeProgress(context.Background(), activeLearner(), onDay(50))
	})

	assert.Equal(t, progress.Fallback("Healing", progress.DebugCalculationError), r)
	assert.Contains(t, f.logs.String(), "corrupted cache entry")
}

func TestComputeProgress_PausedWithoutOpenInterval(t *testing.T) {
	f := newFixture()
	reactivated := onDay(45)
	l := activeLearner()
	l.Subscription = learner.SubscriptionPaused
	l.ReactivatedAt = &reactivated

	r := f.handler().ComputeProgress(context.Background(), l, onDay(100))

	assert.Equal(t, 45, r.ActiveDays)
	assert.Contains(t, r.DebugReason, "reference=reactivation")
	assert.Contains(t, f.logs.String(), "paused_without_open_interval")
}

func TestComputeProgress_DefaultsToClock(t *testing.T) {
	f := newFixture()

	r := f.handler().Handle(context.Background(), ComputeProgressQuery{Learner: activeLearner()})

	assert.Equal(t, 50, r.ActiveDays)
}

func TestComputeProgress_Deterministic(t *testing.T) {
	f := newFixture()
	f.overrides.active = &level.Override{ID: "o1", Operator: level.OperatorMin, Value: 7}
	h := f.handler()

	first := h.ComputeProgress(context.Background(), activeLearner(), onDay(120))
	second := h.ComputeProgress(context.Background(), activeLearner(), onDay(120))

	assert.Equal(t, first, second)
	assert.Equal(t, 7, first.EffectiveLevel)
	assert.Equal(t, "advanced_healing", first.EffectivePhase.ID)
}

func TestComputeProgress_NilCollaborators(t *testing.T) {
	h := NewComputeProgressHandler(nil, nil, nil, nil, ComputeProgressConfig{}, nil)

	r := h.ComputeProgress(context.Background(), activeLearner(), onDay(50))

	assert.Equal(t, 2, r.EffectiveLevel)
	assert.Equal(t, phase.Unknown(phase.ReasonConfigUnavailable), r.EffectivePhase)
}
