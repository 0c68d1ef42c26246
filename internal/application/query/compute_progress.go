// Package query содержит операции чтения (CQRS - Queries).
// Запросы не изменяют состояние системы; движок прогресса - тоже запрос:
// он вычисляет результат из журналов и конфигурации, ничего не записывая.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
	"github.com/auri-hub/progress-hub/pkg/logger"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPUTE PROGRESS QUERY
// Движок прогресса: активные дни -> базовый уровень -> оверрайд -> фаза.
// Fail-open: каждый этап деградирует до безопасного значения, вызывающий код
// всегда получает полный результат и никогда не получает ошибку.
// ══════════════════════════════════════════════════════════════════════════════

// ComputeProgressQuery - входные данные движка.
type ComputeProgressQuery struct {
	// Learner - контекст ученика. Нужен хотя бы один идентификатор.
	Learner *learner.Learner

	// ReferenceInstant - момент расчёта. Нулевое значение означает "сейчас".
	ReferenceInstant time.Time
}

// Validate проверяет запрос.
func (q ComputeProgressQuery) Validate() error {
	if !q.Learner.HasIdentity() {
		return shared.ErrLearnerIdentity
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Handler
// ─────────────────────────────────────────────────────────────────────────────

// ComputeProgressConfig - настройки движка.
type ComputeProgressConfig struct {
	// DefaultPhaseName - фиксированная фаза платформы для fallback.
	DefaultPhaseName string

	// TraceInfo включает INFO-лог каждого расчёта (development/staging).
	// В production итог пишется на уровне DEBUG.
	TraceInfo bool
}

// DefaultComputeProgressConfig возвращает настройки по умолчанию.
func DefaultComputeProgressConfig() ComputeProgressConfig {
	return ComputeProgressConfig{
		DefaultPhaseName: "Healing",
	}
}

// ComputeProgressHandler - движок прогресса.
type ComputeProgressHandler struct {
	activeDays *learner.ActiveDaysCalculator
	overrides  level.OverrideLedger
	phases     phase.Source
	clock      timeutil.Clock
	config     ComputeProgressConfig
	log        *logger.Logger
}

// NewComputeProgressHandler создаёт движок. overrides и phases могут быть nil:
// тогда оверрайды не применяются, а конфигурация фаз считается недоступной.
func NewComputeProgressHandler(
	activeDays *learner.ActiveDaysCalculator,
	overrides level.OverrideLedger,
	phases phase.Source,
	clock timeutil.Clock,
	config ComputeProgressConfig,
	log *logger.Logger,
) *ComputeProgressHandler {
	if activeDays == nil {
		activeDays = learner.NewActiveDaysCalculator(nil)
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if config.DefaultPhaseName == "" {
		config.DefaultPhaseName = DefaultComputeProgressConfig().DefaultPhaseName
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ComputeProgressHandler{
		activeDays: activeDays,
		overrides:  overrides,
		phases:     phases,
		clock:      clock,
		config:     config,
		log:        log.With(logger.Component("progress_engine")),
	}
}

// ComputeProgress - короткая форма Handle.
func (h *ComputeProgressHandler) ComputeProgress(ctx context.Context, l *learner.Learner, at time.Time) progress.Result {
	return h.Handle(ctx, ComputeProgressQuery{Learner: l, ReferenceInstant: at})
}

// Handle вычисляет прогресс ученика. Никогда не возвращает ошибку и не паникует.
func (h *ComputeProgressHandler) Handle(ctx context.Context, q ComputeProgressQuery) (result progress.Result) {
	log := h.log.With(logger.Operation("compute_progress"))

	if err := q.Validate(); err != nil {
		log.Warn("progress requested for learner without identity", logger.Stage("guard"), logger.Err(err))
		return progress.Fallback(h.config.DefaultPhaseName, progress.DebugMissingIdentity)
	}

	l := q.Learner
	log = log.With(logger.LearnerID(l.ID), logger.ContactKey(l.ContactKey))

	defer func() {
		if r := recover(); r != nil {
			log.Error("progress computation failed, serving fallback",
				logger.F("panic", fmt.Sprint(r)))
			result = progress.Fallback(h.config.DefaultPhaseName, progress.DebugCalculationError)
		}
	}()

	started := h.clock.Now()
	now := q.ReferenceInstant
	if now.IsZero() {
		now = started
	}

	var notes []string

	days := h.computeActiveDays(ctx, log, l, now, &notes)
	base := level.ResolveBaseLevel(days.Active)
	app, applied, overrideNote := h.applyOverride(ctx, log, l, base, &notes)
	effPhase := h.resolvePhase(ctx, log, app.Effective, &notes)

	result = progress.Result{
		ActiveDays:       days.Active,
		PausedDays:       days.Paused,
		BaseLevel:        base,
		AppliedOverrides: applied,
		EffectiveLevel:   app.Effective,
		EffectivePhase:   effPhase,
		LevelName:        level.Name(app.Effective),
		DebugReason:      debugReason(base, overrideNote, notes),
	}

	fields := []logger.Field{
		logger.Int("active_days", result.ActiveDays),
		logger.Int("paused_days", result.PausedDays),
		logger.BaseLevel(result.BaseLevel),
		logger.EffectiveLevel(result.EffectiveLevel),
		logger.PhaseID(result.EffectivePhase.ID),
		logger.Latency(h.clock.Now().Sub(started)),
	}
	if h.config.TraceInfo {
		log.Info("progress computed", fields...)
	} else {
		log.Debug("progress computed", fields...)
	}

	return result
}

// ─────────────────────────────────────────────────────────────────────────────
// Stages
// ─────────────────────────────────────────────────────────────────────────────

func (h *ComputeProgressHandler) computeActiveDays(
	ctx context.Context,
	log *logger.Logger,
	l *learner.Learner,
	now time.Time,
	notes *[]string,
) learner.ActiveDays {
	days, err := h.activeDays.Calculate(ctx, l, now)
	if err != nil {
		note := "active_days: pause ledger unavailable"
		if shared.IsValidation(err) {
			note = "active_days: invalid learner context"
		}
		log.Warn("active days degraded", logger.Stage("active_days"), logger.Err(err))
		*notes = append(*notes, note)
	}

	if days.Source.IsRepairHeuristic() {
		log.Warn("paused subscription has no open pause interval",
			logger.Stage("active_days"),
			logger.Anomaly("paused_without_open_interval"),
			logger.String("reference_source", string(days.Source)),
			logger.Time("reference", days.Reference),
		)
		*notes = append(*notes, "reference="+string(days.Source))
	}

	return days
}

func (h *ComputeProgressHandler) applyOverride(
	ctx context.Context,
	log *logger.Logger,
	l *learner.Learner,
	base int,
	notes *[]string,
) (level.Application, []progress.AppliedOverride, string) {
	applied := []progress.AppliedOverride{}

	if h.overrides == nil {
		app, _ := level.Apply(base, nil)
		return app, applied, ""
	}

	ov, err := h.overrides.GetActiveOverride(ctx, l.Key())
	if err != nil {
		log.Warn("override ledger unavailable, using base level",
			logger.Stage("override"), logger.BaseLevel(base), logger.Err(err))
		*notes = append(*notes, "override: ledger unavailable")
		app, _ := level.Apply(base, nil)
		return app, applied, ""
	}

	if ov != nil && ov.IsRevoked() {
		log.Warn("override ledger returned a revoked override, ignoring it",
			logger.Stage("override"), logger.Anomaly("revoked_override_active"), logger.String("override_id", ov.ID))
		ov = nil
	}

	app, err := level.Apply(base, ov)
	if err != nil {
		log.Warn("override has unknown operator, using base level",
			logger.Stage("override"),
			logger.Anomaly("unknown_override_operator"),
			logger.String("override_id", ov.ID),
			logger.String("operator", string(ov.Operator)),
			logger.Err(err),
		)
		return app, applied, fmt.Sprintf("override=%s ignored", ov)
	}

	if !app.Applied {
		return app, applied, ""
	}
	return app, append(applied, progress.AppliedFrom(*ov)), "override=" + ov.String()
}

func (h *ComputeProgressHandler) resolvePhase(
	ctx context.Context,
	log *logger.Logger,
	effective int,
	notes *[]string,
) phase.EffectivePhase {
	log = log.With(logger.Stage("phase"), logger.EffectiveLevel(effective))

	if h.phases == nil {
		log.Error("phase config source is not configured")
		*notes = append(*notes, "phase: "+phase.ReasonConfigUnavailable)
		return phase.Unknown(phase.ReasonConfigUnavailable)
	}

	raw, err := h.phases.GetRawPhaseConfig(ctx)
	if err != nil {
		log.Error("phase config unavailable", logger.Err(err))
		*notes = append(*notes, "phase: "+phase.ReasonConfigUnavailable)
		return phase.Unknown(phase.ReasonConfigUnavailable)
	}

	validation := phase.ValidateAndNormalize(raw)
	if !validation.OK {
		log.Error("phase config is invalid",
			logger.Strings("validation_errors", validation.Errors()),
			logger.Err(errors.Join(shared.ErrPhaseConfigInvalid, validation.Err())),
		)
		*notes = append(*notes, "phase: "+phase.ReasonInvalidConfig)
		return phase.Unknown(phase.ReasonInvalidConfig)
	}

	if collisions := phase.IDCollisions(validation.Normalized); len(collisions) > 0 {
		for _, c := range collisions {
			log.Debug("phase names share an id", logger.PhaseID(c.ID), logger.Strings("names", c.Names))
		}
	}

	resolved := phase.Resolve(validation.Normalized, effective)
	if resolved.IsUnknown() {
		// Валидная конфигурация без покрытия: отдаём фазу платформы,
		// сохраняя причину для диагностики.
		log.Warn("phase config has no coverage for level",
			logger.String("reason", resolved.Reason),
			logger.F("coverage_gaps", phase.CoverageGaps(validation.Normalized, level.MinLevel, level.MaxLevel)),
		)
		*notes = append(*notes, "phase: "+resolved.Reason)
		return phase.Default(h.config.DefaultPhaseName, resolved.Reason)
	}

	return resolved
}

func debugReason(base int, overrideNote string, notes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "base_level=%d", base)
	if overrideNote == "" {
		b.WriteString(" (no overrides)")
	} else {
		b.WriteString(", ")
		b.WriteString(overrideNote)
	}
	for _, n := range notes {
		b.WriteString("; ")
		b.WriteString(n)
	}
	return b.String()
}
