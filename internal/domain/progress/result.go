// Package progress содержит результат движка прогресса и его снапшоты.
//
// Result неизменяем и строится заново на каждый вызов. Snapshot - производная
// денормализованная копия результата на момент времени; она никогда не
// подаётся обратно в вычисление и не главнее свежего расчёта.
package progress

import (
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/phase"
)

// AppliedOverride - оверрайд, применённый к результату.
type AppliedOverride struct {
	ID        string         `json:"id"`
	Operator  level.Operator `json:"type"`
	Value     int            `json:"value"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by,omitempty"`
}

// AppliedFrom копирует поля оверрайда.
func AppliedFrom(o level.Override) AppliedOverride {
	return AppliedOverride{
		ID:        o.ID,
		Operator:  o.Operator,
		Value:     o.Value,
		Reason:    o.Reason,
		CreatedAt: o.CreatedAt,
		CreatedBy: o.CreatedBy,
	}
}

// Result - итог вычисления прогресса.
type Result struct {
	ActiveDays       int                  `json:"active_days"`
	PausedDays       int                  `json:"paused_days"`
	BaseLevel        int                  `json:"base_level"`
	AppliedOverrides []AppliedOverride    `json:"applied_overrides"`
	EffectiveLevel   int                  `json:"effective_level"`
	EffectivePhase   phase.EffectivePhase `json:"effective_phase"`
	LevelName        string               `json:"level_name"`
	DebugReason      string               `json:"debug_reason"`
}

// Debug-причины глобального fallback.
const (
	DebugMissingIdentity  = "fallback: learner has no identity"
	DebugCalculationError = "fallback: calculation error"
)

// Fallback строит глобальный безопасный результат: уровень 1 и фаза по умолчанию.
func Fallback(defaultPhaseName, debugReason string) Result {
	return Result{
		BaseLevel:        level.MinLevel,
		AppliedOverrides: []AppliedOverride{},
		EffectiveLevel:   level.MinLevel,
		EffectivePhase:   phase.Default(defaultPhaseName, phase.ReasonCalculationError),
		LevelName:        level.Name(level.MinLevel),
		DebugReason:      debugReason,
	}
}

// HasOverride сообщает, был ли применён оверрайд.
func (r Result) HasOverride() bool {
	return len(r.AppliedOverrides) > 0
}
