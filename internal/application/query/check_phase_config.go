package query

import (
	"context"

	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK PHASE CONFIG QUERY
// Отчёт для администратора: ошибки валидации, пробелы покрытия и коллизии ID.
// ══════════════════════════════════════════════════════════════════════════════

// PhaseConfigReport - результат проверки конфигурации фаз.
type PhaseConfigReport struct {
	Valid  bool
	Errors []string

	// Phases - нормализованные фазы (пусто, если конфигурация невалидна).
	Phases []phase.Definition

	// CoverageGaps - уровни из [MinLevel, MaxLevel] без ограниченной фазы.
	// Если есть catch-all, пробелы им поглощаются, но всё равно перечисляются.
	CoverageGaps []int
	HasCatchAll  bool
	Collisions   []phase.Collision
}

// FullyCovered сообщает, что любой уровень разрешится в известную фазу.
func (r *PhaseConfigReport) FullyCovered() bool {
	return r.Valid && (r.HasCatchAll || len(r.CoverageGaps) == 0)
}

// CheckPhaseConfigHandler обрабатывает запрос.
type CheckPhaseConfigHandler struct {
	source phase.Source
}

// NewCheckPhaseConfigHandler создаёт обработчик.
func NewCheckPhaseConfigHandler(source phase.Source) *CheckPhaseConfigHandler {
	return &CheckPhaseConfigHandler{source: source}
}

// Handle загружает конфигурацию из источника и проверяет её.
func (h *CheckPhaseConfigHandler) Handle(ctx context.Context) (*PhaseConfigReport, error) {
	raw, err := h.source.GetRawPhaseConfig(ctx)
	if err != nil {
		return nil, shared.WrapError("phase", "GetRawPhaseConfig", shared.ErrServiceUnavailable,
			"phase config unavailable", err)
	}
	return CheckPhaseConfig(raw), nil
}

// CheckPhaseConfig проверяет уже загруженную конфигурацию.
func CheckPhaseConfig(raw []phase.RawDefinition) *PhaseConfigReport {
	return reportFor(phase.ValidateAndNormalize(raw))
}

// CheckPhaseConfigValue проверяет декодированный документ (JSON/YAML).
func CheckPhaseConfigValue(doc any) *PhaseConfigReport {
	return reportFor(phase.ValidateValue(doc))
}

func reportFor(res phase.ValidationResult) *PhaseConfigReport {
	report := &PhaseConfigReport{
		Valid:  res.OK,
		Errors: res.Errors(),
	}
	if !res.OK {
		return report
	}

	report.Phases = res.Normalized
	report.CoverageGaps = phase.CoverageGaps(res.Normalized, level.MinLevel, level.MaxLevel)
	report.HasCatchAll = phase.HasCatchAll(res.Normalized)
	report.Collisions = phase.IDCollisions(res.Normalized)
	return report
}
