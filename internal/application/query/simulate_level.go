package query

import (
	"errors"
	"fmt"

	"github.com/auri-hub/progress-hub/internal/domain/level"
)

// ══════════════════════════════════════════════════════════════════════════════
// SIMULATE LEVEL QUERY
// "Что если": уровень для произвольного числа активных дней и оверрайда.
// Чистая функция над статической лестницей, без обращения к хранилищам.
// ══════════════════════════════════════════════════════════════════════════════

// SimulateLevelQuery - входные данные симуляции.
type SimulateLevelQuery struct {
	ActiveDays int

	// Operator и Value описывают гипотетический оверрайд. Пустой Operator - без оверрайда.
	Operator level.Operator
	Value    int
}

// Validate проверяет запрос.
func (q SimulateLevelQuery) Validate() error {
	if q.Operator != "" && !q.Operator.IsKnown() {
		return fmt.Errorf("simulate_level: unknown operator %q", q.Operator)
	}
	return nil
}

// SimulateLevelResult - результат симуляции.
type SimulateLevelResult struct {
	ActiveDays     int
	BaseLevel      int
	EffectiveLevel int
	LevelName      string
	Category       level.Category

	// DaysToNext - сколько активных дней до следующей ступени.
	// HasNext = false на последней ступени.
	DaysToNext int
	HasNext    bool
}

// SimulateLevel выполняет симуляцию.
func SimulateLevel(q SimulateLevelQuery) (*SimulateLevelResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	base := level.ResolveBaseLevel(q.ActiveDays)

	var ov *level.Override
	if q.Operator != "" {
		ov = &level.Override{ID: "simulated", Operator: q.Operator, Value: q.Value}
	}
	app, err := level.Apply(base, ov)
	if err != nil {
		return nil, errors.Join(errors.New("simulate_level: apply override"), err)
	}

	next, hasNext := level.DaysToNext(q.ActiveDays)
	return &SimulateLevelResult{
		ActiveDays:     max(q.ActiveDays, 0),
		BaseLevel:      base,
		EffectiveLevel: app.Effective,
		LevelName:      level.Name(app.Effective),
		Category:       level.CategoryOf(app.Effective),
		DaysToNext:     next,
		HasNext:        hasNext,
	}, nil
}
