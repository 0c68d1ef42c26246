package level

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OVERRIDE
// ══════════════════════════════════════════════════════════════════════════════

// Operator - оператор оверрайда.
type Operator string

const (
	// OperatorAdd: base + value.
	OperatorAdd Operator = "ADD"
	// OperatorSet: value, базовый уровень игнорируется.
	OperatorSet Operator = "SET"
	// OperatorMin: max(base, value). Это нижняя граница (пол), а не потолок:
	// название исторически вводит в заблуждение.
	OperatorMin Operator = "MIN"
)

// IsKnown сообщает, поддерживается ли оператор.
func (o Operator) IsKnown() bool {
	switch o {
	case OperatorAdd, OperatorSet, OperatorMin:
		return true
	}
	return false
}

// ParseOperator нормализует регистр. Неизвестные операторы возвращаются как есть:
// решение об их игнорировании принимает Apply.
func ParseOperator(s string) Operator {
	return Operator(strings.ToUpper(strings.TrimSpace(s)))
}

// Override - корректировка уровня администратором. Неизменяема после создания;
// отзыв - мягкая пометка RevokedAt.
type Override struct {
	ID         string
	LearnerID  string
	ContactKey string
	Operator   Operator
	Value      int
	Reason     string
	CreatedBy  string
	CreatedAt  time.Time
	RevokedAt  *time.Time
	RevokedBy  string
}

// IsRevoked сообщает, отозван ли оверрайд.
func (o Override) IsRevoked() bool {
	return o.RevokedAt != nil
}

// String возвращает краткую форму "OP+value".
func (o Override) String() string {
	return fmt.Sprintf("%s+%d", o.Operator, o.Value)
}

// Application - результат применения оверрайда.
type Application struct {
	Base      int
	Effective int
	// Applied - false, если оверрайда нет или оператор неизвестен.
	Applied  bool
	Override *Override
}

// Apply применяет оверрайд к базовому уровню и зажимает результат в [MinLevel, MaxLevel].
// Зажим выполняется всегда и последним, даже без оверрайда.
// Для неизвестного оператора возвращается базовый уровень и ErrUnknownOperator.
func Apply(base int, o *Override) (Application, error) {
	res := Application{Base: base, Effective: Clamp(base), Override: o}
	if o == nil {
		return res, nil
	}

	var effective int
	switch o.Operator {
	case OperatorAdd:
		effective = saturatingAdd(base, o.Value)
	case OperatorSet:
		effective = o.Value
	case OperatorMin:
		effective = max(base, o.Value)
	default:
		return res, shared.WrapError("level", "ApplyOverride", shared.ErrInvalidFormat,
			"unknown override operator", fmt.Errorf("operator %q in override %s", o.Operator, o.ID))
	}

	res.Effective = Clamp(effective)
	res.Applied = true
	return res, nil
}

// saturatingAdd складывает без переполнения: результат упирается в границы int.
func saturatingAdd(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}

// SelectActive выбирает активный оверрайд из истории: неотозванный
// с самой поздней датой создания. При равенстве побеждает больший ID.
func SelectActive(history []Override) *Override {
	var active *Override
	for i := range history {
		o := &history[i]
		if o.IsRevoked() {
			continue
		}
		if active == nil || o.CreatedAt.After(active.CreatedAt) ||
			(o.CreatedAt.Equal(active.CreatedAt) && o.ID > active.ID) {
			active = o
		}
	}
	if active == nil {
		return nil
	}
	out := *active
	return &out
}

// SortHistory упорядочивает историю от новых к старым.
func SortHistory(history []Override) {
	sort.SliceStable(history, func(i, j int) bool {
		if !history[i].CreatedAt.Equal(history[j].CreatedAt) {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		}
		return history[i].ID > history[j].ID
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// OverrideLedger - журнал оверрайдов (только чтение). Журнал ведётся
// административным компонентом; движок его не изменяет.
type OverrideLedger interface {
	// GetActiveOverride возвращает активный оверрайд или nil, если его нет.
	// Поиск по LearnerID, а при его отсутствии - по ContactKey.
	GetActiveOverride(ctx context.Context, key learner.Key) (*Override, error)

	// History возвращает все оверрайды ученика, включая отозванные, от новых к старым.
	History(ctx context.Context, key learner.Key) ([]Override, error)
}
