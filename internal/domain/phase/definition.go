// Package phase содержит конфигурацию педагогических фаз: валидацию,
// нормализацию и разрешение фазы по эффективному уровню.
//
// Конфигурация редактируется администратором и может быть некорректной.
// Валидация - чистая функция: один и тот же вход всегда даёт тот же
// упорядоченный результат или тот же набор ошибок.
package phase

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// RAW DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// BoundKind - как граница была передана в сырой конфигурации.
type BoundKind int

const (
	BoundNull BoundKind = iota
	BoundNumber
	BoundString
	BoundOther
)

// Bound - сырая граница диапазона уровней в том виде, как её ввёл администратор.
type Bound struct {
	Kind BoundKind
	Text string
}

// NoBound - отсутствующая граница.
func NoBound() Bound { return Bound{Kind: BoundNull} }

// IntBound - числовая граница.
func IntBound(n int) Bound { return Bound{Kind: BoundNumber, Text: strconv.Itoa(n)} }

// TextBound - граница, переданная строкой.
func TextBound(s string) Bound { return Bound{Kind: BoundString, Text: s} }

// BoundFromPtr строит границу из nullable-колонки.
func BoundFromPtr(n *int) Bound {
	if n == nil {
		return NoBound()
	}
	return IntBound(*n)
}

// BoundFromValue строит границу из декодированного JSON/YAML значения.
func BoundFromValue(v any) Bound {
	switch x := v.(type) {
	case nil:
		return NoBound()
	case string:
		return TextBound(x)
	case json.Number:
		return Bound{Kind: BoundNumber, Text: x.String()}
	case int:
		return IntBound(x)
	case int64:
		return Bound{Kind: BoundNumber, Text: strconv.FormatInt(x, 10)}
	case uint64:
		return Bound{Kind: BoundNumber, Text: strconv.FormatUint(x, 10)}
	case float64:
		return Bound{Kind: BoundNumber, Text: strconv.FormatFloat(x, 'f', -1, 64)}
	default:
		return Bound{Kind: BoundOther, Text: fmt.Sprintf("%v", x)}
	}
}

// UnmarshalJSON принимает число, строку или null.
func (b *Bound) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*b = NoBound()
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = TextBound(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			*b = Bound{Kind: BoundOther, Text: trimmed}
			return nil
		}
		*b = Bound{Kind: BoundNumber, Text: n.String()}
	}
	return nil
}

// MarshalJSON сохраняет исходный вид границы.
func (b Bound) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case BoundNull:
		return []byte("null"), nil
	case BoundNumber:
		return []byte(b.Text), nil
	default:
		return json.Marshal(b.Text)
	}
}

// IsNull сообщает, что граница отсутствует. Пустая строка тоже считается отсутствием.
func (b Bound) IsNull() bool {
	return b.Kind == BoundNull || (b.Kind == BoundString && strings.TrimSpace(b.Text) == "")
}

// Int приводит границу к целому >= 1. Строки приводятся к числу.
func (b Bound) Int() (int, error) {
	if b.Kind == BoundOther {
		return 0, fmt.Errorf("unsupported value %q", b.Text)
	}
	s := strings.TrimSpace(b.Text)
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, fmt.Errorf("%q is not an integer", b.Text)
		}
		n = int(f)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d is below 1", n)
	}
	return n, nil
}

// RawDefinition - фаза в том виде, как её ввёл администратор.
type RawDefinition struct {
	Name        string `json:"name"`
	LevelMin    Bound  `json:"level_min"`
	LevelMax    Bound  `json:"level_max"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order,omitempty"`

	malformed string
}

// MalformedDefinition - заведомо некорректный элемент: валидация сообщит reason под его номером.
func MalformedDefinition(reason string) RawDefinition {
	return RawDefinition{malformed: reason}
}

// Malformed возвращает причину, по которой элемент не разобран, или пустую строку.
func (r RawDefinition) Malformed() string {
	return r.malformed
}

// ══════════════════════════════════════════════════════════════════════════════
// NORMALIZED DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition - нормализованная фаза: границы целые >= 1 или обе nil.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LevelMin    *int   `json:"level_min"`
	LevelMax    *int   `json:"level_max"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

// IsCatchAll сообщает, что у фазы нет границ.
func (d Definition) IsCatchAll() bool {
	return d.LevelMin == nil && d.LevelMax == nil
}

// IsBounded сообщает, что заданы обе границы.
func (d Definition) IsBounded() bool {
	return d.LevelMin != nil && d.LevelMax != nil
}

// Contains сообщает, покрывает ли ограниченная фаза уровень.
// Фазы с одной границей не покрывают ни один уровень.
func (d Definition) Contains(level int) bool {
	return d.IsBounded() && level >= *d.LevelMin && level <= *d.LevelMax
}

// RangeString возвращает диапазон в виде "min-max".
func (d Definition) RangeString() string {
	return fmt.Sprintf("%s-%s", boundString(d.LevelMin), boundString(d.LevelMax))
}

func boundString(p *int) string {
	if p == nil {
		return "null"
	}
	return strconv.Itoa(*p)
}

// IDFor выводит идентификатор фазы из имени: нижний регистр,
// последовательности пробельных символов заменяются на "_".
func IDFor(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// ══════════════════════════════════════════════════════════════════════════════
// EFFECTIVE PHASE
// ══════════════════════════════════════════════════════════════════════════════

const (
	// UnknownID - идентификатор структурированной "неизвестной" фазы.
	UnknownID = "unknown"
	// UnknownName - отображаемое имя "неизвестной" фазы.
	UnknownName = "Phase unavailable"
)

// Причины (reason) диагностических исходов.
const (
	ReasonConfigEmpty       = "config_empty"
	ReasonInvalidConfig     = "invalid_config"
	ReasonConfigUnavailable = "config_unavailable"
	ReasonFallbackDefault   = "fallback_default"
	ReasonCalculationError  = "fallback_calculation_error"
)

// NoCoverageReason - причина для уровня без покрытия.
func NoCoverageReason(level int) string {
	return fmt.Sprintf("level_%d_no_coverage", level)
}

// EffectivePhase - фаза, отдаваемая потребителям. Всегда объект, даже в fallback.
// Reason заполняется только для диагностических исходов.
type EffectivePhase struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// IsUnknown сообщает, что фаза - структурированный маркер "неизвестно".
func (p EffectivePhase) IsUnknown() bool {
	return p.ID == UnknownID
}

// Unknown строит "неизвестную" фазу с причиной.
func Unknown(reason string) EffectivePhase {
	return EffectivePhase{ID: UnknownID, Name: UnknownName, Reason: reason}
}

// Default строит фиксированную фазу платформы по умолчанию.
func Default(name, reason string) EffectivePhase {
	return EffectivePhase{ID: IDFor(name), Name: name, Reason: reason}
}

// FromDefinition строит фазу из нормализованного определения.
func FromDefinition(d Definition) EffectivePhase {
	id := d.ID
	if id == "" {
		id = IDFor(d.Name)
	}
	return EffectivePhase{ID: id, Name: d.Name, Description: d.Description}
}
