package phase

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// Issue - одна ошибка валидации.
// Index - номер записи (с 1) во входном списке; 0 для ошибок уровня документа.
type Issue struct {
	Index   int
	Phase   string
	Message string
}

// String форматирует ошибку для логов и администратора.
func (i Issue) String() string {
	switch {
	case i.Index == 0:
		return i.Message
	case i.Phase == "":
		return fmt.Sprintf("phase %d: %s", i.Index, i.Message)
	default:
		return fmt.Sprintf("phase %d (%s): %s", i.Index, i.Phase, i.Message)
	}
}

// ValidationResult - результат валидации: либо OK и Normalized, либо Issues.
type ValidationResult struct {
	OK         bool
	Normalized []Definition
	Issues     []Issue
}

// Errors возвращает тексты ошибок.
func (r ValidationResult) Errors() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.String()
	}
	return out
}

// Err возвращает ошибку вида ErrValidation со всеми сообщениями, или nil.
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return shared.WrapError("phase", "Validate", shared.ErrValidation,
		"phase config is invalid", errors.New(strings.Join(r.Errors(), "; ")))
}

// ValidateAndNormalize проверяет и нормализует сырую конфигурацию.
//
// Ошибки собираются все сразу. Запись с некорректным именем или границей
// исключается из дальнейших проверок, но пересечения ищутся среди всех
// корректных записей. Пробелы в покрытии уровней ошибкой не считаются.
//
// При успехе записи отсортированы по LevelMin (записи без LevelMin в конце,
// порядок равных сохраняется) и пронумерованы с 1.
func ValidateAndNormalize(raw []RawDefinition) ValidationResult {
	if len(raw) == 0 {
		return ValidationResult{Issues: []Issue{{Message: "config must contain at least one phase"}}}
	}

	var issues []Issue
	defs := make([]Definition, 0, len(raw))

	for i, r := range raw {
		idx := i + 1
		def, entryIssues := normalizeEntry(idx, r)
		if len(entryIssues) > 0 {
			issues = append(issues, entryIssues...)
			continue
		}
		defs = append(defs, def)
	}

	sortDefinitions(defs)
	issues = append(issues, overlapIssues(defs)...)

	if len(issues) > 0 {
		return ValidationResult{Issues: issues}
	}

	for i := range defs {
		defs[i].Order = i + 1
	}
	return ValidationResult{OK: true, Normalized: defs}
}

func normalizeEntry(idx int, r RawDefinition) (Definition, []Issue) {
	if r.malformed != "" {
		return Definition{}, []Issue{{Index: idx, Message: r.malformed}}
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return Definition{}, []Issue{{Index: idx, Message: "'name' is required and must be a non-empty string"}}
	}

	var issues []Issue
	lo, err := parseBound(r.LevelMin)
	if err != nil {
		issues = append(issues, Issue{Index: idx, Phase: name,
			Message: fmt.Sprintf("'level_min' must be an integer >= 1 or null: %v", err)})
	}
	hi, err := parseBound(r.LevelMax)
	if err != nil {
		issues = append(issues, Issue{Index: idx, Phase: name,
			Message: fmt.Sprintf("'level_max' must be an integer >= 1 or null: %v", err)})
	}
	if len(issues) > 0 {
		return Definition{}, issues
	}

	if lo != nil && hi != nil && *hi < *lo {
		return Definition{}, []Issue{{Index: idx, Phase: name,
			Message: fmt.Sprintf("'level_max' (%d) must be >= 'level_min' (%d)", *hi, *lo)}}
	}

	return Definition{
		ID:          IDFor(name),
		Name:        name,
		LevelMin:    lo,
		LevelMax:    hi,
		Description: strings.TrimSpace(r.Description),
	}, nil
}

func parseBound(b Bound) (*int, error) {
	if b.IsNull() {
		return nil, nil
	}
	n, err := b.Int()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func sortDefinitions(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i].LevelMin, defs[j].LevelMin
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

// overlapIssues ищет попарные пересечения включительных диапазонов.
// Фазы без границ (catch-all) и фазы с одной границей не участвуют.
func overlapIssues(sorted []Definition) []Issue {
	bounded := make([]Definition, 0, len(sorted))
	for _, d := range sorted {
		if d.IsBounded() {
			bounded = append(bounded, d)
		}
	}

	var issues []Issue
	for i := 0; i < len(bounded); i++ {
		for j := i + 1; j < len(bounded); j++ {
			a, b := bounded[i], bounded[j]
			if *a.LevelMin <= *b.LevelMax && *a.LevelMax >= *b.LevelMin {
				issues = append(issues, Issue{Message: fmt.Sprintf(
					"overlap: '%s' (%s) and '%s' (%s) cover the same levels",
					a.Name, a.RangeString(), b.Name, b.RangeString())})
			}
		}
	}
	return issues
}

// ValidateValue валидирует документ, декодированный из JSON или YAML.
// Документ должен быть списком объектов.
func ValidateValue(doc any) ValidationResult {
	raw, err := RawFromValue(doc)
	if err != nil {
		return ValidationResult{Issues: []Issue{{Message: err.Error()}}}
	}
	return ValidateAndNormalize(raw)
}

// RawFromValue преобразует декодированный документ в сырые определения.
// Элементы, не являющиеся объектами, сохраняются как заведомо некорректные,
// чтобы валидация сообщила о них под их номером.
func RawFromValue(doc any) ([]RawDefinition, error) {
	items, ok := doc.([]any)
	if !ok {
		return nil, errors.New("config must be a list of phases")
	}

	raw := make([]RawDefinition, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			raw = append(raw, MalformedDefinition("entry must be an object"))
			continue
		}
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		raw = append(raw, RawDefinition{
			Name:        name,
			LevelMin:    BoundFromValue(m["level_min"]),
			LevelMax:    BoundFromValue(m["level_max"]),
			Description: desc,
			Order:       orderFromValue(m["order"]),
		})
	}
	return raw, nil
}

func orderFromValue(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case uint64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}
