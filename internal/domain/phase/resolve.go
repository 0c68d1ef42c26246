package phase

import "sort"

// Resolve возвращает фазу для уровня по нормализованной конфигурации.
//
// Порядок: первая ограниченная фаза, покрывающая уровень; затем фаза без
// границ; иначе структурированная "неизвестная" фаза с причиной.
func Resolve(normalized []Definition, level int) EffectivePhase {
	if len(normalized) == 0 {
		return Unknown(ReasonConfigEmpty)
	}
	for _, d := range normalized {
		if d.Contains(level) {
			return FromDefinition(d)
		}
	}
	for _, d := range normalized {
		if d.IsCatchAll() {
			return FromDefinition(d)
		}
	}
	return Unknown(NoCoverageReason(level))
}

// CoverageGaps возвращает уровни из [from, to], не покрытые ни одной
// ограниченной фазой. Пробелы допустимы: их поглощает фаза без границ
// или фаза по умолчанию.
func CoverageGaps(normalized []Definition, from, to int) []int {
	var gaps []int
	for lvl := from; lvl <= to; lvl++ {
		covered := false
		for _, d := range normalized {
			if d.Contains(lvl) {
				covered = true
				break
			}
		}
		if !covered {
			gaps = append(gaps, lvl)
		}
	}
	return gaps
}

// HasCatchAll сообщает, есть ли в конфигурации фаза без границ.
func HasCatchAll(normalized []Definition) bool {
	for _, d := range normalized {
		if d.IsCatchAll() {
			return true
		}
	}
	return false
}

// Collision - несколько фаз с одинаковым выведенным идентификатором.
type Collision struct {
	ID    string
	Names []string
}

// IDCollisions находит имена, дающие один и тот же идентификатор
// ("Deep Work" и "deep  work"). Резолвер их не запрещает; это предупреждение.
func IDCollisions(normalized []Definition) []Collision {
	byID := make(map[string][]string)
	for _, d := range normalized {
		id := IDFor(d.Name)
		byID[id] = append(byID[id], d.Name)
	}

	var out []Collision
	for id, names := range byID {
		if len(names) > 1 {
			out = append(out, Collision{ID: id, Names: names})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
