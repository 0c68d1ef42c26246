// Package level содержит статическую лестницу уровней и применение оверрайдов.
//
// Лестница не настраивается администратором: это чистые функции без состояния,
// пригодные для симуляций "что если". Эффективный уровень всегда лежит в [MinLevel, MaxLevel].
package level

import (
	"math"
	"strconv"
	"strings"
)

const (
	// MinLevel - нижняя граница уровня.
	MinLevel = 1
	// MaxLevel - верхняя граница уровня.
	MaxLevel = 15
)

// Unbounded - верхняя граница последней ступени.
const Unbounded = math.MaxInt

// Category - педагогическая категория уровня.
type Category string

const (
	CategoryHealing         Category = "healing"
	CategoryAdvancedHealing Category = "advanced_healing"
	CategoryChanneling      Category = "channeling"
)

// Rung - ступень лестницы: диапазон активных дней [MinDays, MaxDays] и уровень.
type Rung struct {
	MinDays  int
	MaxDays  int
	Level    int
	Name     string
	Category Category
}

// Contains сообщает, попадает ли число дней в ступень.
func (r Rung) Contains(days int) bool {
	return days >= r.MinDays && days <= r.MaxDays
}

// ladder упорядочена по MinDays, диапазоны не пересекаются и покрывают [0, ∞).
var ladder = []Rung{
	{0, 39, 1, "Healing - Initial", CategoryHealing},
	{40, 59, 2, "Healing - Level 2", CategoryHealing},
	{60, 89, 3, "Healing - Level 3", CategoryHealing},
	{90, 119, 4, "Healing - Level 4", CategoryHealing},
	{120, 149, 5, "Healing - Level 5", CategoryHealing},
	{150, 179, 6, "Healing - Level 6", CategoryHealing},
	{180, 229, 7, "Advanced Healing - Level 7", CategoryAdvancedHealing},
	{230, 259, 8, "Advanced Healing - Level 8", CategoryAdvancedHealing},
	{260, 289, 9, "Advanced Healing - Level 9", CategoryAdvancedHealing},
	{290, 319, 10, "Channeling - Level 10", CategoryChanneling},
	{320, 349, 11, "Channeling - Level 11", CategoryChanneling},
	{350, 379, 12, "Channeling - Level 12", CategoryChanneling},
	{380, 409, 13, "Channeling - Level 13", CategoryChanneling},
	{410, 439, 14, "Channeling - Level 14", CategoryChanneling},
	{440, Unbounded, 15, "Channeling - Level 15", CategoryChanneling},
}

// Ladder возвращает копию лестницы.
func Ladder() []Rung {
	out := make([]Rung, len(ladder))
	copy(out, ladder)
	return out
}

// ResolveBaseLevel возвращает базовый уровень для числа активных дней.
// Отрицательные значения дают MinLevel, значения за последней ступенью - MaxLevel.
func ResolveBaseLevel(activeDays int) int {
	if activeDays < 0 {
		return MinLevel
	}
	for _, r := range ladder {
		if r.Contains(activeDays) {
			return r.Level
		}
	}
	return ladder[len(ladder)-1].Level
}

// ResolveBaseLevelText разбирает число дней из текста (ввод инструментов симуляции).
// Нечисловой ввод даёт MinLevel.
func ResolveBaseLevelText(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return ResolveBaseLevel(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return MinLevel
	}
	if f >= float64(math.MaxInt32) {
		return MaxLevel
	}
	return ResolveBaseLevel(int(math.Floor(f)))
}

// RungFor возвращает ступень уровня. Неизвестный уровень даёт первую ступень.
func RungFor(level int) Rung {
	for _, r := range ladder {
		if r.Level == level {
			return r
		}
	}
	return ladder[0]
}

// Name возвращает отображаемое имя уровня.
func Name(level int) string {
	return RungFor(level).Name
}

// CategoryOf возвращает категорию уровня.
func CategoryOf(level int) Category {
	return RungFor(level).Category
}

// DaysToNext возвращает, сколько активных дней осталось до следующего уровня.
// На последней ступени возвращает 0 и false.
func DaysToNext(activeDays int) (int, bool) {
	if activeDays < 0 {
		activeDays = 0
	}
	for _, r := range ladder {
		if r.Contains(activeDays) {
			if r.MaxDays == Unbounded {
				return 0, false
			}
			return r.MaxDays + 1 - activeDays, true
		}
	}
	return 0, false
}

// Clamp приводит уровень к диапазону [MinLevel, MaxLevel].
func Clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
