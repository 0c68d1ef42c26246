package learner

import (
	"context"
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/shared"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

// ReferenceSource - откуда взята опорная точка подсчёта.
type ReferenceSource string

const (
	// ReferenceNow - запрошенный момент (подписка активна).
	ReferenceNow ReferenceSource = "now"
	// ReferencePauseStart - начало открытой паузы (заморозка).
	ReferencePauseStart ReferenceSource = "pause_start"
	// ReferenceReactivation - дата реактивации: подписка на паузе, но открытой паузы нет.
	ReferenceReactivation ReferenceSource = "reactivation"
	// ReferenceEnrollment - дата записи: нет ни открытой паузы, ни даты реактивации.
	ReferenceEnrollment ReferenceSource = "enrollment"
)

// IsRepairHeuristic сообщает, что опорная точка получена эвристикой
// восстановления несогласованных данных.
func (s ReferenceSource) IsRepairHeuristic() bool {
	return s == ReferenceReactivation || s == ReferenceEnrollment
}

// ActiveDays - результат подсчёта активных дней.
type ActiveDays struct {
	Active    int
	Paused    int
	Reference time.Time
	Source    ReferenceSource
	// PausesCounted - false, если паузы не учитывались (нет ID или журнал недоступен).
	PausesCounted bool
}

// ComputeActiveDays - чистая функция подсчёта активных дней по известным паузам.
//
// Опорная точка: now, либо начало открытой паузы, если подписка на паузе.
// Если подписка на паузе, а открытой паузы нет, используется дата реактивации,
// а при её отсутствии - дата записи. Паузы учитываются только до опорной точки.
func ComputeActiveDays(l *Learner, intervals []PauseInterval, now time.Time) ActiveDays {
	ref, source := referenceInstant(l, intervals, now)

	var paused time.Duration
	for _, p := range intervals {
		paused += p.DurationUntil(ref)
	}
	// Календарные дни и дни пауз округляются вниз по отдельности, затем вычитаются.
	pausedDays := timeutil.DurationDays(paused)
	return ActiveDays{
		Active:        max(0, timeutil.ElapsedDaysNonNegative(l.EnrolledAt, ref)-pausedDays),
		Paused:        pausedDays,
		Reference:     ref,
		Source:        source,
		PausesCounted: true,
	}
}

func referenceInstant(l *Learner, intervals []PauseInterval, now time.Time) (time.Time, ReferenceSource) {
	if !l.IsPaused() {
		return now, ReferenceNow
	}
	if open, ok := latestOpen(intervals, now); ok {
		return open.StartedAt, ReferencePauseStart
	}
	if l.ReactivatedAt != nil && !l.ReactivatedAt.IsZero() {
		return *l.ReactivatedAt, ReferenceReactivation
	}
	return l.EnrolledAt, ReferenceEnrollment
}

// latestOpen находит последнюю открытую паузу, начавшуюся не позже now.
func latestOpen(intervals []PauseInterval, now time.Time) (PauseInterval, bool) {
	var (
		found PauseInterval
		ok    bool
	)
	for _, p := range intervals {
		if !p.IsOpen() || p.StartedAt.After(now) {
			continue
		}
		if !ok || p.StartedAt.After(found.StartedAt) {
			found, ok = p, true
		}
	}
	return found, ok
}

// elapsedOnly - подсчёт без учёта пауз.
func elapsedOnly(l *Learner, now time.Time) ActiveDays {
	return ActiveDays{
		Active:    timeutil.ElapsedDaysNonNegative(l.EnrolledAt, now),
		Reference: now,
		Source:    ReferenceNow,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// ActiveDaysCalculator читает журнал пауз и считает активные дни.
type ActiveDaysCalculator struct {
	pauses PauseLedger
}

// NewActiveDaysCalculator создаёт калькулятор. pauses может быть nil:
// тогда паузы не учитываются.
func NewActiveDaysCalculator(pauses PauseLedger) *ActiveDaysCalculator {
	return &ActiveDaysCalculator{pauses: pauses}
}

// Calculate считает активные дни ученика на момент now.
//
// Результат всегда пригоден к использованию. Если возвращена ошибка,
// результат уже содержит деградированное значение:
//   - журнал пауз недоступен: прошедшие дни без вычета пауз, Paused = 0;
//   - некорректный контекст ученика: 0/0.
func (c *ActiveDaysCalculator) Calculate(ctx context.Context, l *Learner, now time.Time) (ActiveDays, error) {
	if l == nil || l.EnrolledAt.IsZero() {
		return ActiveDays{Reference: now, Source: ReferenceNow},
			shared.NewDomainError("learner", "CalculateActiveDays", shared.ErrInvalidInput, "learner has no enrollment date")
	}

	// Паузы привязаны к ID; по одному контактному ключу их не найти.
	if l.ID == "" || c.pauses == nil {
		return elapsedOnly(l, now), nil
	}

	intervals, err := c.pauses.ListPauseIntervals(ctx, l.ID, &now)
	if err != nil {
		return elapsedOnly(l, now), shared.WrapError("learner", "ListPauseIntervals",
			shared.ErrServiceUnavailable, "pause ledger unavailable", err)
	}

	return ComputeActiveDays(l, intervals, now), nil
}
