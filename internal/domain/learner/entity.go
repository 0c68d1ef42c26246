package learner

import (
	"strings"
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// SubscriptionState - состояние подписки ученика.
type SubscriptionState string

const (
	SubscriptionActive    SubscriptionState = "active"
	SubscriptionPaused    SubscriptionState = "paused"
	SubscriptionCancelled SubscriptionState = "cancelled"
)

// IsValid проверяет, что состояние известно.
func (s SubscriptionState) IsValid() bool {
	switch s {
	case SubscriptionActive, SubscriptionPaused, SubscriptionCancelled:
		return true
	}
	return false
}

// ParseSubscriptionState разбирает состояние подписки.
// Неизвестные значения трактуются как active: движок не должен блокироваться
// из-за нового статуса во внешней системе.
func ParseSubscriptionState(s string) SubscriptionState {
	st := SubscriptionState(strings.ToLower(strings.TrimSpace(s)))
	if st.IsValid() {
		return st
	}
	return SubscriptionActive
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER
// ══════════════════════════════════════════════════════════════════════════════

// Learner - типизированный контекст прогрессии ученика.
// Строится один раз на границе системы; движок читает только эти поля.
type Learner struct {
	// ID - внутренний идентификатор. Может быть пустым, если известен только ContactKey.
	ID string

	// ContactKey - альтернативный ключ (email). Используется для поиска оверрайдов.
	ContactKey string

	// EnrolledAt - момент записи.
	EnrolledAt time.Time

	// FixedLevel - уровень, зафиксированный администратором во внешней системе.
	// Движок его не применяет: источник истины - журнал оверрайдов.
	FixedLevel *int

	// Subscription - текущее состояние подписки.
	Subscription SubscriptionState

	// ReactivatedAt - момент последней реактивации подписки.
	ReactivatedAt *time.Time
}

// HasIdentity сообщает, можно ли идентифицировать ученика.
func (l *Learner) HasIdentity() bool {
	return l != nil && (strings.TrimSpace(l.ID) != "" || strings.TrimSpace(l.ContactKey) != "")
}

// IsPaused сообщает, отмечена ли подписка как приостановленная.
func (l *Learner) IsPaused() bool {
	return l.Subscription == SubscriptionPaused
}

// Key возвращает ключ для журналов: ID, а при его отсутствии - ContactKey.
func (l *Learner) Key() Key {
	return Key{LearnerID: strings.TrimSpace(l.ID), ContactKey: strings.TrimSpace(l.ContactKey)}
}

// Validate проверяет минимальные требования к контексту.
func (l *Learner) Validate() error {
	if !l.HasIdentity() {
		return shared.ErrLearnerIdentity
	}
	if l.EnrolledAt.IsZero() {
		return shared.NewDomainError("learner", "Validate", shared.ErrEmptyValue, "enrollment date is required")
	}
	if l.Subscription != "" && !l.Subscription.IsValid() {
		return shared.NewDomainError("learner", "Validate", shared.ErrInvalidInput, "unknown subscription state")
	}
	return nil
}

// Key - ключ поиска записи в журналах: по ID или по контактному ключу.
type Key struct {
	LearnerID  string
	ContactKey string
}

// String возвращает предпочтительное значение ключа.
func (k Key) String() string {
	if k.LearnerID != "" {
		return k.LearnerID
	}
	return k.ContactKey
}

// IsZero сообщает, что ключ пустой.
func (k Key) IsZero() bool {
	return k.LearnerID == "" && k.ContactKey == ""
}

// ══════════════════════════════════════════════════════════════════════════════
// PAUSE INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// PauseInterval - интервал паузы подписки. EndedAt == nil означает открытую паузу.
type PauseInterval struct {
	ID        string
	LearnerID string
	StartedAt time.Time
	EndedAt   *time.Time
}

// IsOpen сообщает, что пауза ещё не закрыта.
func (p PauseInterval) IsOpen() bool {
	return p.EndedAt == nil
}

// DurationUntil возвращает длительность части паузы, лежащей до cutoff.
// Открытая пауза считается продолжающейся до cutoff.
func (p PauseInterval) DurationUntil(cutoff time.Time) time.Duration {
	if !p.StartedAt.Before(cutoff) {
		return 0
	}
	end := cutoff
	if p.EndedAt != nil && p.EndedAt.Before(cutoff) {
		end = *p.EndedAt
	}
	if !end.After(p.StartedAt) {
		return 0
	}
	return end.Sub(p.StartedAt)
}
