package learner

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// PauseLedger - журнал пауз (только чтение).
type PauseLedger interface {
	// ListPauseIntervals возвращает паузы ученика в порядке начала.
	// Если cutoff задан, возвращаются только паузы, начавшиеся до cutoff.
	// Отсутствие пауз - пустой список, а не ошибка.
	ListPauseIntervals(ctx context.Context, learnerID string, cutoff *time.Time) ([]PauseInterval, error)
}

// Repository - каталог учеников для пакетных вызовов (пересчёт, снапшоты).
type Repository interface {
	// GetByID возвращает ученика по ID.
	// Возвращает ErrLearnerNotFound, если ученик не найден.
	GetByID(ctx context.Context, id string) (*Learner, error)

	// GetByContactKey возвращает ученика по контактному ключу.
	// Возвращает ErrLearnerNotFound, если ученик не найден.
	GetByContactKey(ctx context.Context, key string) (*Learner, error)

	// List возвращает учеников постранично, упорядоченных по ID.
	List(ctx context.Context, opts ListOptions) ([]*Learner, error)
}

// ListOptions - параметры пагинации.
type ListOptions struct {
	// AfterID - курсор: вернуть учеников с ID больше указанного.
	AfterID string

	// Limit - максимальное количество записей.
	Limit int

	// IncludeCancelled - включать учеников с отменённой подпиской.
	IncludeCancelled bool
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 200}
}
