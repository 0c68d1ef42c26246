package progress

import (
	"context"
	"time"
)

// Snapshot - точечная копия результата. Поля отладки не сохраняются.
type Snapshot struct {
	ID             string
	LearnerID      string
	BaseLevel      int
	EffectiveLevel int
	PhaseID        string
	PhaseName      string
	ActiveDays     int
	PausedDays     int
	SnapshotAt     time.Time
	CreatedAt      time.Time
}

// NewSnapshot строит снапшот из результата. ID и CreatedAt заполняет писатель.
func NewSnapshot(learnerID string, r Result, at time.Time) Snapshot {
	return Snapshot{
		LearnerID:      learnerID,
		BaseLevel:      r.BaseLevel,
		EffectiveLevel: r.EffectiveLevel,
		PhaseID:        r.EffectivePhase.ID,
		PhaseName:      r.EffectivePhase.Name,
		ActiveDays:     r.ActiveDays,
		PausedDays:     r.PausedDays,
		SnapshotAt:     at,
	}
}

// SnapshotRepository - хранилище снапшотов (только добавление).
type SnapshotRepository interface {
	// Append сохраняет снапшот. Существующие записи не изменяются и не удаляются.
	Append(ctx context.Context, s Snapshot) error

	// Latest возвращает последний снапшот ученика.
	// Возвращает ErrSnapshotNotFound, если снапшотов нет.
	Latest(ctx context.Context, learnerID string) (*Snapshot, error)

	// ListByLearner возвращает снапшоты ученика от новых к старым.
	ListByLearner(ctx context.Context, learnerID string, limit int) ([]Snapshot, error)
}
