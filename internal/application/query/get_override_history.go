package query

import (
	"context"
	"fmt"

	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET OVERRIDE HISTORY QUERY
// Путь чтения журнала оверрайдов: полная история и активная запись.
// В отличие от движка, ошибки хранилища возвращаются вызывающему коду.
// ══════════════════════════════════════════════════════════════════════════════

// GetOverrideHistoryQuery - запрос истории оверрайдов.
type GetOverrideHistoryQuery struct {
	// LearnerID - внутренний идентификатор ученика.
	LearnerID string

	// ContactKey - альтернативный ключ, используется если LearnerID пуст.
	ContactKey string

	// IncludeRevoked включает отозванные записи в Entries.
	IncludeRevoked bool
}

// Validate проверяет запрос.
func (q GetOverrideHistoryQuery) Validate() error {
	if q.key().IsZero() {
		return shared.ErrLearnerIdentity
	}
	return nil
}

func (q GetOverrideHistoryQuery) key() learner.Key {
	return learner.Key{LearnerID: q.LearnerID, ContactKey: q.ContactKey}
}

// OverrideHistoryResult - результат запроса.
type OverrideHistoryResult struct {
	Key learner.Key

	// Active - действующий оверрайд или nil.
	Active *level.Override

	// Entries - история от новых к старым.
	Entries []level.Override

	// RevokedCount - число отозванных записей в полной истории.
	RevokedCount int
}

// GetOverrideHistoryHandler обрабатывает запрос.
type GetOverrideHistoryHandler struct {
	ledger level.OverrideLedger
}

// NewGetOverrideHistoryHandler создаёт обработчик.
func NewGetOverrideHistoryHandler(ledger level.OverrideLedger) *GetOverrideHistoryHandler {
	return &GetOverrideHistoryHandler{ledger: ledger}
}

// Handle читает историю и выбирает активный оверрайд тем же правилом, что и журнал.
func (h *GetOverrideHistoryHandler) Handle(ctx context.Context, q GetOverrideHistoryQuery) (*OverrideHistoryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_override_history: %w", err)
	}

	history, err := h.ledger.History(ctx, q.key())
	if err != nil {
		return nil, shared.WrapError("level", "History", shared.ErrServiceUnavailable,
			"override ledger unavailable", err)
	}
	level.SortHistory(history)

	result := &OverrideHistoryResult{
		Key:     q.key(),
		Active:  level.SelectActive(history),
		Entries: make([]level.Override, 0, len(history)),
	}
	for _, o := range history {
		if o.IsRevoked() {
			result.RevokedCount++
			if !q.IncludeRevoked {
				continue
			}
		}
		result.Entries = append(result.Entries, o)
	}

	return result, nil
}
