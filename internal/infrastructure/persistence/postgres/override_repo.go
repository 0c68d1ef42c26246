package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// OVERRIDE LEDGER (READ PATH)
// ══════════════════════════════════════════════════════════════════════════════

// OverrideRepository implements level.OverrideLedger. The ledger is written by
// the admin tooling; this repository never modifies it.
type OverrideRepository struct {
	conn    Querier
	breaker *circuitbreaker.CircuitBreaker
}

// NewOverrideRepository creates a new OverrideRepository. breaker may be nil.
func NewOverrideRepository(conn Querier, breaker *circuitbreaker.CircuitBreaker) *OverrideRepository {
	return &OverrideRepository{conn: conn, breaker: breaker}
}

const overrideColumns = `id, learner_id, contact_key, operator, value, reason, created_by, created_at, revoked_at, revoked_by`

// keyFilter matches by learner ID when present, otherwise by contact key.
const keyFilter = `(($1 <> '' AND learner_id = $1) OR ($1 = '' AND lower(contact_key) = lower($2)))`

// GetActiveOverride returns the newest non-revoked override, or nil.
func (r *OverrideRepository) GetActiveOverride(ctx context.Context, key learner.Key) (*level.Override, error) {
	if key.IsZero() {
		return nil, nil
	}

	query := `SELECT ` + overrideColumns + ` FROM level_overrides
		WHERE ` + keyFilter + ` AND revoked_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	o, err := guard(ctx, r.breaker, func(ctx context.Context) (*level.Override, error) {
		o, err := scanOverride(r.conn.QueryRow(ctx, query, key.LearnerID, key.ContactKey))
		if IsNoRows(err) {
			return nil, nil
		}
		return o, err
	})
	if err != nil {
		return nil, classify("level", "GetActiveOverride", err)
	}
	return o, nil
}

// History returns every override for the key, revoked ones included, newest first.
func (r *OverrideRepository) History(ctx context.Context, key learner.Key) ([]level.Override, error) {
	if key.IsZero() {
		return []level.Override{}, nil
	}

	query := `SELECT ` + overrideColumns + ` FROM level_overrides
		WHERE ` + keyFilter + `
		ORDER BY created_at DESC, id DESC`

	out, err := guard(ctx, r.breaker, func(ctx context.Context) ([]level.Override, error) {
		rows, err := r.conn.Query(ctx, query, key.LearnerID, key.ContactKey)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (level.Override, error) {
			o, err := scanOverride(row)
			if err != nil {
				return level.Override{}, err
			}
			return *o, nil
		})
	})
	if err != nil {
		return nil, classify("level", "History", err)
	}
	if out == nil {
		out = []level.Override{}
	}
	return out, nil
}

func scanOverride(row pgx.Row) (*level.Override, error) {
	var (
		o          level.Override
		learnerID  *string
		contactKey *string
		operator   string
		value      int32
	)
	err := row.Scan(&o.ID, &learnerID, &contactKey, &operator, &value,
		&o.Reason, &o.CreatedBy, &o.CreatedAt, &o.RevokedAt, &o.RevokedBy)
	if err != nil {
		return nil, err
	}
	if learnerID != nil {
		o.LearnerID = *learnerID
	}
	if contactKey != nil {
		o.ContactKey = *contactKey
	}
	o.Operator = level.ParseOperator(operator)
	o.Value = int(value)
	return &o, nil
}
