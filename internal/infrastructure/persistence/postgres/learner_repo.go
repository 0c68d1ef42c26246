package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
	"github.com/auri-hub/progress-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LearnerRepository implements learner.Repository and learner.PauseLedger.
type LearnerRepository struct {
	conn    Querier
	breaker *circuitbreaker.CircuitBreaker
}

// NewLearnerRepository creates a new LearnerRepository. breaker may be nil.
func NewLearnerRepository(conn Querier, breaker *circuitbreaker.CircuitBreaker) *LearnerRepository {
	return &LearnerRepository{conn: conn, breaker: breaker}
}

const learnerColumns = `id, contact_key, enrolled_at, fixed_level, subscription, reactivated_at`

// GetByID returns a learner by internal ID.
func (r *LearnerRepository) GetByID(ctx context.Context, id string) (*learner.Learner, error) {
	return r.getOne(ctx, "GetByID", `SELECT `+learnerColumns+` FROM learners WHERE id = $1`, id)
}

// GetByContactKey returns a learner by contact key (case-insensitive).
func (r *LearnerRepository) GetByContactKey(ctx context.Context, key string) (*learner.Learner, error) {
	return r.getOne(ctx, "GetByContactKey",
		`SELECT `+learnerColumns+` FROM learners WHERE lower(contact_key) = lower($1)`,
		strings.TrimSpace(key))
}

func (r *LearnerRepository) getOne(ctx context.Context, op, query string, arg string) (*learner.Learner, error) {
	// A missing row is an answer, not a database failure; keep it off the breaker.
	l, err := guard(ctx, r.breaker, func(ctx context.Context) (*learner.Learner, error) {
		l, err := scanLearner(r.conn.QueryRow(ctx, query, arg))
		if IsNoRows(err) {
			return nil, nil
		}
		return l, err
	})
	if err != nil {
		return nil, classify("learner", op, err)
	}
	if l == nil {
		return nil, shared.ErrLearnerNotFound
	}
	return l, nil
}

// List returns learners ordered by ID, starting after opts.AfterID.
func (r *LearnerRepository) List(ctx context.Context, opts learner.ListOptions) ([]*learner.Learner, error) {
	if opts.Limit <= 0 {
		opts.Limit = learner.DefaultListOptions().Limit
	}

	query := `SELECT ` + learnerColumns + ` FROM learners WHERE id > $1`
	if !opts.IncludeCancelled {
		query += ` AND subscription <> 'cancelled'`
	}
	query += ` ORDER BY id LIMIT $2`

	out, err := guard(ctx, r.breaker, func(ctx context.Context) ([]*learner.Learner, error) {
		rows, err := r.conn.Query(ctx, query, opts.AfterID, opts.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var learners []*learner.Learner
		for rows.Next() {
			l, err := scanLearner(rows)
			if err != nil {
				return nil, err
			}
			learners = append(learners, l)
		}
		return learners, rows.Err()
	})
	if err != nil {
		return nil, classify("learner", "List", err)
	}
	return out, nil
}

func scanLearner(row pgx.Row) (*learner.Learner, error) {
	var (
		l            learner.Learner
		contactKey   *string
		fixedLevel   *int32
		subscription string
	)
	if err := row.Scan(&l.ID, &contactKey, &l.EnrolledAt, &fixedLevel, &subscription, &l.ReactivatedAt); err != nil {
		return nil, err
	}
	if contactKey != nil {
		l.ContactKey = *contactKey
	}
	if fixedLevel != nil {
		v := int(*fixedLevel)
		l.FixedLevel = &v
	}
	l.Subscription = learner.ParseSubscriptionState(subscription)
	l.EnrolledAt = l.EnrolledAt.UTC()
	return &l, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Pause ledger
// ─────────────────────────────────────────────────────────────────────────────

// ListPauseIntervals returns the learner's pauses ordered by start.
// With a cutoff, only pauses that started before it are returned.
func (r *LearnerRepository) ListPauseIntervals(ctx context.Context, learnerID string, cutoff *time.Time) ([]learner.PauseInterval, error) {
	query := `SELECT id, learner_id, started_at, ended_at FROM pause_intervals WHERE learner_id = $1`
	args := []any{learnerID}
	if cutoff != nil {
		query += ` AND started_at < $2`
		args = append(args, *cutoff)
	}
	query += ` ORDER BY started_at, id`

	out, err := guard(ctx, r.breaker, func(ctx context.Context) ([]learner.PauseInterval, error) {
		rows, err := r.conn.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (learner.PauseInterval, error) {
			var p learner.PauseInterval
			err := row.Scan(&p.ID, &p.LearnerID, &p.StartedAt, &p.EndedAt)
			return p, err
		})
	})
	if err != nil {
		return nil, classify("learner", "ListPauseIntervals", err)
	}
	if out == nil {
		out = []learner.PauseInterval{}
	}
	return out, nil
}

// guard runs fn through the breaker when one is configured.
func guard[T any](ctx context.Context, cb *circuitbreaker.CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	if cb == nil {
		return fn(ctx)
	}
	v, err := circuitbreaker.Call(ctx, cb, fn)
	if err != nil && circuitbreaker.IsRejected(err) {
		var zero T
		return zero, shared.WrapError("postgres", cb.Name(), shared.ErrServiceUnavailable,
			fmt.Sprintf("circuit %s is open", cb.Name()), err)
	}
	return v, err
}
