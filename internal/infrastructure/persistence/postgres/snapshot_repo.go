package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY IMPLEMENTATION
// Append-only: no UPDATE or DELETE statements exist for this table.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements progress.SnapshotRepository.
type SnapshotRepository struct {
	conn Querier
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn Querier) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

const snapshotColumns = `id, learner_id, base_level, effective_level, phase_id, phase_name,
	active_days, paused_days, snapshot_at, created_at`

// Append inserts a snapshot. Re-appending an existing ID is a no-op, so a
// retried insert whose first attempt committed does not duplicate the row.
func (r *SnapshotRepository) Append(ctx context.Context, s progress.Snapshot) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO progress_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.LearnerID, s.BaseLevel, s.EffectiveLevel, s.PhaseID, s.PhaseName,
		s.ActiveDays, s.PausedDays, s.SnapshotAt, s.CreatedAt,
	)
	return classify("progress", "AppendSnapshot", err)
}

// Latest returns the newest snapshot for the learner.
func (r *SnapshotRepository) Latest(ctx context.Context, learnerID string) (*progress.Snapshot, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+snapshotColumns+` FROM progress_snapshots
		WHERE learner_id = $1
		ORDER BY snapshot_at DESC, created_at DESC
		LIMIT 1`, learnerID)

	s, err := scanSnapshot(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSnapshotNotFound
		}
		return nil, classify("progress", "LatestSnapshot", err)
	}
	return &s, nil
}

// ListByLearner returns snapshots newest first.
func (r *SnapshotRepository) ListByLearner(ctx context.Context, learnerID string, limit int) ([]progress.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(ctx, `
		SELECT `+snapshotColumns+` FROM progress_snapshots
		WHERE learner_id = $1
		ORDER BY snapshot_at DESC, created_at DESC
		LIMIT $2`, learnerID, limit)
	if err != nil {
		return nil, classify("progress", "ListSnapshots", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (progress.Snapshot, error) {
		return scanSnapshot(row)
	})
	if err != nil {
		return nil, classify("progress", "ListSnapshots", err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (progress.Snapshot, error) {
	var s progress.Snapshot
	err := row.Scan(&s.ID, &s.LearnerID, &s.BaseLevel, &s.EffectiveLevel, &s.PhaseID, &s.PhaseName,
		&s.ActiveDays, &s.PausedDays, &s.SnapshotAt, &s.CreatedAt)
	return s, err
}
