// Package sqlite implements a file-backed snapshot log for single-node
// deployments and local tooling, where running PostgreSQL is not warranted.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// MemoryPath opens an in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS progress_snapshots (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    base_level INTEGER NOT NULL,
    effective_level INTEGER NOT NULL CHECK (effective_level BETWEEN 1 AND 15),
    phase_id TEXT NOT NULL,
    phase_name TEXT NOT NULL,
    active_days INTEGER NOT NULL,
    paused_days INTEGER NOT NULL,
    snapshot_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progress_snapshots_learner
    ON progress_snapshots(learner_id, snapshot_at DESC);

CREATE TRIGGER IF NOT EXISTS progress_snapshots_no_update
BEFORE UPDATE ON progress_snapshots
BEGIN
    SELECT RAISE(ABORT, 'progress snapshots are append-only');
END;
`

// SnapshotStore implements progress.SnapshotRepository on SQLite.
// Timestamps are stored as Unix nanoseconds so ordering is numeric.
type SnapshotStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*SnapshotStore, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: applying schema: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

// Close closes the database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Append inserts a snapshot. Re-appending an existing ID is a no-op.
func (s *SnapshotStore) Append(ctx context.Context, snap progress.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_snapshots (
			id, learner_id, base_level, effective_level, phase_id, phase_name,
			active_days, paused_days, snapshot_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		snap.ID, snap.LearnerID, snap.BaseLevel, snap.EffectiveLevel, snap.PhaseID, snap.PhaseName,
		snap.ActiveDays, snap.PausedDays, snap.SnapshotAt.UnixNano(), snap.CreatedAt.UnixNano(),
	)
	if err != nil {
		return shared.WrapError("progress", "AppendSnapshot", shared.ErrServiceUnavailable, "sqlite insert failed", err)
	}
	return nil
}

// Latest returns the newest snapshot for the learner.
func (s *SnapshotStore) Latest(ctx context.Context, learnerID string) (*progress.Snapshot, error) {
	list, err := s.ListByLearner(ctx, learnerID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, shared.ErrSnapshotNotFound
	}
	return &list[0], nil
}

// ListByLearner returns snapshots newest first.
func (s *SnapshotStore) ListByLearner(ctx context.Context, learnerID string, limit int) ([]progress.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_id, base_level, effective_level, phase_id, phase_name,
		       active_days, paused_days, snapshot_at, created_at
		FROM progress_snapshots
		WHERE learner_id = ?
		ORDER BY snapshot_at DESC, created_at DESC, id DESC
		LIMIT ?`, learnerID, limit)
	if err != nil {
		return nil, shared.WrapError("progress", "ListSnapshots", shared.ErrServiceUnavailable, "sqlite query failed", err)
	}
	defer rows.Close()

	out := []progress.Snapshot{}
	for rows.Next() {
		var (
			snap                  progress.Snapshot
			snapshotAt, createdAt int64
		)
		if err := rows.Scan(&snap.ID, &snap.LearnerID, &snap.BaseLevel, &snap.EffectiveLevel,
			&snap.PhaseID, &snap.PhaseName, &snap.ActiveDays, &snap.PausedDays, &snapshotAt, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snapshot: %w", err)
		}
		snap.SnapshotAt = time.Unix(0, snapshotAt).UTC()
		snap.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: reading snapshots: %w", err)
	}
	return out, nil
}
