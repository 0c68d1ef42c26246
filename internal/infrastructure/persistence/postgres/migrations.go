package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return count, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}

	return count, nil
}

// Status returns the migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_learners", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_ledgers", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_phase_configs", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_progress_snapshots", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: LEARNERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS learners (
    id TEXT PRIMARY KEY,
    contact_key TEXT UNIQUE,
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL,
    fixed_level INTEGER,
    subscription TEXT NOT NULL DEFAULT 'active'
        CHECK (subscription IN ('active', 'paused', 'cancelled')),
    reactivated_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_learners_subscription ON learners(subscription);
`

const migration001Down = `
DROP TABLE IF EXISTS learners;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PAUSE AND OVERRIDE LEDGERS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS pause_intervals (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL REFERENCES learners(id) ON DELETE CASCADE,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE,
    CHECK (ended_at IS NULL OR ended_at >= started_at)
);

CREATE INDEX IF NOT EXISTS idx_pause_intervals_learner ON pause_intervals(learner_id, started_at);

-- Append-only: rows are never updated except for soft revocation.
CREATE TABLE IF NOT EXISTS level_overrides (
    id TEXT PRIMARY KEY,
    learner_id TEXT,
    contact_key TEXT,
    operator TEXT NOT NULL,
    value INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    revoked_at TIMESTAMP WITH TIME ZONE,
    revoked_by TEXT NOT NULL DEFAULT '',
    CHECK (learner_id IS NOT NULL OR contact_key IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_level_overrides_learner ON level_overrides(learner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_level_overrides_contact ON level_overrides(contact_key, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS level_overrides;
DROP TABLE IF EXISTS pause_intervals;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PHASE CONFIGS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Raw admin-authored documents. Validation happens on read.
CREATE TABLE IF NOT EXISTS phase_configs (
    version BIGSERIAL PRIMARY KEY,
    document JSONB NOT NULL,
    digest TEXT NOT NULL DEFAULT '',
    published_by TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS phase_configs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: PROGRESS SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS progress_snapshots (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    base_level INTEGER NOT NULL,
    effective_level INTEGER NOT NULL CHECK (effective_level BETWEEN 1 AND 15),
    phase_id TEXT NOT NULL,
    phase_name TEXT NOT NULL,
    active_days INTEGER NOT NULL,
    paused_days INTEGER NOT NULL,
    snapshot_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_progress_snapshots_learner ON progress_snapshots(learner_id, snapshot_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS progress_snapshots;
`
