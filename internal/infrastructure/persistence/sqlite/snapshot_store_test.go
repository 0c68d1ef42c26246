package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

func snapshot(id, learnerID string, level int, at time.Time) progress.Snapshot {
	return progress.Snapshot{
		ID: id, LearnerID: learnerID, BaseLevel: level, EffectiveLevel: level,
		PhaseID: "healing", PhaseName: "Healing", ActiveDays: level * 10,
		SnapshotAt: at, CreatedAt: at.Add(time.Second),
	}
}

func TestSnapshotStore_AppendAndList(t *testing.T) {
	store, err := Open(MemoryPath)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	require.NoError(t, store.Append(ctx, snapshot("a", "l1", 2, base)))
	require.NoError(t, store.Append(ctx, snapshot("b", "l1", 3, base.Add(24*time.Hour))))
	require.NoError(t, store.Append(ctx, snapshot("c", "l2", 5, base)))

	list, err := store.ListByLearner(ctx, "l1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, snapshot("a", "l1", 2, base), list[1])

	latest, err := store.Latest(ctx, "l2")
	require.NoError(t, err)
	assert.Equal(t, 5, latest.EffectiveLevel)
}

func TestSnapshotStore_AppendOnly(t *testing.T) {
	store, err := Open(MemoryPath)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, snapshot("a", "l1", 2, at)))

	// Same ID again: ignored, the stored row is untouched.
	require.NoError(t, store.Append(ctx, snapshot("a", "l1", 9, at)))
	list, err := store.ListByLearner(ctx, "l1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].EffectiveLevel)

	_, err = store.db.ExecContext(ctx, `UPDATE progress_snapshots SET effective_level = 9 WHERE id = 'a'`)
	assert.Error(t, err)

	err = store.Append(ctx, snapshot("z", "l1", 40, at))
	assert.Error(t, err)
}

func TestSnapshotStore_NotFound(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Latest(context.Background(), "nobody")
	assert.ErrorIs(t, err, shared.ErrSnapshotNotFound)

	list, err := store.ListByLearner(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
