// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
// The only state this core writes is the append-only progress snapshot log.
package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WRITE SNAPSHOT COMMAND
// Persists a point-in-time copy of an engine result.
// Snapshots are derived data: they are never read back into a computation.
// ══════════════════════════════════════════════════════════════════════════════

// WriteSnapshotCommand contains the data needed to persist a snapshot.
type WriteSnapshotCommand struct {
	// ID identifies the snapshot. Empty means a fresh one is generated.
	// Retries of the same write must reuse it so a committed insert is not duplicated.
	ID string

	// LearnerID is required: snapshots are keyed by internal ID only.
	LearnerID string

	// Result is the engine output to capture.
	Result progress.Result

	// SnapshotAt is the instant the result was computed for.
	// Zero means "now" according to the handler's clock.
	SnapshotAt time.Time
}

// Validate validates the command.
func (c WriteSnapshotCommand) Validate() error {
	if strings.TrimSpace(c.LearnerID) == "" {
		return errors.New("write_snapshot: learner_id is required")
	}
	if c.Result.EffectiveLevel == 0 {
		return errors.New("write_snapshot: result has no effective level")
	}
	return nil
}

// WriteSnapshotHandler handles WriteSnapshotCommand.
type WriteSnapshotHandler struct {
	repo  progress.SnapshotRepository
	clock timeutil.Clock
	newID func() string
}

// NewWriteSnapshotHandler creates a new handler.
func NewWriteSnapshotHandler(repo progress.SnapshotRepository, clock timeutil.Clock) *WriteSnapshotHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &WriteSnapshotHandler{
		repo:  repo,
		clock: clock,
		newID: uuid.NewString,
	}
}

// NewID returns a fresh snapshot ID.
func (h *WriteSnapshotHandler) NewID() string {
	return h.newID()
}

// Handle appends a snapshot and returns the stored record.
// Storage errors are joined with ErrSnapshotWrite, which is retryable.
func (h *WriteSnapshotHandler) Handle(ctx context.Context, cmd WriteSnapshotCommand) (*progress.Snapshot, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progress", "WriteSnapshot", shared.ErrValidation, "invalid snapshot command", err)
	}

	now := h.clock.Now().UTC()
	at := cmd.SnapshotAt
	if at.IsZero() {
		at = now
	}

	snap := progress.NewSnapshot(cmd.LearnerID, cmd.Result, at.UTC())
	snap.ID = cmd.ID
	if snap.ID == "" {
		snap.ID = h.newID()
	}
	snap.CreatedAt = now

	if err := h.repo.Append(ctx, snap); err != nil {
		return nil, errors.Join(shared.ErrSnapshotWrite, err)
	}

	return &snap, nil
}
