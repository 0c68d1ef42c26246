package command

import (
	"context"
	"errors"
	"time"

	"github.com/auri-hub/progress-hub/internal/application/query"
	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
	"github.com/auri-hub/progress-hub/pkg/logger"
	"github.com/auri-hub/progress-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE PROGRESS COMMAND
// Runs the progress engine for one learner and optionally captures a snapshot.
// Computation never fails; only the snapshot write can return an error.
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeProgressCommand contains the data needed to recompute progress.
type RecomputeProgressCommand struct {
	// Learner is the progression context built at the boundary.
	Learner *learner.Learner

	// At is the reference instant. Zero means "now".
	At time.Time

	// DryRun skips the snapshot write.
	DryRun bool
}

// RecomputeProgressResult contains the outcome.
type RecomputeProgressResult struct {
	Result progress.Result

	// Snapshot is nil for dry runs and for learners without an internal ID.
	Snapshot *progress.Snapshot
}

// Engine is the part of the progress engine this command depends on.
type Engine interface {
	Handle(ctx context.Context, q query.ComputeProgressQuery) progress.Result
}

// RecomputeProgressHandler handles RecomputeProgressCommand.
type RecomputeProgressHandler struct {
	engine   Engine
	snapshot *WriteSnapshotHandler
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewRecomputeProgressHandler creates a new handler. retrier may be nil.
func NewRecomputeProgressHandler(
	engine Engine,
	snapshot *WriteSnapshotHandler,
	retrier *retry.Retrier,
	log *logger.Logger,
) *RecomputeProgressHandler {
	if retrier == nil {
		retrier = retry.New(retry.WithMaxAttempts(1))
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RecomputeProgressHandler{
		engine:   engine,
		snapshot: snapshot,
		retrier:  retrier,
		log:      log.With(logger.Component("recompute_progress")),
	}
}

// Handle recomputes progress and writes a snapshot.
func (h *RecomputeProgressHandler) Handle(ctx context.Context, cmd RecomputeProgressCommand) (*RecomputeProgressResult, error) {
	result := h.engine.Handle(ctx, query.ComputeProgressQuery{
		Learner:          cmd.Learner,
		ReferenceInstant: cmd.At,
	})
	out := &RecomputeProgressResult{Result: result}

	if cmd.DryRun || h.snapshot == nil {
		return out, nil
	}
	if cmd.Learner == nil || cmd.Learner.ID == "" {
		h.log.Debug("skipping snapshot for learner without internal id",
			logger.ContactKey(contactKeyOf(cmd.Learner)))
		return out, nil
	}

	id := h.snapshot.NewID()
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		snap, err := h.snapshot.Handle(ctx, WriteSnapshotCommand{
			ID:         id,
			LearnerID:  cmd.Learner.ID,
			Result:     result,
			SnapshotAt: cmd.At,
		})
		if err != nil {
			if shared.IsRetryable(err) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		}
		out.Snapshot = snap
		return nil
	})
	if err != nil {
		h.log.Error("snapshot write failed", logger.LearnerID(cmd.Learner.ID), logger.Err(err))
		return out, errors.Join(errors.New("recompute_progress: write snapshot"), err)
	}

	return out, nil
}

func contactKeyOf(l *learner.Learner) string {
	if l == nil {
		return ""
	}
	return l.ContactKey
}
