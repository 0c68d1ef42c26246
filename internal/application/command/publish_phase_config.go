package command

import (
	"context"
	"errors"
	"strings"

	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
	"github.com/auri-hub/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH PHASE CONFIG COMMAND
// Stores a new version of the admin phase config. Invalid configs are
// refused here; the engine still tolerates invalid stored documents.
// ══════════════════════════════════════════════════════════════════════════════

// PhaseConfigStore persists versioned phase config documents.
type PhaseConfigStore interface {
	LatestDigest(ctx context.Context) (string, error)
	Publish(ctx context.Context, raw []phase.RawDefinition, digest, author string) (int64, error)
}

// CacheInvalidator drops shared copies of the phase config.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// PublishPhaseConfigCommand contains a document to publish.
type PublishPhaseConfigCommand struct {
	Raw    []phase.RawDefinition
	Digest string
	Author string

	// Force publishes even when the digest matches the newest version.
	Force bool
}

// Validate validates the command.
func (c PublishPhaseConfigCommand) Validate() error {
	if strings.TrimSpace(c.Digest) == "" {
		return errors.New("publish_phase_config: digest is required")
	}
	if strings.TrimSpace(c.Author) == "" {
		return errors.New("publish_phase_config: author is required")
	}
	return nil
}

// PublishPhaseConfigResult describes the outcome.
type PublishPhaseConfigResult struct {
	Version   int64
	Unchanged bool
	Phases    []phase.Definition
}

// PublishPhaseConfigHandler handles PublishPhaseConfigCommand.
type PublishPhaseConfigHandler struct {
	store PhaseConfigStore
	cache CacheInvalidator
	log   *logger.Logger
}

// NewPublishPhaseConfigHandler creates a new handler. cache may be nil.
func NewPublishPhaseConfigHandler(store PhaseConfigStore, cache CacheInvalidator, log *logger.Logger) *PublishPhaseConfigHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &PublishPhaseConfigHandler{store: store, cache: cache, log: log.With(logger.Component("phase_publish"))}
}

// Handle validates and stores the document.
func (h *PublishPhaseConfigHandler) Handle(ctx context.Context, cmd PublishPhaseConfigCommand) (*PublishPhaseConfigResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("phase", "Publish", shared.ErrValidation, "invalid publish command", err)
	}

	res := phase.ValidateAndNormalize(cmd.Raw)
	if !res.OK {
		return nil, res.Err()
	}
	out := &PublishPhaseConfigResult{Phases: res.Normalized}

	if !cmd.Force {
		latest, err := h.store.LatestDigest(ctx)
		if err != nil {
			return nil, err
		}
		if latest == cmd.Digest {
			out.Unchanged = true
			h.log.Info("phase config unchanged, not publishing", logger.String("digest", cmd.Digest))
			return out, nil
		}
	}

	version, err := h.store.Publish(ctx, cmd.Raw, cmd.Digest, cmd.Author)
	if err != nil {
		return nil, err
	}
	out.Version = version

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.log.Warn("failed to invalidate phase config cache", logger.Err(err))
		}
	}

	h.log.Info("phase config published",
		logger.Int64("version", version),
		logger.String("digest", cmd.Digest),
		logger.String("author", cmd.Author),
		logger.Int("phases", len(res.Normalized)),
	)
	return out, nil
}
