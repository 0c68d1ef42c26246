package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/phase"
)

// ══════════════════════════════════════════════════════════════════════════════
// PHASE CONFIG CACHE
// Shares the raw admin config between processes. The cache is advisory:
// any Redis failure falls through to the underlying source.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// KeyPhaseConfig holds the raw phase config document.
	KeyPhaseConfig = PrefixPhase + "config:raw:v2"

	// ChannelPhaseConfig carries invalidation notices.
	ChannelPhaseConfig = PrefixPubSub + "phase-config"
)

// byteStore is the subset of Cache used by PhaseConfigCache.
type byteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Publish(ctx context.Context, channel, message string) error
}

// PhaseConfigCache implements phase.Source on top of another source.
type PhaseConfigCache struct {
	store  byteStore
	next   phase.Source
	ttl    time.Duration
	logger *slog.Logger
}

// NewPhaseConfigCache wraps next. ttl <= 0 uses TTLPhaseConfig.
func NewPhaseConfigCache(store byteStore, next phase.Source, ttl time.Duration, logger *slog.Logger) *PhaseConfigCache {
	if ttl <= 0 {
		ttl = TTLPhaseConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PhaseConfigCache{store: store, next: next, ttl: ttl, logger: logger}
}

// GetRawPhaseConfig returns the cached document or loads it from next.
func (c *PhaseConfigCache) GetRawPhaseConfig(ctx context.Context) ([]phase.RawDefinition, error) {
	data, err := c.store.GetBytes(ctx, KeyPhaseConfig)
	switch {
	case err == nil:
		var entries []cachedDefinition
		if jerr := json.Unmarshal(data, &entries); jerr == nil {
			return decodeEntries(entries), nil
		}
		c.logger.Warn("dropping undecodable phase config cache entry")
		_ = c.store.Delete(ctx, KeyPhaseConfig)
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("phase config cache unavailable, reading source", "error", err)
	}

	raw, err := c.next.GetRawPhaseConfig(ctx)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(encodeEntries(raw)); jerr == nil {
		if serr := c.store.SetBytes(ctx, KeyPhaseConfig, data, c.ttl); serr != nil {
			c.logger.Warn("failed to cache phase config", "error", serr)
		}
	}
	return raw, nil
}

// cachedDefinition stores a raw definition with the bound kinds and the
// malformed marker intact, so a cached document validates exactly like the
// source document.
type cachedDefinition struct {
	Name        string      `json:"name"`
	LevelMin    cachedBound `json:"level_min"`
	LevelMax    cachedBound `json:"level_max"`
	Description string      `json:"description,omitempty"`
	Order       int         `json:"order,omitempty"`
	Malformed   string      `json:"malformed,omitempty"`
}

type cachedBound struct {
	Kind phase.BoundKind `json:"kind"`
	Text string          `json:"text,omitempty"`
}

func encodeEntries(raw []phase.RawDefinition) []cachedDefinition {
	out := make([]cachedDefinition, len(raw))
	for i, r := range raw {
		out[i] = cachedDefinition{
			Name:        r.Name,
			LevelMin:    cachedBound{Kind: r.LevelMin.Kind, Text: r.LevelMin.Text},
			LevelMax:    cachedBound{Kind: r.LevelMax.Kind, Text: r.LevelMax.Text},
			Description: r.Description,
			Order:       r.Order,
			Malformed:   r.Malformed(),
		}
	}
	return out
}

func decodeEntries(entries []cachedDefinition) []phase.RawDefinition {
	out := make([]phase.RawDefinition, len(entries))
	for i, e := range entries {
		if e.Malformed != "" {
			out[i] = phase.MalformedDefinition(e.Malformed)
			continue
		}
		out[i] = phase.RawDefinition{
			Name:        e.Name,
			LevelMin:    phase.Bound{Kind: e.LevelMin.Kind, Text: e.LevelMin.Text},
			LevelMax:    phase.Bound{Kind: e.LevelMax.Kind, Text: e.LevelMax.Text},
			Description: e.Description,
			Order:       e.Order,
		}
	}
	return out
}

// Invalidate drops the shared entry and notifies subscribers.
func (c *PhaseConfigCache) Invalidate(ctx context.Context) error {
	if err := c.store.Delete(ctx, KeyPhaseConfig); err != nil {
		return err
	}
	return c.store.Publish(ctx, ChannelPhaseConfig, "invalidate")
}

// WatchInvalidations calls onInvalidate for every notice until ctx is done.
// Used to drop in-process caches (phase.CachedSource) layered above this one.
func (c *Cache) WatchInvalidations(ctx context.Context, onInvalidate func()) error {
	sub := c.client.Subscribe(ctx, ChannelPhaseConfig)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			onInvalidate()
		}
	}
}
