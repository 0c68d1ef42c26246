package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
	"github.com/auri-hub/progress-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// PHASE CONFIG STORE
// Documents are stored raw and versioned; the newest version is authoritative.
// ══════════════════════════════════════════════════════════════════════════════

// PhaseConfigVersion describes one published document.
type PhaseConfigVersion struct {
	Version     int64
	Digest      string
	PublishedBy string
	PublishedAt time.Time
}

// PhaseConfigRepository implements phase.Source over the phase_configs table.
type PhaseConfigRepository struct {
	conn    Querier
	breaker *circuitbreaker.CircuitBreaker
}

// NewPhaseConfigRepository creates a new PhaseConfigRepository. breaker may be nil.
func NewPhaseConfigRepository(conn Querier, breaker *circuitbreaker.CircuitBreaker) *PhaseConfigRepository {
	return &PhaseConfigRepository{conn: conn, breaker: breaker}
}

// GetRawPhaseConfig returns the newest document. No published document
// yields an empty config, which the validator rejects as empty.
func (r *PhaseConfigRepository) GetRawPhaseConfig(ctx context.Context) ([]phase.RawDefinition, error) {
	doc, err := guard(ctx, r.breaker, func(ctx context.Context) ([]byte, error) {
		var doc []byte
		err := r.conn.QueryRow(ctx, `SELECT document FROM phase_configs ORDER BY version DESC LIMIT 1`).Scan(&doc)
		if IsNoRows(err) {
			return nil, nil
		}
		return doc, err
	})
	if err != nil {
		return nil, classify("phase", "GetRawPhaseConfig", err)
	}
	if doc == nil {
		return []phase.RawDefinition{}, nil
	}
	return DecodePhaseDocument(doc)
}

// DecodePhaseDocument decodes a stored JSON document into raw definitions.
func DecodePhaseDocument(doc []byte) ([]phase.RawDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, shared.WrapError("phase", "Decode", shared.ErrInvalidFormat, "phase config is not valid JSON", err)
	}
	raw, err := phase.RawFromValue(value)
	if err != nil {
		return nil, shared.WrapError("phase", "Decode", shared.ErrValidation, "phase config has wrong shape", err)
	}
	return raw, nil
}

// Latest returns metadata of the newest document, or nil if none exists.
func (r *PhaseConfigRepository) Latest(ctx context.Context) (*PhaseConfigVersion, error) {
	var v PhaseConfigVersion
	err := r.conn.QueryRow(ctx,
		`SELECT version, digest, published_by, published_at FROM phase_configs ORDER BY version DESC LIMIT 1`,
	).Scan(&v.Version, &v.Digest, &v.PublishedBy, &v.PublishedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, classify("phase", "Latest", err)
	}
	return &v, nil
}

// Publish stores raw as a new version. Callers validate before publishing.
func (r *PhaseConfigRepository) Publish(ctx context.Context, raw []phase.RawDefinition, digest, author string) (int64, error) {
	doc, err := json.Marshal(raw)
	if err != nil {
		return 0, fmt.Errorf("postgres: marshal phase config: %w", err)
	}

	var version int64
	err = r.conn.QueryRow(ctx,
		`INSERT INTO phase_configs (document, digest, published_by) VALUES ($1, $2, $3) RETURNING version`,
		doc, digest, author,
	).Scan(&version)
	if err != nil {
		return 0, classify("phase", "Publish", err)
	}
	return version, nil
}

// LatestDigest returns the digest of the newest document, or "" if none exists.
func (r *PhaseConfigRepository) LatestDigest(ctx context.Context) (string, error) {
	v, err := r.Latest(ctx)
	if err != nil || v == nil {
		return "", err
	}
	return v.Digest, nil
}
