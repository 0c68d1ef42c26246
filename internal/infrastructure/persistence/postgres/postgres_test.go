package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"

	assert.Equal(t,
		"host=localhost port=5432 dbname=progress user=postgres password=secret sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/progress"
	assert.Equal(t, "postgres://u:p@db:5432/progress", cfg.DSN())
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "pw"
	cfg.MaxConns = 7

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)

	cfg.URL = "postgres://user:pw@db:notaport/progress"
	_, err = cfg.PoolConfig()
	assert.Error(t, err)
}

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}
	assert.Contains(t, migrations[1].UpSQL, "level_overrides")
	assert.Contains(t, migrations[3].UpSQL, "progress_snapshots")
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("x", "op", nil))

	err := classify("x", "op", pgx.ErrNoRows)
	assert.True(t, shared.IsNotFound(err))

	err = classify("x", "op", &pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	err = classify("x", "op", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23514"}))
	assert.True(t, shared.IsValidation(err))

	err = classify("x", "op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, shared.ErrTimeout)
	assert.True(t, shared.IsRetryable(err))

	assert.Equal(t, context.Canceled, classify("x", "op", context.Canceled))

	err = classify("x", "op", errors.New("connection reset by peer"))
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestIsOutage(t *testing.T) {
	assert.False(t, IsOutage(nil))
	assert.False(t, IsOutage(pgx.ErrNoRows))
	assert.False(t, IsOutage(context.Canceled))
	assert.False(t, IsOutage(&pgconn.PgError{Code: "23514"}))
	assert.False(t, IsOutage(fmt.Errorf("scan: %w", &pgconn.PgError{Code: "22P02"})))

	assert.True(t, IsOutage(errors.New("connection reset by peer")))
	assert.True(t, IsOutage(context.DeadlineExceeded))
	assert.True(t, IsOutage(&pgconn.PgError{Code: "57P01"}))
}

func TestDecodePhaseDocument(t *testing.T) {
	raw, err := DecodePhaseDocument([]byte(`[
		{"name": "Healing", "level_min": 1, "level_max": "6"},
		{"name": "Rest", "level_min": null, "level_max": null, "order": 4}
	]`))
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, phase.IntBound(1), raw[0].LevelMin)
	assert.Equal(t, phase.TextBound("6"), raw[0].LevelMax)
	assert.True(t, raw[1].LevelMin.IsNull())

	res := phase.ValidateAndNormalize(raw)
	assert.True(t, res.OK, res.Errors())

	_, err = DecodePhaseDocument([]byte(`{"name": "Healing"}`))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = DecodePhaseDocument([]byte(`[{`))
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}
