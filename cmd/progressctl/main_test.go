package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/internal/application/query"
	"github.com/auri-hub/progress-hub/internal/domain/progress"
)

const validPhases = `
- name: Healing
  level_min: 1
  level_max: 6
- name: Advanced Healing
  level_min: 7
  level_max: 9
- name: Channeling
  level_min: 10
  level_max: 15
`

const overlappingPhases = `
- name: Healing
  level_min: 1
  level_max: 8
- name: Advanced Healing
  level_min: 7
  level_max: 9
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func localEnv(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("PHASE_CACHE_BACKEND", "memory")
}

func TestLadder(t *testing.T) {
	out, err := execute(t, "ladder")
	require.NoError(t, err)
	assert.Contains(t, out, "Healing - Initial")
	assert.Contains(t, out, "440+")
	assert.Contains(t, out, "Channeling - Level 15")
}

func TestSimulate(t *testing.T) {
	out, err := execute(t, "simulate", "--days", "200", "--op", "add", "--value", "2", "-o", "json")
	require.NoError(t, err)

	var res query.SimulateLevelResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 7, res.BaseLevel)
	assert.Equal(t, 9, res.EffectiveLevel)
	assert.True(t, res.HasNext)
	assert.Equal(t, 30, res.DaysToNext)
}

func TestSimulate_UnknownOperator(t *testing.T) {
	_, err := execute(t, "simulate", "--days", "10", "--op", "MUL", "--value", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestPhasesValidate(t *testing.T) {
	out, err := execute(t, "phases", "validate", writeFile(t, "phases.yaml", validPhases))
	require.NoError(t, err)
	assert.Contains(t, out, "advanced_healing")
	assert.Contains(t, out, "OK")

	out, err = execute(t, "phases", "validate", writeFile(t, "bad.yaml", overlappingPhases))
	require.Error(t, err)
	assert.Contains(t, out, "INVALID")
}

func TestPhasesValidate_SchemaErrors(t *testing.T) {
	out, err := execute(t, "phases", "validate", "-o", "json", writeFile(t, "shape.json", `{"name": "Healing"}`))
	require.Error(t, err)

	var report phaseReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.SchemaErrors)
}

func TestCompute_InlineLearner(t *testing.T) {
	localEnv(t)
	phases := writeFile(t, "phases.yaml", validPhases)

	out, err := execute(t, "compute",
		"--phase-file", phases, "--snapshot-db", ":memory:", "--no-redis",
		"--id", "demo", "--enrolled", "2024-01-01", "--at", "2024-10-27",
		"-o", "json")
	require.NoError(t, err)

	var res progress.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 300, res.ActiveDays)
	assert.Equal(t, 10, res.EffectiveLevel)
	assert.Equal(t, "Channeling", res.EffectivePhase.Name)
}

func TestCompute_LookupNeedsDatabase(t *testing.T) {
	localEnv(t)
	phases := writeFile(t, "phases.yaml", validPhases)

	_, err := execute(t, "compute", "--phase-file", phases, "--snapshot-db", ":memory:", "--no-redis", "--id", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--enrolled")
}

func TestPhasesResolve_DefaultForGap(t *testing.T) {
	localEnv(t)
	t.Setenv("DEFAULT_PHASE_NAME", "Healing")
	phases := writeFile(t, "phases.yaml", `
- name: Channeling
  level_min: 10
  level_max: 15
`)

	out, err := execute(t, "phases", "resolve", "--level", "3",
		"--phase-file", phases, "--snapshot-db", ":memory:", "--no-redis")
	require.NoError(t, err)
	assert.Contains(t, out, "Healing")
	assert.Contains(t, out, "level_3_no_coverage")
}

func TestSnapshot_RequiresTarget(t *testing.T) {
	_, err := execute(t, "snapshot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")
}

func TestOutputFlagValidated(t *testing.T) {
	_, err := execute(t, "ladder", "-o", "yaml")
	require.Error(t, err)
}
