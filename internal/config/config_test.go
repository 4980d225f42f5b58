package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	assert.NoError(t, NewDefaultConfiguration().Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "test")
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "gophersat", cfg.Solver.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Solver.TimeLimit)
	assert.Equal(t, 4, cfg.Scheduling.DefaultCap)
	assert.Equal(t, 5.0, cfg.Scheduling.Weights.IfNeeded)
	assert.Equal(t, 100, cfg.Matching.CATSLimit)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("ALLOCATE_SOLVER_BACKEND", "cbc")
	t.Setenv("ALLOCATE_SCHEDULING_WEIGHTS_TENSION", "2.5")
	t.Setenv("ALLOCATE_RETRY_INTERVAL", "1s")

	cfg, err := Load(t.TempDir(), "test")
	require.NoError(t, err)
	assert.Equal(t, "cbc", cfg.Solver.Backend)
	assert.Equal(t, 2.5, cfg.Scheduling.Weights.Tension)
	assert.Equal(t, time.Second, cfg.Retry.Interval)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.qa"), []byte("ALLOCATE_SCHEDULING_DEFAULT_CAP=7\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ALLOCATE_SCHEDULING_DEFAULT_CAP") })

	cfg, err := Load(dir, "QA")
	require.NoError(t, err)
	assert.Equal(t, "qa", cfg.Env)
	assert.Equal(t, 7, cfg.Scheduling.DefaultCap)
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfiguration()
	cfg.Store.Kind = "postgres"
	assert.Error(t, cfg.Validate())
	cfg.Store.DSN = "postgres://localhost/allocate"
	assert.NoError(t, cfg.Validate())

	cfg.Scheduling.Compatibility = "loose"
	assert.Error(t, cfg.Validate())
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("ALLOCATE_SOLVER_BACKEND", "glpk")
	_, err := Load(t.TempDir(), "test")
	assert.Error(t, err)
}
