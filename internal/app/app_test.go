package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhyrak/go-allocate/internal/config"
	"github.com/rhyrak/go-allocate/internal/solver"
	"github.com/rhyrak/go-allocate/internal/storage/memory"
)

func TestNewWithDefaults(t *testing.T) {
	cfg := config.NewDefaultConfiguration()
	cfg.Notify.Kind = "none"
	a, err := New(cfg, t.TempDir())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &memory.Store{}, a.Store)
	assert.Equal(t, []string{solver.BackendCBC, solver.BackendGophersat, solver.BackendSCIP}, a.Solvers.Names())
	assert.NotNil(t, a.Runner)
	assert.Equal(t, cfg.Retry.MaxAttempts, a.RetryPolicy().MaxAttempts)
}

func TestNewRejectsBadRecipients(t *testing.T) {
	cfg := config.NewDefaultConfiguration()
	cfg.Notify.Recipients = "not an address"
	_, err := New(cfg, t.TempDir())
	assert.Error(t, err)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := config.NewDefaultConfiguration()
	cfg.Store.Kind = "bolt"
	_, err := New(cfg, t.TempDir())
	assert.Error(t, err)
}
