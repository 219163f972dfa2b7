package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POCKETBOOKS_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultPolicy(), cfg.Policy)
	require.Contains(t, cfg.Database.Path, "pocketbooks.db")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/tmp/ledger.db"

[policy]
transfer_window_days = 5
reimbursement_tolerance = 0.25
`), 0o644))
	t.Setenv("POCKETBOOKS_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	require.Equal(t, 5, cfg.Policy.TransferWindowDays)
	require.Equal(t, 0.25, cfg.Policy.ReimbursementTolerance)
	// untouched keys keep their defaults
	require.Equal(t, DefaultPolicy().MaxBatchSize, cfg.Policy.MaxBatchSize)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("POCKETBOOKS_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("POCKETBOOKS_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.db", cfg.Database.Path)
}
