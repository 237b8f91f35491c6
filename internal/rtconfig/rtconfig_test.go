package rtconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPopulatesDefaults(t *testing.T) {
	cfg := New()

	require.Equal(t, 30_000, cfg.Sandbox.DefaultWaitTimeout)
	require.Equal(t, 100, cfg.Sandbox.PollIntervalMS)
	require.Equal(t, 1, cfg.Dedup.FuzzyDateToleranceDays)
	require.InDelta(t, 0.005, cfg.Dedup.FuzzyAmountEpsilon, 1e-9)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestWaitTimeoutAndPollIntervalConvertMillisecondFields(t *testing.T) {
	cfg := New()
	cfg.Sandbox.DefaultWaitTimeout = 5000
	cfg.Sandbox.PollIntervalMS = 250

	require.Equal(t, int64(5000), cfg.WaitTimeout().Milliseconds())
	require.Equal(t, int64(250), cfg.PollInterval().Milliseconds())
}

func TestLoadFromFileOverridesDefaultsWithoutEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refreshmint.config.yaml")
	err := os.WriteFile(path, []byte("ledger_root: /home/user/ledger\ndedup:\n  fuzzy_date_tolerance_days: 3\n"), 0o644)
	require.NoError(t, err)

	cfg := New()
	require.NoError(t, loadFromFile(path, cfg))

	require.Equal(t, "/home/user/ledger", cfg.LedgerRoot)
	require.Equal(t, 3, cfg.Dedup.FuzzyDateToleranceDays)
	// Unset fields keep their defaults.
	require.Equal(t, 30_000, cfg.Sandbox.DefaultWaitTimeout)
}

func TestLoadFromFileMissingIsNotAnError(t *testing.T) {
	cfg := New()
	err := loadFromFile(filepath.Join(t.TempDir(), "missing.yaml"), cfg)
	require.NoError(t, err)
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("REFRESHMINT_LEDGER_ROOT", "/tmp/ledger-from-env")
	t.Setenv("REFRESHMINT_CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/ledger-from-env", cfg.LedgerRoot)
}
