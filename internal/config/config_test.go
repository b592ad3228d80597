package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DEBTLEDGER_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "share", "debtledger", "debtledger.db"), cfg.Database.Path)
	require.Equal(t, "USD", cfg.Ledger.DefaultCurrency)
	require.Equal(t, "bills", cfg.Ledger.ExpenseCategory)
	require.False(t, cfg.Reminders.IncludeOverdue)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/tmp/ledger.db"

[ledger]
default_currency = "sar"
timezone = "Asia/Riyadh"

[reminders]
include_overdue = true
redis_addr = "localhost:6379"
`), 0o644))
	t.Setenv("DEBTLEDGER_CONFIG", path)
	t.Setenv("DEBTLEDGER_LEDGER_EXPENSE_CATEGORY", "loans")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	require.Equal(t, "SAR", cfg.Ledger.DefaultCurrency)
	require.Equal(t, "loans", cfg.Ledger.ExpenseCategory)
	require.True(t, cfg.Reminders.IncludeOverdue)
	require.Equal(t, "localhost:6379", cfg.Reminders.RedisAddr)

	loc, err := cfg.Ledger.Location()
	require.NoError(t, err)
	require.Equal(t, "Asia/Riyadh", loc.String())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("DEBTLEDGER_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
	_, err := Load()
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	t.Setenv("DEBTLEDGER_CONFIG", path)

	want := Config{
		Database:  DatabaseConfig{Path: "/data/ledger.db"},
		Ledger:    LedgerConfig{DefaultCurrency: "EUR", ExpenseCategory: "bills", Timezone: "UTC"},
		Reminders: RemindersConfig{IncludeOverdue: true},
		Log:       LogConfig{Level: "debug"},
	}
	require.NoError(t, Save(want))

	got, err := Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestBadTimezoneFallsBack(t *testing.T) {
	t.Parallel()
	loc, err := LedgerConfig{Timezone: "Mars/Olympus"}.Location()
	require.Error(t, err)
	require.NotNil(t, loc)
}
