package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Ledger    LedgerConfig
	Reminders RemindersConfig
	Log       LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// LedgerConfig holds debt ledger defaults.
type LedgerConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
	ExpenseCategory string `mapstructure:"expense_category"`
	Timezone        string
}

// RemindersConfig controls due-date reminders.
type RemindersConfig struct {
	RedisAddr      string `mapstructure:"redis_addr"`
	IncludeOverdue bool   `mapstructure:"include_overdue"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string
	Development bool
}

// Location resolves the ledger timezone, falling back to time.Local.
func (c LedgerConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from .env, file and env. Env var overrides use prefix DEBTLEDGER_.
func Load() (Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "debtledger", "debtledger.db"))
	v.SetDefault("ledger.default_currency", "USD")
	v.SetDefault("ledger.expense_category", "bills")
	v.SetDefault("ledger.timezone", "")
	v.SetDefault("reminders.redis_addr", "")
	v.SetDefault("reminders.include_overdue", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("DEBTLEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "debtledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DEBTLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Ledger.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.Ledger.DefaultCurrency))
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("DEBTLEDGER_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "debtledger", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("ledger.default_currency", cfg.Ledger.DefaultCurrency)
	v.Set("ledger.expense_category", cfg.Ledger.ExpenseCategory)
	v.Set("ledger.timezone", cfg.Ledger.Timezone)
	v.Set("reminders.redis_addr", cfg.Reminders.RedisAddr)
	v.Set("reminders.include_overdue", cfg.Reminders.IncludeOverdue)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.development", cfg.Log.Development)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
