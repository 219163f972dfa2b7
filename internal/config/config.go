package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Policy   PolicyConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// PolicyConfig holds the tunable matching constants. These are heuristics,
// not tuned values; keep them adjustable per deployment.
type PolicyConfig struct {
	// TransferWindowDays is the maximum date spread for pairing two legs
	// of an internal transfer.
	TransferWindowDays int `mapstructure:"transfer_window_days"`
	// TransferToleranceCents is the allowed magnitude mismatch between
	// the two legs of a transfer pair.
	TransferToleranceCents int64 `mapstructure:"transfer_tolerance_cents"`
	// ReimbursementWindowDays bounds how far forward of the outflow an
	// inflow may land and still count as a reimbursement candidate.
	ReimbursementWindowDays int `mapstructure:"reimbursement_window_days"`
	// ReimbursementTolerance is the allowed fractional difference between
	// an outflow and a candidate reimbursement inflow (0.10 = 10%).
	ReimbursementTolerance float64 `mapstructure:"reimbursement_tolerance"`
	// MaxBatchSize caps the number of transaction ids accepted by one
	// mutation call.
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// DefaultPolicy returns the stock policy constants.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		TransferWindowDays:      3,
		TransferToleranceCents:  1,
		ReimbursementWindowDays: 30,
		ReimbursementTolerance:  0.10,
		MaxBatchSize:            2000,
	}
}

// Load reads configuration from file and env. Env var overrides use prefix POCKETBOOKS_.
func Load() (Config, error) {
	v := viper.New()

	pol := DefaultPolicy()
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "pocketbooks", "pocketbooks.db"))
	v.SetDefault("policy.transfer_window_days", pol.TransferWindowDays)
	v.SetDefault("policy.transfer_tolerance_cents", pol.TransferToleranceCents)
	v.SetDefault("policy.reimbursement_window_days", pol.ReimbursementWindowDays)
	v.SetDefault("policy.reimbursement_tolerance", pol.ReimbursementTolerance)
	v.SetDefault("policy.max_batch_size", pol.MaxBatchSize)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("POCKETBOOKS_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "pocketbooks"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("POCKETBOOKS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
