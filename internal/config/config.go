// Package config provides configuration management for LinkMind.
//
// Configuration is loaded once at startup and passed explicitly to the
// components that need it. The database holds probation state and the
// ledger; the config file holds thresholds, rates and file locations.
//
// Config file locations (priority order):
//  1. $LINKMIND_CONFIG
//  2. ./linkmind.yaml
//  3. $XDG_CONFIG_HOME/linkmind/config.yaml
//  4. ~/.config/linkmind/config.yaml
//  5. /etc/linkmind/config.yaml
//
// A handful of LINKMIND_* environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides
const (
	EnvProbationDays  = "LINKMIND_PROBATION_DAYS"
	EnvRedemptionDays = "LINKMIND_REDEMPTION_DAYS"
	EnvLicenseRate    = "LINKMIND_LICENSE_RATE"
	EnvBandwidthRate  = "LINKMIND_BANDWIDTH_RATE"
	EnvDatabasePath   = "LINKMIND_DB_PATH"
	EnvMode           = "LINKMIND_MODE"
)

// Defaults
const (
	DefaultProbationDays   = 15
	DefaultRedemptionDays  = 3
	DefaultLicenseRate     = 10.0
	DefaultBandwidthRate   = 20.0
	DefaultDatabasePath    = "./linkmind.db"
	DefaultAuditLog        = "audit_simulation.csv"
	DefaultFinancialReport = "financial_report.csv"
	DefaultServerAddr      = ":3000"
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.applyEnv(); err != nil {
			return nil, "", err
		}
		return cfg, "", cfg.Validate()
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.applyEnv(); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Mode == "" {
		c.Mode = ModeLive
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Probation.ProbationDays == 0 {
		c.Probation.ProbationDays = DefaultProbationDays
	}
	if c.Probation.RedemptionDays == 0 {
		c.Probation.RedemptionDays = DefaultRedemptionDays
	}
	if c.Rates.LicensePerUnit == 0 {
		c.Rates.LicensePerUnit = DefaultLicenseRate
	}
	if c.Rates.BandwidthPerMHz == 0 {
		c.Rates.BandwidthPerMHz = DefaultBandwidthRate
	}
	if c.Files.AuditLog == "" {
		c.Files.AuditLog = DefaultAuditLog
	}
	if c.Files.FinancialReport == "" {
		c.Files.FinancialReport = DefaultFinancialReport
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
}

// applyEnv overlays LINKMIND_* environment variables
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvProbationDays); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvProbationDays, err)
		}
		c.Probation.ProbationDays = n
	}
	if v := os.Getenv(EnvRedemptionDays); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRedemptionDays, err)
		}
		c.Probation.RedemptionDays = n
	}
	if v := os.Getenv(EnvLicenseRate); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLicenseRate, err)
		}
		c.Rates.LicensePerUnit = f
	}
	if v := os.Getenv(EnvBandwidthRate); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBandwidthRate, err)
		}
		c.Rates.BandwidthPerMHz = f
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvMode); v != "" {
		m, err := ParseMode(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMode, err)
		}
		c.Mode = m
	}
	return nil
}

// Validate rejects configurations the judgment pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode: unknown value %q", c.Mode))
	}
	if c.Probation.ProbationDays <= 0 {
		errs = append(errs, fmt.Errorf("probation.probation_days must be positive, got %d", c.Probation.ProbationDays))
	}
	if c.Probation.RedemptionDays <= 0 {
		errs = append(errs, fmt.Errorf("probation.redemption_days must be positive, got %d", c.Probation.RedemptionDays))
	}
	if c.Rates.LicensePerUnit < 0 {
		errs = append(errs, fmt.Errorf("rates.license_per_unit must not be negative, got %v", c.Rates.LicensePerUnit))
	}
	if c.Rates.BandwidthPerMHz < 0 {
		errs = append(errs, fmt.Errorf("rates.bandwidth_per_mhz must not be negative, got %v", c.Rates.BandwidthPerMHz))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must be set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	return fmt.Sprintf("Mode: %s, DB: %s\nProbation: %d days, Redemption: %d days\nRates: license %.2f/unit, bandwidth %.2f/MHz",
		c.Mode, c.Database.Path,
		c.Probation.ProbationDays, c.Probation.RedemptionDays,
		c.Rates.LicensePerUnit, c.Rates.BandwidthPerMHz)
}
