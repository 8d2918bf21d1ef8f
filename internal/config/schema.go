package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Mode      Mode            `yaml:"mode"`
	Database  DatabaseConfig  `yaml:"database"`
	Probation ProbationConfig `yaml:"probation"`
	Rates     RatesConfig     `yaml:"rates"`
	Files     FilesConfig     `yaml:"files"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProbationConfig holds the lifecycle thresholds, in civil days
type ProbationConfig struct {
	ProbationDays  int `yaml:"probation_days"`  // offending days before liquidation
	RedemptionDays int `yaml:"redemption_days"` // consecutive clean days before pardon
}

// RatesConfig holds the unit prices used to value waste
type RatesConfig struct {
	LicensePerUnit  float64 `yaml:"license_per_unit"`
	BandwidthPerMHz float64 `yaml:"bandwidth_per_mhz"`
}

// FilesConfig names the CSV files written by the CLI
type FilesConfig struct {
	AuditLog        string `yaml:"audit_log"`
	FinancialReport string `yaml:"financial_report"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ServerConfig holds HTTP server settings for serve
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
