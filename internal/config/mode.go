package config

import (
	"fmt"
	"strings"
)

// Mode selects whether judgments touch the record store
type Mode string

const (
	ModeLive       Mode = "live"       // decisions are persisted, liquidations hit the ledger
	ModeSimulation Mode = "simulation" // read-only projection, audit log only
)

// ParseMode converts a name to a Mode. "dry-run" and "dryrun" are accepted
// as spellings of simulation; matching ignores case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return ModeLive, nil
	case "simulation", "dry-run", "dryrun":
		return ModeSimulation, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want live or simulation)", s)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*m = ""
		return nil
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// IsSimulation reports whether writes are suppressed
func (m Mode) IsSimulation() bool {
	return m == ModeSimulation
}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeLive || m == ModeSimulation
}
