package domain

import (
	"fmt"
	"math"
)

// NodeSnapshot is one link's telemetry for a given evaluation cycle
type NodeSnapshot struct {
	ID              string  `json:"id" yaml:"id"`
	Vendor          string  `json:"vendor" yaml:"vendor"`
	BandwidthMHz    float64 `json:"bandwidth_mhz" yaml:"bandwidth_mhz"`
	ThroughputMbps  float64 `json:"throughput_mbps" yaml:"throughput_mbps"`
	LicenseReserved float64 `json:"license_reserved" yaml:"license_reserved"`
	LicenseActual   float64 `json:"license_actual" yaml:"license_actual"`
	AdminStatus     string  `json:"admin_status,omitempty" yaml:"admin_status,omitempty"`
}

// Validate rejects snapshots that cannot be evaluated.
// Returned errors wrap ErrInvalidSnapshot.
func (s NodeSnapshot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: link id is required", ErrInvalidSnapshot)
	}

	fields := []struct {
		name  string
		value float64
	}{
		{"bandwidth_mhz", s.BandwidthMHz},
		{"throughput_mbps", s.ThroughputMbps},
		{"license_reserved", s.LicenseReserved},
		{"license_actual", s.LicenseActual},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s of %s is not a finite number", ErrInvalidSnapshot, f.name, s.ID)
		}
		if f.value < 0 {
			return fmt.Errorf("%w: %s of %s is negative (%g)", ErrInvalidSnapshot, f.name, s.ID, f.value)
		}
	}

	return nil
}
