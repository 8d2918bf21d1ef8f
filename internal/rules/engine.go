// Package rules classifies link telemetry as compliant or offending.
package rules

import (
	"fmt"

	"linkmind/internal/domain"
)

const (
	// LicenseHoardingFactor is the reserved/actual ratio above which a link hoards licenses
	LicenseHoardingFactor = 1.5

	// WideChannelMHz is the channel width checked for spectrum waste
	WideChannelMHz = 56.0
	// MinWideChannelThroughput is the throughput (Mbps) a wide channel must reach
	MinWideChannelThroughput = 100.0
	// RecoverableSpectrumMHz is the bandwidth reclaimed by narrowing a wasted wide channel
	RecoverableSpectrumMHz = 28.0
)

// Rates converts wasted quantities into dollar values
type Rates struct {
	LicensePerUnit  float64
	BandwidthPerMHz float64
}

// Engine evaluates snapshots against the waste-detection rules
type Engine struct {
	rates Rates
}

// NewEngine creates a rule engine using the given rates
func NewEngine(rates Rates) *Engine {
	return &Engine{rates: rates}
}

// Rates returns the configured conversion rates
func (e *Engine) Rates() Rates {
	return e.rates
}

// Evaluate applies the rule chain to one snapshot. First match wins.
// This is pure domain logic - no I/O, no side effects.
func (e *Engine) Evaluate(s domain.NodeSnapshot) domain.Verdict {
	// Rule 1: license hoarding. Strict: exactly 1.5x is compliant.
	if s.LicenseReserved > s.LicenseActual*LicenseHoardingFactor {
		wasted := s.LicenseReserved - s.LicenseActual
		return domain.Verdict{
			Status:      domain.VerdictOffending,
			Offense:     domain.OffenseLicenseHoarding,
			WastedQty:   wasted,
			SavingValue: wasted * e.rates.LicensePerUnit,
			Rationale: fmt.Sprintf("License bloat: %g reserved, %g used",
				s.LicenseReserved, s.LicenseActual),
		}
	}

	// Rule 2: spectrum waste. Strict: exactly 100 Mbps is compliant.
	if s.BandwidthMHz == WideChannelMHz && s.ThroughputMbps < MinWideChannelThroughput {
		return domain.Verdict{
			Status:      domain.VerdictOffending,
			Offense:     domain.OffenseSpectrumWaste,
			WastedQty:   RecoverableSpectrumMHz,
			SavingValue: RecoverableSpectrumMHz * e.rates.BandwidthPerMHz,
			Rationale: fmt.Sprintf("Bandwidth waste: %g MHz channel carrying %g Mbps",
				s.BandwidthMHz, s.ThroughputMbps),
		}
	}

	return domain.CompliantVerdict()
}
