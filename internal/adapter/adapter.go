package adapter

import (
	"errors"
	"fmt"

	"linkmind/internal/domain"
)

// Operation names a corrective action a generator can script
type Operation string

const (
	// OpLicenseCapacity resizes a license group to Params.Capacity
	OpLicenseCapacity Operation = "license_capacity"
	// OpChannelBandwidth sets the channel width to Params.BandwidthMHz
	OpChannelBandwidth Operation = "channel_bandwidth"
)

// ErrUnsupportedOperation is returned when a generator cannot script an operation
var ErrUnsupportedOperation = errors.New("unsupported operation")

// Params carries the operands of a corrective action
type Params struct {
	LinkID       string `json:"link_id"`
	Capacity     int    `json:"capacity,omitempty"`
	BandwidthMHz int    `json:"bandwidth_mhz,omitempty"`
}

// Generator produces CLI scripts for one equipment vendor
type Generator interface {
	// Vendor returns the vendor name this generator serves
	Vendor() string

	// Generate renders the script for op. Unknown operations
	// return ErrUnsupportedOperation.
	Generate(op Operation, p Params) (string, error)
}

// PlanFor maps an offense on a snapshot to the operation that corrects it.
// License hoarding shrinks the reservation to actual usage; spectrum waste
// narrows the channel by the recoverable width.
func PlanFor(offense domain.OffenseKind, s domain.NodeSnapshot, recoverableMHz float64) (Operation, Params, error) {
	switch offense {
	case domain.OffenseLicenseHoarding:
		return OpLicenseCapacity, Params{LinkID: s.ID, Capacity: int(s.LicenseActual)}, nil
	case domain.OffenseSpectrumWaste:
		return OpChannelBandwidth, Params{LinkID: s.ID, BandwidthMHz: int(recoverableMHz)}, nil
	default:
		return "", Params{}, fmt.Errorf("%w: no corrective action for offense %q", ErrUnsupportedOperation, offense)
	}
}
