package adapter

import "fmt"

// Huawei generates scripts for Huawei microwave equipment
type Huawei struct{}

// Vendor implements Generator
func (Huawei) Vendor() string { return "Huawei" }

// Generate implements Generator
func (Huawei) Generate(op Operation, p Params) (string, error) {
	switch op {
	case OpLicenseCapacity:
		return fmt.Sprintf("// HUAWEI: license-group modify capacity %d", p.Capacity), nil
	case OpChannelBandwidth:
		return fmt.Sprintf("// HUAWEI: interface microwave-link -> channel-bandwidth %dmhz", p.BandwidthMHz), nil
	default:
		return "", fmt.Errorf("%w: huawei cannot script %q", ErrUnsupportedOperation, op)
	}
}
