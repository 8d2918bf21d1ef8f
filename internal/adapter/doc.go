// Package adapter translates corrective actions into vendor CLI scripts.
//
// Each vendor implements Generator. A Registry keyed by lowercased vendor
// name picks the generator for a link; unknown vendors fail with
// domain.ErrUnsupportedVendor. Scripts are advisory text: nothing in this
// package talks to network equipment.
//
// Supported operations:
//   - license_capacity: shrink a license reservation to the used capacity
//   - channel_bandwidth: narrow a microwave channel to a new width in MHz
//
// Built-in vendors: Huawei.
package adapter
