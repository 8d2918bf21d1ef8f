package domain

import "errors"

// Sentinel errors shared across layers. Stores and adapters return these
// wrapped with context so the judgment service can classify failures.
var (
	// ErrInvalidSnapshot marks malformed telemetry rejected before rule evaluation.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrUnsupportedVendor is returned when no command generator is registered for a vendor.
	ErrUnsupportedVendor = errors.New("unsupported vendor")

	// ErrRecordNotFound is returned when a probation record is expected but absent.
	ErrRecordNotFound = errors.New("probation record not found")

	// ErrStoreUnavailable wraps storage I/O failures. Fatal for one invocation only.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSimulationMode is returned by operations that only run in live mode.
	ErrSimulationMode = errors.New("operation requires live mode")

	// ErrLedgerTampered means the ledger hash chain does not verify.
	ErrLedgerTampered = errors.New("ledger hash chain broken")
)
