// Package repository defines the data access interfaces for LinkMind.
//
// This package provides the storage abstraction the judgment pipeline
// depends on. The actual implementation is in the sqlite subpackage.
//
// # RecordStore Interface
//
// RecordStore holds two logical tables:
//
// - probation records keyed by link id, one per link under active probation
// - an append-only financial ledger of liquidations
//
// Every method performs a single scoped operation. Nothing is cached between
// calls, so callers always decide on current state.
//
// # SQLite Implementation
//
// The sqlite implementation uses the pure-Go modernc.org/sqlite driver with
// WAL mode. Ledger rows carry a BLAKE2b hash chain; VerifyLedger walks the
// chain to detect rewritten history.
//
// # Testing
//
// The sqlite repository is tested against in-memory databases.
package repository
