// Package domain defines the core value types for the LinkMind link auditing system.
//
// This package contains the entities that flow through a judgment run: the
// telemetry snapshot of a link, the verdict produced by the rule engine, the
// probation record kept for offending links and the append-only ledger entry
// written when a link is liquidated.
//
// # Core Types
//
// NodeSnapshot is one link's telemetry for an evaluation cycle. It is produced
// externally and never mutated.
//
// Verdict is the rule engine's classification of a snapshot (Compliant or
// Offending) together with the quantified waste and its dollar value.
//
// ProbationRecord tracks an offending link from its first violation until it
// is either pardoned or liquidated.
//
// LedgerEntry records the recovered value of a liquidation. Entries are
// hash-chained so that tampering with history can be detected.
//
// # Dates
//
// Probation arithmetic works on civil dates, not instants. Day truncates a
// time to its calendar date in UTC and DaysBetween counts whole days between
// two dates.
//
// # Design Principles
//
// - Immutable value objects
// - No database or external dependencies
// - Sentinel errors shared by every layer (see errors.go)
package domain
