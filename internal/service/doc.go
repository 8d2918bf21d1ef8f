// Package service implements the judgment pipeline for LinkMind.
//
// JudgmentService coordinates the rule engine, the probation state machine,
// the record store and the vendor script generators. It is the boundary at
// which per-link failures are caught: Process never panics and never
// returns an error, it reports failures inside the Outcome so one bad link
// cannot stop a batch.
//
// # Modes
//
// In live mode decisions are applied to the store, liquidations write the
// ledger and a corrective script is drafted afterwards. A script failure is
// surfaced as Outcome.Warning; the accounting stands.
//
// In simulation mode the decision is projected from the current stored
// record without writing it, and one audit row is appended per snapshot.
//
// # Event System
//
// Transitions and liquidations are published on an EventBus so the HTTP
// layer can stream them to clients over Server-Sent Events.
//
// # Concurrency
//
// Process serialises work per link ID. Different links proceed in parallel.
package service
