// Package handler implements the HTTP API for LinkMind.
//
// Routes are mounted on a chi router:
//
//	GET  /healthz                  liveness
//	GET  /api/probation            active watchlist
//	GET  /api/probation/{linkID}   one link's record
//	GET  /api/ledger               ledger entries as JSON
//	GET  /api/ledger.csv           ledger export
//	GET  /api/savings              running total and CFO summary
//	POST /api/judgments            judge a snapshot batch (?simulate=true for a dry run)
//	GET  /events?types=a,b         SSE stream of judgment events, optionally filtered
//	GET  /metrics                  Prometheus exposition
//
// Errors are returned as JSON with {error, details}.
package handler
