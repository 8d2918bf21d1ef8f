package sqlite

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"linkmind/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to probation_list:
// 1. Add field to probationRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update probationColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.ProbationRecord
// 5. Add the column to migrate() in sqlite.go
//
// CRITICAL: Column order must match between the columns constant and
// scanArgs(). Dates are stored as TEXT (YYYY-MM-DD) so the driver hands
// back strings and no timezone conversion happens on read.
//
// Same pattern applies to financial_ledger.

// ============================================================================
// Probation Row Scanner
// ============================================================================

// probationRow holds all columns from a probation query for scanning
type probationRow struct {
	LinkID      string
	OffenseCode string
	StartDate   string
	LastSeen    string
	CleanStreak int
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match probationColumns order exactly:
// link_id, offense_code, start_date, last_seen, clean_streak
func (r *probationRow) scanArgs() []interface{} {
	return []interface{}{
		&r.LinkID,      // 1
		&r.OffenseCode, // 2
		&r.StartDate,   // 3
		&r.LastSeen,    // 4
		&r.CleanStreak, // 5
	}
}

// toDomain converts the scanned row to a domain.ProbationRecord
func (r *probationRow) toDomain() (*domain.ProbationRecord, error) {
	start, err := domain.ParseDate(r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parse start_date for %s: %w", r.LinkID, err)
	}
	lastSeen, err := domain.ParseDate(r.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("parse last_seen for %s: %w", r.LinkID, err)
	}

	return &domain.ProbationRecord{
		LinkID:      r.LinkID,
		Offense:     domain.OffenseKind(r.OffenseCode),
		StartDate:   start,
		LastSeen:    lastSeen,
		CleanStreak: r.CleanStreak,
	}, nil
}

// probationColumns returns the SELECT column list for probation queries
const probationColumns = `link_id, offense_code, start_date, last_seen, clean_streak`

// ============================================================================
// Ledger Row Scanner
// ============================================================================

// ledgerRow holds all columns from a ledger query for scanning
type ledgerRow struct {
	ID             int64
	Date           string
	LinkID         string
	ActionTaken    string
	RecoveredValue float64
	PrevHash       sql.NullString
	Hash           string
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match ledgerColumns order exactly:
// id, date, link_id, action_taken, recovered_value, prev_hash, hash
func (r *ledgerRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,             // 1
		&r.Date,           // 2
		&r.LinkID,         // 3
		&r.ActionTaken,    // 4
		&r.RecoveredValue, // 5
		&r.PrevHash,       // 6
		&r.Hash,           // 7
	}
}

// toDomain converts the scanned row to a domain.LedgerEntry
func (r *ledgerRow) toDomain() (*domain.LedgerEntry, error) {
	date, err := domain.ParseDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("parse ledger date for entry %d: %w", r.ID, err)
	}

	return &domain.LedgerEntry{
		ID:             r.ID,
		Date:           date,
		LinkID:         r.LinkID,
		Action:         domain.OffenseKind(r.ActionTaken),
		RecoveredValue: r.RecoveredValue,
		PrevHash:       nullToString(r.PrevHash),
		Hash:           r.Hash,
	}, nil
}

// ledgerColumns returns the SELECT column list for ledger queries
const ledgerColumns = `id, date, link_id, action_taken, recovered_value, prev_hash, hash`

// ============================================================================
// Ledger Write Helpers
// ============================================================================

// ledgerInsertArgs prepares arguments for ledger INSERT
// Returns: date, link_id, action_taken, recovered_value, prev_hash, hash
func ledgerInsertArgs(e *domain.LedgerEntry) []interface{} {
	return []interface{}{
		domain.FormatDate(e.Date),
		e.LinkID,
		string(e.Action),
		e.RecoveredValue,
		stringToNull(e.PrevHash),
		e.Hash,
	}
}

// chainHash computes the BLAKE2b-256 digest binding an entry to its predecessor.
// Each field is length-prefixed so no separator inside a value can shift
// bytes between fields. The ID is excluded so the hash can be computed
// before insert.
func chainHash(e *domain.LedgerEntry) string {
	fields := []string{
		e.PrevHash,
		domain.FormatDate(e.Date),
		e.LinkID,
		string(e.Action),
		strconv.FormatFloat(e.RecoveredValue, 'g', -1, 64),
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
