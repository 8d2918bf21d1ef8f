package domain

import "time"

// ProbationRecord tracks an offending link. It exists if and only if the
// link is currently under active probation.
type ProbationRecord struct {
	LinkID      string      `json:"link_id"`
	Offense     OffenseKind `json:"offense"`
	StartDate   time.Time   `json:"start_date"`
	LastSeen    time.Time   `json:"last_seen"`
	CleanStreak int         `json:"clean_streak"`
}

// DaysInJail returns whole days elapsed since probation began.
// The clock runs from StartDate; relapses do not reset it.
func (r *ProbationRecord) DaysInJail(today time.Time) int {
	return DaysBetween(r.StartDate, today)
}

// LedgerEntry is an append-only record of value recovered by a liquidation
type LedgerEntry struct {
	ID             int64       `json:"id"`
	Date           time.Time   `json:"date"`
	LinkID         string      `json:"link_id"`
	Action         OffenseKind `json:"action"`
	RecoveredValue float64     `json:"recovered_value"`
	PrevHash       string      `json:"prev_hash,omitempty"`
	Hash           string      `json:"hash,omitempty"`
}
