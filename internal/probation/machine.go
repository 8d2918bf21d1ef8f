// Package probation implements the probation lifecycle of offending links.
//
// Decide is pure: it maps a verdict and the link's current record to a
// Decision naming the transition and the ordered store mutations that
// realise it. Apply executes those mutations. Keeping the two apart lets
// simulation mode project a decision without touching the store.
//
//	no record  + compliant                 -> clean_untracked
//	no record  + offending                 -> probation_started
//	record     + offending, days < P       -> surveillance
//	record     + offending, days >= P      -> liquidated
//	record     + compliant, streak+1 < R   -> improving
//	record     + compliant, streak+1 >= R  -> pardoned
//
// Days in jail are counted from the record's start date, never from
// last_seen, so relapses do not extend the sentence.
package probation

import (
	"context"
	"fmt"
	"time"

	"linkmind/internal/domain"
	"linkmind/internal/repository"
)

// Action names a lifecycle transition
type Action string

const (
	ActionCleanUntracked   Action = "clean_untracked"
	ActionProbationStarted Action = "probation_started"
	ActionSurveillance     Action = "surveillance"
	ActionLiquidated       Action = "liquidated"
	ActionImproving        Action = "improving"
	ActionPardoned         Action = "pardoned"
)

// Terminal reports whether the transition closes the case
func (a Action) Terminal() bool {
	return a == ActionLiquidated || a == ActionPardoned
}

// Mutation is one store write, applied in Decision order
type Mutation string

const (
	MutationCreate       Mutation = "create"
	MutationMarkGuilty   Mutation = "mark_guilty"
	MutationMarkInnocent Mutation = "mark_innocent"
	MutationAppendLedger Mutation = "append_ledger"
	MutationDelete       Mutation = "delete"
)

// Decision is the outcome of Decide
type Decision struct {
	LinkID      string             `json:"link_id"`
	Action      Action             `json:"action"`
	Mutations   []Mutation         `json:"mutations,omitempty"`
	Offense     domain.OffenseKind `json:"offense"`
	DaysInJail  int                `json:"days_in_jail"`
	CleanStreak int                `json:"clean_streak"`
	Value       float64            `json:"value,omitempty"` // ledger value on liquidation
	Message     string             `json:"message"`
}

// Machine holds the lifecycle thresholds
type Machine struct {
	probationDays  int
	redemptionDays int
}

// NewMachine creates a machine that liquidates after probationDays offending
// days and pardons after redemptionDays consecutive clean days
func NewMachine(probationDays, redemptionDays int) *Machine {
	return &Machine{probationDays: probationDays, redemptionDays: redemptionDays}
}

// ProbationDays returns P
func (m *Machine) ProbationDays() int { return m.probationDays }

// RedemptionDays returns R
func (m *Machine) RedemptionDays() int { return m.redemptionDays }

// Decide picks the transition for linkID given today's verdict and its
// current record (nil when untracked). No I/O.
func (m *Machine) Decide(linkID string, v domain.Verdict, rec *domain.ProbationRecord, today time.Time) Decision {
	d := Decision{LinkID: linkID, Offense: v.Offense}

	if rec == nil {
		if !v.IsOffending() {
			d.Action = ActionCleanUntracked
			d.Message = "clean, not tracked"
			return d
		}
		d.Action = ActionProbationStarted
		d.Mutations = []Mutation{MutationCreate}
		d.Message = fmt.Sprintf("probation started: %s", v.Offense)
		return d
	}

	d.DaysInJail = rec.DaysInJail(today)

	if v.IsOffending() {
		// Any offending day resets the streak, including the final one
		d.CleanStreak = 0

		if d.DaysInJail >= m.probationDays {
			d.Action = ActionLiquidated
			d.Mutations = []Mutation{MutationMarkGuilty, MutationAppendLedger, MutationDelete}
			d.Value = v.SavingValue
			d.Message = fmt.Sprintf("liquidated: saved $%.2f", v.SavingValue)
			return d
		}

		d.Action = ActionSurveillance
		d.Mutations = []Mutation{MutationMarkGuilty}
		d.Message = fmt.Sprintf("surveillance: day %d, streak reset", d.DaysInJail)
		return d
	}

	d.Offense = rec.Offense
	d.CleanStreak = rec.CleanStreak + 1

	if d.CleanStreak >= m.redemptionDays {
		d.Action = ActionPardoned
		d.Mutations = []Mutation{MutationMarkInnocent, MutationDelete}
		d.Message = fmt.Sprintf("pardoned: clean for %d days, removed from watchlist", d.CleanStreak)
		return d
	}

	d.Action = ActionImproving
	d.Mutations = []Mutation{MutationMarkInnocent}
	d.Message = fmt.Sprintf("improving: clean streak %d/%d", d.CleanStreak, m.redemptionDays)
	return d
}

// Store is the subset of repository.RecordStore that Apply writes to
type Store interface {
	repository.ProbationStore
	repository.LedgerStore
}

// Apply executes d's mutations in order. It stops at the first failure;
// mutations already applied are not rolled back. The ledger entry is
// returned when the decision liquidated the link.
func Apply(ctx context.Context, store Store, d Decision, today time.Time) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry

	for _, mut := range d.Mutations {
		var err error
		switch mut {
		case MutationCreate:
			err = store.CreateProbation(ctx, d.LinkID, d.Offense, today)
		case MutationMarkGuilty:
			err = store.MarkGuilty(ctx, d.LinkID, today)
		case MutationMarkInnocent:
			err = store.MarkInnocent(ctx, d.LinkID)
		case MutationAppendLedger:
			entry, err = store.AppendLedger(ctx, d.LinkID, d.Offense, d.Value, today)
		case MutationDelete:
			err = store.DeleteProbation(ctx, d.LinkID)
		default:
			err = fmt.Errorf("unknown mutation %q", mut)
		}
		if err != nil {
			return entry, fmt.Errorf("%s %s: %w", mut, d.LinkID, err)
		}
	}

	return entry, nil
}
