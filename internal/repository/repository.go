package repository

import (
	"context"
	"io"
	"time"

	"linkmind/internal/domain"
)

// ProbationStore is the probation half of RecordStore
type ProbationStore interface {
	// GetProbation returns the record for a link, or nil if the link is not tracked
	GetProbation(ctx context.Context, linkID string) (*domain.ProbationRecord, error)
	// CreateProbation starts probation with start_date = last_seen = today and a zero streak
	CreateProbation(ctx context.Context, linkID string, offense domain.OffenseKind, today time.Time) error
	// MarkGuilty sets last_seen = today and resets the clean streak
	MarkGuilty(ctx context.Context, linkID string, today time.Time) error
	// MarkInnocent increments the clean streak by one
	MarkInnocent(ctx context.Context, linkID string) error
	// DeleteProbation closes the case for a link
	DeleteProbation(ctx context.Context, linkID string) error
	// ListProbation returns every active probation record ordered by link id
	ListProbation(ctx context.Context) ([]domain.ProbationRecord, error)
}

// LedgerStore is the append-only financial ledger
type LedgerStore interface {
	AppendLedger(ctx context.Context, linkID string, action domain.OffenseKind, value float64, date time.Time) (*domain.LedgerEntry, error)
	ListLedger(ctx context.Context) ([]domain.LedgerEntry, error)
	TotalSavings(ctx context.Context) (float64, error)
	ExportLedger(ctx context.Context, w io.Writer) error
	VerifyLedger(ctx context.Context) error
}

// RecordStore defines durable storage for probation state and the ledger
type RecordStore interface {
	ProbationStore
	LedgerStore

	// Close releases resources
	Close() error
}
