package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"linkmind/internal/codec"
	"linkmind/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.RecordStore using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// dsn applies per-connection pragmas through the modernc DSN syntax
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	return "file:" + dbPath + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS probation_list (
		link_id TEXT PRIMARY KEY,
		offense_code TEXT NOT NULL,
		start_date TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		clean_streak INTEGER NOT NULL DEFAULT 0 CHECK (clean_streak >= 0)
	);

	CREATE TABLE IF NOT EXISTS financial_ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		link_id TEXT NOT NULL,
		action_taken TEXT NOT NULL,
		recovered_value REAL NOT NULL CHECK (recovered_value >= 0),
		prev_hash TEXT,
		hash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_link ON financial_ledger(link_id);

	CREATE TRIGGER IF NOT EXISTS ledger_no_update
	BEFORE UPDATE ON financial_ledger
	BEGIN
		SELECT RAISE(ABORT, 'financial_ledger is append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS ledger_no_delete
	BEFORE DELETE ON financial_ledger
	BEGIN
		SELECT RAISE(ABORT, 'financial_ledger is append-only');
	END;
	`

	_, err := r.db.Exec(schema)
	return err
}

// ============================================================================
// Probation records
// ============================================================================

// GetProbation returns the record for a link, or nil if none exists
func (r *Repository) GetProbation(ctx context.Context, linkID string) (*domain.ProbationRecord, error) {
	var row probationRow
	err := r.db.QueryRowContext(ctx,
		`SELECT `+probationColumns+` FROM probation_list WHERE link_id = ?`, linkID,
	).Scan(row.scanArgs()...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get probation", err)
	}

	return row.toDomain()
}

// CreateProbation starts probation for a link
func (r *Repository) CreateProbation(ctx context.Context, linkID string, offense domain.OffenseKind, today time.Time) error {
	day := domain.FormatDate(today)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO probation_list (link_id, offense_code, start_date, last_seen, clean_streak)
		VALUES (?, ?, ?, ?, 0)
	`, linkID, string(offense), day, day)
	if err != nil {
		return storeErr("create probation", err)
	}
	return nil
}

// MarkGuilty updates last_seen and resets the clean streak
func (r *Repository) MarkGuilty(ctx context.Context, linkID string, today time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE probation_list SET last_seen = ?, clean_streak = 0 WHERE link_id = ?
	`, domain.FormatDate(today), linkID)
	if err != nil {
		return storeErr("mark guilty", err)
	}
	return requireAffected(res, linkID)
}

// MarkInnocent increments the clean streak
func (r *Repository) MarkInnocent(ctx context.Context, linkID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE probation_list SET clean_streak = clean_streak + 1 WHERE link_id = ?
	`, linkID)
	if err != nil {
		return storeErr("mark innocent", err)
	}
	return requireAffected(res, linkID)
}

// DeleteProbation removes a link's record. Deleting an absent record is a no-op.
func (r *Repository) DeleteProbation(ctx context.Context, linkID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM probation_list WHERE link_id = ?`, linkID)
	if err != nil {
		return storeErr("delete probation", err)
	}
	return nil
}

// ListProbation returns all active probation records ordered by link id
func (r *Repository) ListProbation(ctx context.Context) ([]domain.ProbationRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+probationColumns+` FROM probation_list ORDER BY link_id`)
	if err != nil {
		return nil, storeErr("list probation", err)
	}
	defer rows.Close()

	var records []domain.ProbationRecord
	for rows.Next() {
		var row probationRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, storeErr("scan probation", err)
		}
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate probation", err)
	}
	return records, nil
}

// ============================================================================
// Ledger
// ============================================================================

// AppendLedger writes a new ledger entry chained to the previous one
func (r *Repository) AppendLedger(ctx context.Context, linkID string, action domain.OffenseKind, value float64, date time.Time) (*domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin ledger append", err)
	}
	defer tx.Rollback()

	var prev sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT hash FROM financial_ledger ORDER BY id DESC LIMIT 1`,
	).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("read ledger head", err)
	}

	entry := &domain.LedgerEntry{
		Date:           domain.Day(date),
		LinkID:         linkID,
		Action:         action,
		RecoveredValue: value,
		PrevHash:       nullToString(prev),
	}
	entry.Hash = chainHash(entry)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO financial_ledger (date, link_id, action_taken, recovered_value, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ledgerInsertArgs(entry)...)
	if err != nil {
		return nil, storeErr("append ledger", err)
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return nil, storeErr("ledger insert id", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit ledger append", err)
	}
	return entry, nil
}

// ListLedger returns every ledger entry in insertion order
func (r *Repository) ListLedger(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM financial_ledger ORDER BY id`)
	if err != nil {
		return nil, storeErr("list ledger", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var row ledgerRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, storeErr("scan ledger", err)
		}
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate ledger", err)
	}
	return entries, nil
}

// TotalSavings returns the sum of all recovered values
func (r *Repository) TotalSavings(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(recovered_value), 0) FROM financial_ledger`,
	).Scan(&total)
	if err != nil {
		return 0, storeErr("total savings", err)
	}
	return total, nil
}

// ExportLedger writes the full ledger as CSV
func (r *Repository) ExportLedger(ctx context.Context, w io.Writer) error {
	entries, err := r.ListLedger(ctx)
	if err != nil {
		return err
	}
	return codec.WriteLedgerCSV(w, entries)
}

// VerifyLedger recomputes the hash chain and reports the first broken link
func (r *Repository) VerifyLedger(ctx context.Context) error {
	entries, err := r.ListLedger(ctx)
	if err != nil {
		return err
	}

	prev := ""
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d does not follow its predecessor", domain.ErrLedgerTampered, e.ID)
		}
		if chainHash(e) != e.Hash {
			return fmt.Errorf("%w: entry %d content does not match its hash", domain.ErrLedgerTampered, e.ID)
		}
		prev = e.Hash
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func requireAffected(res sql.Result, linkID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, linkID)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
