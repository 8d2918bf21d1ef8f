package codec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"linkmind/internal/domain"
)

var (
	// LedgerHeader is the column row of the financial report
	LedgerHeader = []string{"ID", "Date", "Link ID", "Action", "Value($)"}
	// AuditHeader is the column row of the simulation audit log
	AuditHeader = []string{"Timestamp", "Link ID", "Verdict", "Potential Saving", "Script Draft"}
)

// WriteLedgerCSV writes the header and one row per ledger entry
func WriteLedgerCSV(w io.Writer, entries []domain.LedgerEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeader); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			domain.FormatDate(e.Date),
			e.LinkID,
			string(e.Action),
			formatMoney(e.RecoveredValue),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write ledger row %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// AuditRow is one line of the simulation audit log
type AuditRow struct {
	Timestamp       time.Time
	LinkID          string
	Verdict         domain.VerdictStatus
	PotentialSaving float64
	ScriptDraft     string
}

// Record renders the row in AuditHeader column order
func (r AuditRow) Record() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.LinkID,
		string(r.Verdict),
		formatMoney(r.PotentialSaving),
		r.ScriptDraft,
	}
}

// WriteAuditRows writes rows, optionally preceded by the header
func WriteAuditRows(w io.Writer, header bool, rows ...AuditRow) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(AuditHeader); err != nil {
			return fmt.Errorf("write audit header: %w", err)
		}
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("write audit row for %s: %w", r.LinkID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
