// Package report builds the CFO financial report from the ledger.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"linkmind/internal/codec"
	"linkmind/internal/domain"
	"linkmind/internal/repository"
	"linkmind/internal/rules"
)

// Breakdown totals the liquidations of one offense kind
type Breakdown struct {
	Offense domain.OffenseKind `json:"offense"`
	Count   int                `json:"count"`
	Total   decimal.Decimal    `json:"total"`
}

// Summary is the aggregate view of the ledger
type Summary struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     int             `json:"entries"`
	Total       decimal.Decimal `json:"total"`
	ByOffense   []Breakdown     `json:"by_offense"`
	Rates       rules.Rates     `json:"-"`
}

// Build aggregates entries. Totals are summed in decimal so the report
// does not drift from the per-row CSV values.
func Build(entries []domain.LedgerEntry, rates rules.Rates, now time.Time) *Summary {
	s := &Summary{
		GeneratedAt: now,
		Entries:     len(entries),
		Total:       decimal.Zero,
		Rates:       rates,
	}

	byKind := make(map[domain.OffenseKind]*Breakdown)
	for _, e := range entries {
		v := decimal.NewFromFloat(e.RecoveredValue)
		s.Total = s.Total.Add(v)

		b, ok := byKind[e.Action]
		if !ok {
			b = &Breakdown{Offense: e.Action, Total: decimal.Zero}
			byKind[e.Action] = b
		}
		b.Count++
		b.Total = b.Total.Add(v)
	}

	for _, b := range byKind {
		s.ByOffense = append(s.ByOffense, *b)
	}
	sort.Slice(s.ByOffense, func(i, j int) bool {
		return s.ByOffense[i].Offense < s.ByOffense[j].Offense
	})

	return s
}

// Generate verifies the ledger chain, writes the full ledger as CSV to w
// and returns the summary. A broken chain aborts before anything is written.
func Generate(ctx context.Context, store repository.LedgerStore, w io.Writer, rates rules.Rates, now time.Time) (*Summary, error) {
	if err := store.VerifyLedger(ctx); err != nil {
		return nil, err
	}

	entries, err := store.ListLedger(ctx)
	if err != nil {
		return nil, err
	}

	if err := codec.WriteLedgerCSV(w, entries); err != nil {
		return nil, fmt.Errorf("export ledger: %w", err)
	}

	return Build(entries, rates, now), nil
}

// WriteText renders the human-readable CFO report
func (s *Summary) WriteText(w io.Writer) error {
	var b strings.Builder

	rule := strings.Repeat("=", 40)
	b.WriteString("CFO FINANCIAL REPORT\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total Recovered Assets: %s\n", FormatUSD(s.Total))
	fmt.Fprintf(&b, "Liquidations: %d\n", s.Entries)
	for _, bd := range s.ByOffense {
		fmt.Fprintf(&b, "  %-18s %4d  %s\n", bd.Offense, bd.Count, FormatUSD(bd.Total))
	}
	fmt.Fprintf(&b, "Formula: Savings_Total = sum(Recovered_BW x %s) + sum(Recovered_Lic x %s)\n",
		FormatUSD(decimal.NewFromFloat(s.Rates.BandwidthPerMHz)),
		FormatUSD(decimal.NewFromFloat(s.Rates.LicensePerUnit)))
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatUSD renders d as $1,234.56
func FormatUSD(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	return sign + "$" + grouped.String() + "." + frac
}
