// Package ledger keeps the append‑only record of executed trades and writes
// the flat tabular export (date, action, shares, price, portfolio value).
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/evdnx/govr/types"
)

// Ledger is an append‑only trade log.  Records are never mutated or removed.
type Ledger struct {
	records []types.TradeRecord
}

func New() *Ledger { return &Ledger{} }

// Append adds one executed action.
func (l *Ledger) Append(r types.TradeRecord) {
	l.records = append(l.records, r)
}

// Records returns a copy of all records in execution order.
func (l *Ledger) Records() []types.TradeRecord {
	out := make([]types.TradeRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of recorded actions.
func (l *Ledger) Len() int { return len(l.records) }

// Count returns how many records carry the given action kind.
func (l *Ledger) Count(action types.Action) int {
	n := 0
	for _, r := range l.records {
		if r.Action == action {
			n++
		}
	}
	return n
}

// Switches counts completed rotations (switch‑buy legs).
func (l *Ledger) Switches() int { return l.Count(types.SwitchBuy) }

// WriteCSV renders the ledger as a flat table.
func (l *Ledger) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Action", "Symbol", "Shares", "Price", "PortfolioValue"}); err != nil {
		return err
	}
	for _, r := range l.records {
		row := []string{
			r.Date.Format("2006-01-02"),
			string(r.Action),
			r.Symbol,
			fmt.Sprintf("%.4f", r.Shares),
			fmt.Sprintf("%.2f", r.Price),
			fmt.Sprintf("%.2f", r.PortfolioValue),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the ledger to a file.
func (l *Ledger) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := l.WriteCSV(f); err != nil {
		return err
	}
	return f.Sync()
}
