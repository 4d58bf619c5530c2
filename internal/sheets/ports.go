// Package sheets defines the spreadsheet export port; adapters live in the
// google and memory subpackages.
package sheets

import (
	"context"

	"expenses/internal/core"
)

// Exporter replaces the exported copy of one owner's records.
type Exporter interface {
	ExportExpenses(ctx context.Context, ownerKey string, records []core.Expense) error
}

// Header is the first row of every exported tab.
var Header = []string{"Date", "Title", "Amount", "Category", "ID"}

// Row renders one record in Header order.
func Row(e core.Expense) []string {
	return []string{
		e.Date.Format("2006-01-02"),
		e.Title,
		e.Amount.String(),
		e.Category.String(),
		e.ID,
	}
}
