// Package memory is an in-process sheets.Exporter for development and tests.
package memory

import (
	"context"
	"sync"

	"expenses/internal/core"
	"expenses/internal/sheets"
)

type Exporter struct {
	mu      sync.Mutex
	tabs    map[string][][]string
	exports int
}

var _ sheets.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{tabs: make(map[string][][]string)}
}

// ExportExpenses replaces the owner's tab with the rendered rows.
func (e *Exporter) ExportExpenses(_ context.Context, ownerKey string, records []core.Expense) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, append([]string(nil), sheets.Header...))
	for _, r := range records {
		rows = append(rows, sheets.Row(r))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tabs[ownerKey] = rows
	e.exports++
	return nil
}

// Tab returns the rows last exported for ownerKey, header included.
func (e *Exporter) Tab(ownerKey string) ([][]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows, ok := e.tabs[ownerKey]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, true
}

// Exports counts ExportExpenses calls.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}
