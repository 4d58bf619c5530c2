package memory

import (
	"context"
	"testing"
	"time"

	"expenses/internal/core"
)

func TestExporterReplacesTab(t *testing.T) {
	e := New()
	ctx := context.Background()
	rec := core.Expense{ID: "1", Title: "Rent", Amount: core.Cents(90000), Category: core.Housing, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	if err := e.ExportExpenses(ctx, "expenses-bob", []core.Expense{rec, rec}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := e.ExportExpenses(ctx, "expenses-bob", []core.Expense{rec}); err != nil {
		t.Fatalf("export: %v", err)
	}

	rows, ok := e.Tab("expenses-bob")
	if !ok || len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %v", rows)
	}
	if rows[1][2] != "900.00" || rows[1][3] != "Housing" {
		t.Fatalf("unexpected row %v", rows[1])
	}
	if e.Exports() != 2 {
		t.Fatalf("expected 2 exports, got %d", e.Exports())
	}
	if _, ok := e.Tab("expenses"); ok {
		t.Fatal("unexpected tab for anonymous owner")
	}
}
