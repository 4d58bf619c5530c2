package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/sheets/memory"
	"expenses/internal/storage"
)

func seed(t *testing.T, m storage.Medium, key string, records ...core.Expense) {
	t.Helper()
	blob, err := storage.EncodeExpenses(records)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Set(context.Background(), key, blob); err != nil {
		t.Fatal(err)
	}
}

var lunch = core.Expense{
	ID: "1", Title: "Lunch", Amount: core.Cents(1250), Category: core.Food,
	Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), UserID: "alice",
}

func TestHandleChangeExportsMirror(t *testing.T) {
	m := storage.NewMemoryMirror()
	exp := memory.New()
	seed(t, m, "expenses-alice", lunch)

	w := NewExportWorker(m, exp)
	msg := amqp.NewExpenseChangedMessage("expenses-alice", amqp.OpCreate, "1", 1)
	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows, ok := exp.Tab("expenses-alice")
	if !ok || len(rows) != 2 || rows[1][1] != "Lunch" {
		t.Fatalf("unexpected export %v", rows)
	}
}

func TestExportMissingMirrorWritesEmptySheet(t *testing.T) {
	exp := memory.New()
	w := NewExportWorker(storage.NewMemoryMirror(), exp)
	if err := w.Export(context.Background(), "expenses-ghost"); err != nil {
		t.Fatalf("export: %v", err)
	}
	rows, ok := exp.Tab("expenses-ghost")
	if !ok || len(rows) != 1 {
		t.Fatalf("expected header only, got %v", rows)
	}
}

type failingExporter struct{ fail map[string]bool }

func (f failingExporter) ExportExpenses(_ context.Context, key string, _ []core.Expense) error {
	if f.fail[key] {
		return errors.New("quota")
	}
	return nil
}

func TestReconcileContinuesPastFailures(t *testing.T) {
	m := storage.NewMemoryMirror()
	seed(t, m, "expenses")
	seed(t, m, "expenses-alice", lunch)
	_ = m.Set(context.Background(), "expenses-broken", []byte("not json"))
	seed(t, m, "expenses-bob")

	w := NewExportWorker(m, failingExporter{fail: map[string]bool{"expenses-bob": true}})
	synced, err := w.ReconcileAll(context.Background())
	if synced != 2 {
		t.Fatalf("expected 2 synced, got %d", synced)
	}
	if err == nil || !strings.Contains(err.Error(), "expenses-broken") || !strings.Contains(err.Error(), "expenses-bob") {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

type blindMedium struct{ storage.Medium }

func TestReconcileAllWithoutLister(t *testing.T) {
	w := NewExportWorker(blindMedium{storage.NewMemoryMirror()}, memory.New())
	if n, err := w.ReconcileAll(context.Background()); n != 0 || err != nil {
		t.Fatalf("expected skip, got %d %v", n, err)
	}
}

func TestHandleChangeRejectsUnknownOwnerKey(t *testing.T) {
	m := storage.NewMemoryMirror()
	exp := memory.New()
	w := NewExportWorker(m, exp)

	for _, key := range []string{"", "settings", "expenses-", "expenses-a b", "expensesalice"} {
		msg := &amqp.ExpenseChangedMessage{OwnerKey: key, Operation: amqp.OpDelete}
		err := w.HandleChange(context.Background(), msg)
		if !errors.Is(err, amqp.ErrDiscard) || !errors.Is(err, ErrInvalidOwnerKey) {
			t.Fatalf("%q: expected discard, got %v", key, err)
		}
		if _, ok := exp.Tab(key); ok {
			t.Fatalf("%q: tab exported for invalid key", key)
		}
	}
}

func TestReconcileAllSkipsUnknownKeys(t *testing.T) {
	m := storage.NewMemoryMirror()
	seed(t, m, "expenses-alice", lunch)
	seed(t, m, "settings", lunch)

	exp := memory.New()
	w := NewExportWorker(m, exp)
	synced, err := w.ReconcileAll(context.Background())
	if synced != 1 || err != nil {
		t.Fatalf("expected 1 synced, got %d %v", synced, err)
	}
	if _, ok := exp.Tab("settings"); ok {
		t.Fatal("unknown key exported")
	}
}
