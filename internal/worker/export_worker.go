// Package worker turns expense change notifications into spreadsheet exports.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expenses/internal/amqp"
	"expenses/internal/identity"
	"expenses/internal/sheets"
	"expenses/internal/storage"
)

// ErrInvalidOwnerKey is returned for keys that no identity maps to.
var ErrInvalidOwnerKey = errors.New("invalid owner key")

// ExportWorker re-reads an owner's mirror and rewrites its exported copy.
type ExportWorker struct {
	medium   storage.Medium
	exporter sheets.Exporter
}

func NewExportWorker(medium storage.Medium, exporter sheets.Exporter) *ExportWorker {
	return &ExportWorker{medium: medium, exporter: exporter}
}

// HandleChange processes one change notification. The message only names the
// owner; the mirror is the source of truth, so stale or duplicate messages
// still export the latest state.
func (w *ExportWorker) HandleChange(ctx context.Context, msg *amqp.ExpenseChangedMessage) error {
	slog.InfoContext(ctx, "Processing expense change",
		"component", "worker",
		"owner_key", msg.OwnerKey,
		"operation", msg.Operation,
		"record_count", msg.RecordCount)

	err := w.Export(ctx, msg.OwnerKey)
	if errors.Is(err, ErrInvalidOwnerKey) {
		return fmt.Errorf("%w: %w", amqp.ErrDiscard, err)
	}
	return err
}

// Export exports the current mirror of ownerKey. A missing mirror exports an
// empty sheet.
func (w *ExportWorker) Export(ctx context.Context, ownerKey string) error {
	if _, ok := identity.ParseOwnerKey(ownerKey); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidOwnerKey, ownerKey)
	}
	blob, _, err := w.medium.Get(ctx, ownerKey)
	if err != nil {
		return fmt.Errorf("read mirror %s: %w", ownerKey, err)
	}
	records, err := storage.DecodeExpenses(blob)
	if err != nil {
		return fmt.Errorf("decode mirror %s: %w", ownerKey, err)
	}
	if err := w.exporter.ExportExpenses(ctx, ownerKey, records); err != nil {
		return fmt.Errorf("export %s: %w", ownerKey, err)
	}
	return nil
}

// Reconcile exports every given owner and reports how many succeeded. It
// keeps going past individual failures.
func (w *ExportWorker) Reconcile(ctx context.Context, ownerKeys []string) (int, error) {
	var errs []error
	synced := 0
	for _, key := range ownerKeys {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.Export(ctx, key); err != nil {
			slog.ErrorContext(ctx, "Failed to export during reconcile",
				"component", "worker",
				"owner_key", key,
				"error", err)
			errs = append(errs, err)
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Reconcile completed",
		"component", "worker",
		"total", len(ownerKeys),
		"synced", synced,
		"errors", len(errs))
	return synced, errors.Join(errs...)
}

// ReconcileAll exports every owner the medium knows about. Media that cannot
// enumerate keys are skipped.
func (w *ExportWorker) ReconcileAll(ctx context.Context) (int, error) {
	lister, ok := w.medium.(storage.KeyLister)
	if !ok {
		slog.WarnContext(ctx, "Storage medium cannot list owners, skipping reconcile", "component", "worker")
		return 0, nil
	}
	keys, err := lister.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}
	owners := keys[:0]
	for _, key := range keys {
		if _, ok := identity.ParseOwnerKey(key); !ok {
			slog.WarnContext(ctx, "Skipping mirror with unknown key", "component", "worker", "owner_key", key)
			continue
		}
		owners = append(owners, key)
	}
	return w.Reconcile(ctx, owners)
}
