// Package backend builds the persistence medium and the spreadsheet exporter
// selected by configuration.
package backend

import (
	"context"

	"expenses/internal/sheets"
	"expenses/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// PingFunc reports whether the backend can serve requests.
type PingFunc func(ctx context.Context) error

// MediumResult is a medium plus its optional lifecycle hooks.
type MediumResult struct {
	Medium  storage.Medium
	Cleanup CleanupFunc
	Ping    PingFunc
}

// Close runs the cleanup hook if there is one.
func (r *MediumResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateMedium(ctx context.Context, config Config) (*MediumResult, error)
	CreateExporter(ctx context.Context, config Config) (sheets.Exporter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	// Export is enabled when GoogleSpreadsheetID is set.
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
