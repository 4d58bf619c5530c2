package backend

import (
	"context"
	"fmt"
	"os"

	applog "expenses/internal/log"
	"expenses/internal/sheets"
	gsheet "expenses/internal/sheets/google"
	"expenses/internal/sheets/memory"
	"expenses/internal/storage"
)

var _ Factory = (*DefaultFactory)(nil)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateMedium implements Factory.CreateMedium
func (f *DefaultFactory) CreateMedium(ctx context.Context, config Config) (*MediumResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteMedium(ctx, config)
	case MemoryBackend:
		return f.createMemoryMedium(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteMedium(ctx context.Context, config Config) (*MediumResult, error) {
	mirror, err := storage.NewSQLiteMirror(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite mirror: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"schema_version", mirror.SchemaVersion())

	return &MediumResult{
		Medium:  mirror,
		Cleanup: mirror.Close,
		Ping:    mirror.Ping,
	}, nil
}

func (f *DefaultFactory) createMemoryMedium(ctx context.Context) (*MediumResult, error) {
	f.logger.WarnContext(ctx, "Initialized memory backend, records are lost on restart")
	return &MediumResult{Medium: storage.NewMemoryMirror()}, nil
}

// CreateExporter returns the Google Sheets exporter when a spreadsheet is
// configured and an in-memory exporter otherwise.
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (sheets.Exporter, error) {
	if !config.ExportEnabled() {
		f.logger.WarnContext(ctx, "No spreadsheet configured, exports are kept in memory")
		return memory.New(), nil
	}

	creds := []byte(config.GoogleServiceAccountJSON)
	if len(creds) == 0 {
		data, err := os.ReadFile(config.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = data
	}

	client, err := gsheet.NewWithCredentials(ctx, config.GoogleSpreadsheetID, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets exporter")
	return client, nil
}
