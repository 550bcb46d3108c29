// Package storage persists the migration report. Every Save replaces the
// stored report as a whole so readers never observe a partial report.
// Update serializes read-modify-write cycles against one store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/masahif/sitediff/internal/config"
	"github.com/masahif/sitediff/internal/report"
)

// ErrReportNotFound is returned by Load when no report was saved yet
var ErrReportNotFound = errors.New("report not found")

// ReportStore loads and saves the report
type ReportStore interface {
	Load(ctx context.Context) (*report.Report, error)
	Save(ctx context.Context, r *report.Report) error
	// Update applies fn to the stored report and saves it atomically with
	// respect to other Save and Update calls. The load error, such as
	// ErrReportNotFound, or the error of fn is returned unchanged.
	Update(ctx context.Context, fn func(*report.Report) error) error
	Close() error
}

// Open returns the store for the configured backend
func Open(cfg config.ReportConfig) (ReportStore, error) {
	switch cfg.Backend {
	case config.BackendJSON, "":
		return NewJSONStore(cfg.Path), nil
	case config.BackendSQLite:
		return NewSQLiteStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidReportBackend, cfg.Backend)
	}
}
