// Package store persists quality-check runs and their processed submissions.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// ProcessedFilter narrows submission listings.
type ProcessedFilter struct {
	FlaggedOnly bool       `json:"flagged_only,omitempty"`
	Flag        model.Flag `json:"flag,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// Store defines the persistence interface for quality-check results.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source string, clusterRadiusM float64, boundaryCount int) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, total, flagged int) error
	FailRun(ctx context.Context, runID string, msg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]model.Run, error)

	// Submissions
	SaveProcessed(ctx context.Context, runID string, subs []model.ProcessedSubmission) error
	ListProcessed(ctx context.Context, runID string, filter ProcessedFilter) ([]model.ProcessedSubmission, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned when a run or submission does not exist.
var ErrNotFound = eris.New("store: not found")

// Open creates a Store for the configured driver and runs migrations.
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	var s Store
	switch driver {
	case "sqlite", "":
		sq, err := NewSQLite(databaseURL)
		if err != nil {
			return nil, err
		}
		s = sq
	case "postgres":
		pg, err := NewPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		s = pg
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
