package app

import (
	"context"

	"github.com/graaaaa/eventhub/internal/ingest"
	"github.com/graaaaa/eventhub/internal/store"
)

// DefaultHistoryLimit is the number of sync runs History returns by default.
const DefaultHistoryLimit = 20

// SyncUsecase defines the admin sync use cases.
type SyncUsecase interface {
	// Trigger runs every source, or only the named one.
	Trigger(ctx context.Context, source string) ([]ingest.RunResult, error)

	// Sources lists the runnable source names.
	Sources() []string

	// History lists recent sync runs, newest first.
	History(ctx context.Context, limit int) ([]store.SyncRun, error)
}

// SyncRunner runs ingestion.
type SyncRunner interface {
	RunAll(ctx context.Context) ([]ingest.RunResult, error)
	RunOne(ctx context.Context, name string) (ingest.RunResult, error)
	Sources() []string
}

// RunLister reads recorded sync runs.
type RunLister interface {
	ListSyncRuns(ctx context.Context, limit int) ([]store.SyncRun, error)
}

// SyncService implements SyncUsecase.
type SyncService struct {
	Runner SyncRunner
	Runs   RunLister
}

// Trigger runs ingestion synchronously.
func (s *SyncService) Trigger(ctx context.Context, source string) ([]ingest.RunResult, error) {
	if source == "" {
		return s.Runner.RunAll(ctx)
	}
	res, err := s.Runner.RunOne(ctx, source)
	if err != nil {
		return nil, err
	}
	return []ingest.RunResult{res}, nil
}

// Sources lists source names.
func (s *SyncService) Sources() []string {
	return s.Runner.Sources()
}

// History lists recent runs.
func (s *SyncService) History(ctx context.Context, limit int) ([]store.SyncRun, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.Runs.ListSyncRuns(ctx, limit)
}
