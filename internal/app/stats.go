package app

import (
	"context"

	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/store"
)

// StatsResult represents the response for the stats endpoint.
type StatsResult struct {
	Years  []event.YearSummary `json:"years"`
	Counts *store.Counts       `json:"counts,omitempty"`
}

// StatsUsecase defines the interface for stats operations.
type StatsUsecase interface {
	GetStats(ctx context.Context) (*StatsResult, error)
}

// StatisticsStore summarizes yearly statistics documents.
type StatisticsStore interface {
	SummarizeStatistics(ctx context.Context) ([]event.YearSummary, error)
}

// CountsStore returns relational row totals.
type CountsStore interface {
	GetCounts(ctx context.Context) (*store.Counts, error)
}

// StatsService implements StatsUsecase.
type StatsService struct {
	statistics StatisticsStore
	counts     CountsStore
}

// NewStatsService creates a new StatsService. counts may be nil.
func NewStatsService(statistics StatisticsStore, counts CountsStore) *StatsService {
	return &StatsService{statistics: statistics, counts: counts}
}

// GetStats returns per-year totals ordered by year, plus relational row counts.
func (s *StatsService) GetStats(ctx context.Context) (*StatsResult, error) {
	years, err := s.statistics.SummarizeStatistics(ctx)
	if err != nil {
		return nil, err
	}
	if years == nil {
		years = []event.YearSummary{}
	}

	res := &StatsResult{Years: years}
	if s.counts != nil {
		counts, err := s.counts.GetCounts(ctx)
		if err != nil {
			return nil, err
		}
		res.Counts = counts
	}
	return res, nil
}
