package app

import (
	"context"
	"errors"
	"testing"

	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/store"
)

// stubStatisticsStore is a test double for StatisticsStore.
type stubStatisticsStore struct {
	result []event.YearSummary
	err    error
}

func (s *stubStatisticsStore) SummarizeStatistics(ctx context.Context) ([]event.YearSummary, error) {
	return s.result, s.err
}

type stubCountsStore struct {
	result *store.Counts
	err    error
}

func (s *stubCountsStore) GetCounts(ctx context.Context) (*store.Counts, error) {
	return s.result, s.err
}

func TestStatsService_GetStats_Success(t *testing.T) {
	stats := &stubStatisticsStore{
		result: []event.YearSummary{
			{Year: 2018, TotalFunding: 3.5, TotalActivities: 0},
			{Year: 2020, TotalFunding: 12, TotalActivities: 6},
		},
	}
	counts := &stubCountsStore{result: &store.Counts{CommunityEvents: 4, Tags: 19}}
	svc := NewStatsService(stats, counts)

	result, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}

	if len(result.Years) != 2 {
		t.Fatalf("len(Years) = %d, want 2", len(result.Years))
	}
	if result.Years[0].Year != 2018 || result.Years[1].Year != 2020 {
		t.Errorf("Years not in store order: %+v", result.Years)
	}
	if result.Counts == nil || result.Counts.CommunityEvents != 4 {
		t.Errorf("Counts = %+v, want CommunityEvents=4", result.Counts)
	}
}

func TestStatsService_GetStats_EmptyYears(t *testing.T) {
	svc := NewStatsService(&stubStatisticsStore{}, nil)

	result, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if result.Years == nil {
		t.Error("Years should be empty slice, not nil")
	}
	if result.Counts != nil {
		t.Errorf("Counts = %+v, want nil without a counts store", result.Counts)
	}
}

func TestStatsService_GetStats_Error(t *testing.T) {
	wantErr := errors.New("database error")

	svc := NewStatsService(&stubStatisticsStore{err: wantErr}, nil)
	if _, err := svc.GetStats(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("statistics error = %v, want %v", err, wantErr)
	}

	svc = NewStatsService(&stubStatisticsStore{}, &stubCountsStore{err: wantErr})
	if _, err := svc.GetStats(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("counts error = %v, want %v", err, wantErr)
	}
}
