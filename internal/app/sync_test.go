package app

import (
	"context"
	"testing"

	"github.com/graaaaa/eventhub/internal/ingest"
	"github.com/graaaaa/eventhub/internal/store"
)

type stubRunner struct {
	all, one int
	lastName string
}

func (r *stubRunner) RunAll(ctx context.Context) ([]ingest.RunResult, error) {
	r.all++
	return []ingest.RunResult{{Source: "a"}, {Source: "b"}}, nil
}

func (r *stubRunner) RunOne(ctx context.Context, name string) (ingest.RunResult, error) {
	r.one++
	r.lastName = name
	return ingest.RunResult{Source: name}, nil
}

func (r *stubRunner) Sources() []string { return []string{"a", "b"} }

type stubRuns struct{ gotLimit int }

func (s *stubRuns) ListSyncRuns(ctx context.Context, limit int) ([]store.SyncRun, error) {
	s.gotLimit = limit
	return []store.SyncRun{}, nil
}

func TestSyncService_Trigger(t *testing.T) {
	runner := &stubRunner{}
	svc := &SyncService{Runner: runner, Runs: &stubRuns{}}
	ctx := context.Background()

	res, err := svc.Trigger(ctx, "")
	if err != nil || len(res) != 2 || runner.all != 1 {
		t.Fatalf("Trigger all: res=%v err=%v all=%d", res, err, runner.all)
	}

	res, err = svc.Trigger(ctx, "b")
	if err != nil || len(res) != 1 || runner.lastName != "b" {
		t.Fatalf("Trigger one: res=%v err=%v name=%q", res, err, runner.lastName)
	}
}

func TestSyncService_HistoryDefaultLimit(t *testing.T) {
	runs := &stubRuns{}
	svc := &SyncService{Runner: &stubRunner{}, Runs: runs}

	if _, err := svc.History(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if runs.gotLimit != DefaultHistoryLimit {
		t.Errorf("limit = %d, want %d", runs.gotLimit, DefaultHistoryLimit)
	}
}
