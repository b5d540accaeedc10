package store

import (
	"context"
	"testing"
	"time"

	"github.com/graaaaa/eventhub/internal/event"
)

func TestVacuumIfNeeded_FirstRun(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()

	vacuumed, err := st.VacuumIfNeeded(ctx)
	if err != nil {
		t.Fatalf("VacuumIfNeeded failed: %v", err)
	}
	if !vacuumed {
		t.Error("expected VACUUM to run on first call")
	}

	vacuumed, err = st.VacuumIfNeeded(ctx)
	if err != nil {
		t.Fatalf("VacuumIfNeeded failed: %v", err)
	}
	if vacuumed {
		t.Error("expected VACUUM to be skipped on second call")
	}
}

func TestVacuumIfNeeded_Interval(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"stale", 31 * 24 * time.Hour, true},
		{"recent", 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openTestStore(t)
			defer st.Close()

			ctx := context.Background()
			if err := st.setLastVacuumTime(ctx, time.Now().Add(-tt.age)); err != nil {
				t.Fatalf("setLastVacuumTime failed: %v", err)
			}
			vacuumed, err := st.VacuumIfNeeded(ctx)
			if err != nil {
				t.Fatalf("VacuumIfNeeded failed: %v", err)
			}
			if vacuumed != tt.want {
				t.Errorf("vacuumed = %v, want %v", vacuumed, tt.want)
			}
		})
	}
}

func TestInsertRejectedRecord_Dedupe(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	raw := `{"title":"Title not found","source":"https://x.example/e/9"}`

	inserted, err := st.InsertRejectedRecord(ctx, "artsrepublic", raw, "placeholder title")
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = st.InsertRejectedRecord(ctx, "artsrepublic", raw, "placeholder title")
	if err != nil || inserted {
		t.Fatalf("second insert: inserted=%v err=%v", inserted, err)
	}
	// The same payload from another source is kept separately.
	inserted, err = st.InsertRejectedRecord(ctx, "eventfinda", raw, "placeholder title")
	if err != nil || !inserted {
		t.Fatalf("other source: inserted=%v err=%v", inserted, err)
	}

	n, err := st.CountRejectedRecords(ctx)
	if err != nil {
		t.Fatalf("CountRejectedRecords: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	if _, err := st.InsertRejectedRecord(ctx, "x", "", "empty"); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestSyncRuns_AndCounts(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()

	counts, err := st.GetCounts(ctx)
	if err != nil {
		t.Fatalf("GetCounts: %v", err)
	}
	if counts.CommunityEvents != 0 || counts.LastSyncAt != nil {
		t.Errorf("empty counts = %+v", counts)
	}

	started := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	msg := "list page unreachable"
	runs := []*SyncRun{
		{RunID: "r1", Source: "artsrepublic", StartedAt: started, FinishedAt: started.Add(time.Minute), Upserted: 3, Skipped: 1},
		{RunID: "r1", Source: "eventfinda", StartedAt: started.Add(2 * time.Minute), FinishedAt: started.Add(3 * time.Minute), Failed: 2, Error: &msg},
	}
	for _, r := range runs {
		if err := st.InsertSyncRun(ctx, r); err != nil {
			t.Fatalf("InsertSyncRun: %v", err)
		}
	}

	got, err := st.ListSyncRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListSyncRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d runs, want 2", len(got))
	}
	if got[0].Source != "eventfinda" || got[0].Error == nil || *got[0].Error != msg {
		t.Errorf("newest run = %+v", got[0])
	}
	if got[1].Upserted != 3 || got[1].Skipped != 1 {
		t.Errorf("oldest run = %+v", got[1])
	}

	createTestEvent(t, st, 1, "Open Mic", started)
	if err := st.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: event.CommunityIdentifier(1), Title: "Open Mic"}); err != nil {
		t.Fatalf("InsertLedgerEntry: %v", err)
	}

	counts, err = st.GetCounts(ctx)
	if err != nil {
		t.Fatalf("GetCounts: %v", err)
	}
	if counts.CommunityEvents != 1 || counts.Venues != 1 || counts.LedgerEntries != 1 {
		t.Errorf("counts = %+v", counts)
	}
	if counts.LastSyncAt == nil || *counts.LastSyncAt != started.Add(3*time.Minute).Format(TimeFormat) {
		t.Errorf("last_sync_at = %v", counts.LastSyncAt)
	}
}
