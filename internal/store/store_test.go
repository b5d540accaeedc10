package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/graaaaa/eventhub/internal/event"
)

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sqlite")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	journalMode, err := store.journalMode()
	if err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}

	var fk int
	if err := store.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	for i := 0; i < 2; i++ {
		store, err := Open(dbPath)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		store.Close()
	}
}

func TestCreateCommunityEvent(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	venue := createTestVenue(t, store, "Esplanade")

	e := &event.CommunityEvent{
		UserID:      7,
		VenueID:     venue.ID,
		Title:       "Open Mic",
		Description: "Bring your guitar",
		Start:       time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC),
		Location:    event.StringPtr("Studio 2"),
	}
	if err := store.CreateCommunityEvent(ctx, e); err != nil {
		t.Fatalf("CreateCommunityEvent: %v", err)
	}
	if e.ID == 0 {
		t.Fatal("expected ID to be set")
	}

	got, err := store.GetCommunityEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetCommunityEvent: %v", err)
	}
	if got.Title != "Open Mic" || got.UserID != 7 {
		t.Errorf("got %+v", got)
	}
	if !got.Start.Equal(e.Start) || !got.End.Equal(e.End) {
		t.Errorf("times = %v..%v, want %v..%v", got.Start, got.End, e.Start, e.End)
	}
	if got.Venue == nil || got.Venue.Name != "Esplanade" {
		t.Errorf("venue = %+v, want Esplanade", got.Venue)
	}
	if event.Deref(got.Location) != "Studio 2" {
		t.Errorf("location = %v", got.Location)
	}
	if got.ImageURL != nil {
		t.Errorf("image_url = %v, want nil", *got.ImageURL)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Errorf("tags = %v, want empty", got.Tags)
	}
}

func TestCreateCommunityEvent_Validation(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event *event.CommunityEvent
	}{
		{"missing user", &event.CommunityEvent{VenueID: 1, Title: "x", Start: start, End: start}},
		{"missing venue", &event.CommunityEvent{UserID: 1, Title: "x", Start: start, End: start}},
		{"blank title", &event.CommunityEvent{UserID: 1, VenueID: 1, Title: "  ", Start: start, End: start}},
		{"missing start", &event.CommunityEvent{UserID: 1, VenueID: 1, Title: "x", End: start}},
		{"missing end", &event.CommunityEvent{UserID: 1, VenueID: 1, Title: "x", Start: start}},
		{"end before start", &event.CommunityEvent{UserID: 1, VenueID: 1, Title: "x", Start: start, End: start.Add(-time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateCommunityEvent(ctx, tt.event)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestCreateCommunityEvent_UnknownVenue(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	start := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)
	err := store.CreateCommunityEvent(context.Background(), &event.CommunityEvent{
		UserID: 1, VenueID: 999, Title: "x", Start: start, End: start,
	})
	if !errors.Is(err, ErrMissingReference) {
		t.Errorf("expected ErrMissingReference, got %v", err)
	}
}

func TestUpdateAndDeleteCommunityEvent_Owner(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	e := createTestEvent(t, store, 7, "Open Mic", time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC))

	other := *e
	other.UserID = 8
	other.Title = "Hijacked"
	if err := store.UpdateCommunityEvent(ctx, &other); !errors.Is(err, ErrNotOwner) {
		t.Errorf("update by non-owner: expected ErrNotOwner, got %v", err)
	}

	e.Title = "Open Mic Night"
	if err := store.UpdateCommunityEvent(ctx, e); err != nil {
		t.Fatalf("UpdateCommunityEvent: %v", err)
	}
	got, err := store.GetCommunityEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetCommunityEvent: %v", err)
	}
	if got.Title != "Open Mic Night" {
		t.Errorf("title = %q", got.Title)
	}

	if err := store.DeleteCommunityEvent(ctx, e.ID, 8); !errors.Is(err, ErrNotOwner) {
		t.Errorf("delete by non-owner: expected ErrNotOwner, got %v", err)
	}
	if err := store.DeleteCommunityEvent(ctx, e.ID, 7); err != nil {
		t.Fatalf("DeleteCommunityEvent: %v", err)
	}
	if _, err := store.GetCommunityEvent(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteCommunityEvent(ctx, e.ID, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCommunityEvent_KeepsLedgerRow(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	e := createTestEvent(t, store, 7, "Open Mic", time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC))
	id := e.Identifier()

	if err := store.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: id, Title: e.Title}); err != nil {
		t.Fatalf("InsertLedgerEntry: %v", err)
	}
	if err := store.DeleteCommunityEvent(ctx, e.ID, 7); err != nil {
		t.Fatalf("DeleteCommunityEvent: %v", err)
	}
	if _, err := store.GetLedgerEntry(ctx, id); err != nil {
		t.Errorf("ledger row should survive event deletion: %v", err)
	}
}

func TestListCommunityEvents_EagerTags(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)
	later := createTestEvent(t, store, 1, "Later", base.Add(48*time.Hour))
	earlier := createTestEvent(t, store, 1, "Earlier", base)

	music, _, err := store.EnsureTag(ctx, "Music")
	if err != nil {
		t.Fatalf("EnsureTag: %v", err)
	}
	film, _, err := store.EnsureTag(ctx, "Film")
	if err != nil {
		t.Fatalf("EnsureTag: %v", err)
	}

	// Apply Film first so it becomes the first tag of "Earlier".
	applyTag(t, store, film.ID, earlier.Identifier())
	applyTag(t, store, music.ID, earlier.Identifier())
	applyTag(t, store, music.ID, later.Identifier())

	events, err := store.ListCommunityEvents(ctx)
	if err != nil {
		t.Fatalf("ListCommunityEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Title != "Earlier" || events[1].Title != "Later" {
		t.Errorf("order = %q, %q", events[0].Title, events[1].Title)
	}
	if len(events[0].Tags) != 2 || events[0].Tags[0].Name != "Film" || events[0].Tags[1].Name != "Music" {
		t.Errorf("earlier tags = %+v", events[0].Tags)
	}
	if len(events[1].Tags) != 1 || events[1].Tags[0].Name != "Music" {
		t.Errorf("later tags = %+v", events[1].Tags)
	}
	if events[0].Venue == nil {
		t.Error("venue not loaded")
	}
}

func TestQueryCommunityEvents_Pagination(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		createTestEvent(t, store, 1, fmt.Sprintf("Event %d", i), base.Add(time.Duration(i)*time.Hour))
	}
	// Same start as Event 4; id breaks the tie.
	createTestEvent(t, store, 2, "Event 5", base.Add(4*time.Hour))

	var titles []string
	var cursor *string
	for page := 0; page < 10; page++ {
		res, err := store.QueryCommunityEvents(ctx, CommunityFilter{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("QueryCommunityEvents: %v", err)
		}
		for _, e := range res.Items {
			titles = append(titles, e.Title)
		}
		if res.NextCursor == nil {
			break
		}
		cursor = res.NextCursor
	}

	want := []string{"Event 0", "Event 1", "Event 2", "Event 3", "Event 4", "Event 5"}
	if fmt.Sprint(titles) != fmt.Sprint(want) {
		t.Errorf("titles = %v, want %v", titles, want)
	}
}

func TestQueryCommunityEvents_ByUser(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	createTestEvent(t, store, 1, "Mine", base)
	createTestEvent(t, store, 2, "Theirs", base)

	uid := int64(2)
	res, err := store.QueryCommunityEvents(ctx, CommunityFilter{UserID: &uid})
	if err != nil {
		t.Fatalf("QueryCommunityEvents: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != "Theirs" {
		t.Errorf("items = %+v", res.Items)
	}
	if res.NextCursor != nil {
		t.Error("expected no next cursor")
	}
}

func TestQueryCommunityEvents_InvalidCursor(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	bad := "!!!"
	_, err := store.QueryCommunityEvents(context.Background(), CommunityFilter{Cursor: &bad})
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestCreateVenue_Duplicate(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	createTestVenue(t, store, "Esplanade")
	err := store.CreateVenue(context.Background(), &event.Venue{Name: "Esplanade"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	venues, err := store.ListVenues(context.Background())
	if err != nil {
		t.Fatalf("ListVenues: %v", err)
	}
	if len(venues) != 1 {
		t.Errorf("got %d venues, want 1", len(venues))
	}
}

func TestEnsureTag_Idempotent(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	first, created, err := store.EnsureTag(ctx, "Music")
	if err != nil || !created {
		t.Fatalf("first EnsureTag: created=%v err=%v", created, err)
	}
	second, created, err := store.EnsureTag(ctx, " Music ")
	if err != nil || created {
		t.Fatalf("second EnsureTag: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %d vs %d", first.ID, second.ID)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sqlite")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func createTestVenue(t *testing.T, s *Store, name string) *event.Venue {
	t.Helper()
	v := &event.Venue{Name: name, Address: "1 Esplanade Dr"}
	if err := s.CreateVenue(context.Background(), v); err != nil {
		t.Fatalf("CreateVenue: %v", err)
	}
	return v
}

func createTestEvent(t *testing.T, s *Store, userID int64, title string, start time.Time) *event.CommunityEvent {
	t.Helper()
	ctx := context.Background()
	venues, err := s.ListVenues(ctx)
	if err != nil {
		t.Fatalf("ListVenues: %v", err)
	}
	var venueID int64
	if len(venues) > 0 {
		venueID = venues[0].ID
	} else {
		venueID = createTestVenue(t, s, "Test Venue").ID
	}

	e := &event.CommunityEvent{
		UserID:  userID,
		VenueID: venueID,
		Title:   title,
		Start:   start,
		End:     start.Add(2 * time.Hour),
	}
	if err := s.CreateCommunityEvent(ctx, e); err != nil {
		t.Fatalf("CreateCommunityEvent: %v", err)
	}
	return e
}

func applyTag(t *testing.T, s *Store, tagID int64, id event.Identifier) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.GetLedgerEntry(ctx, id); errors.Is(err, ErrNotFound) {
		if err := s.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: id, Title: "t"}); err != nil {
			t.Fatalf("InsertLedgerEntry: %v", err)
		}
	}
	if err := s.InsertEventTag(ctx, &event.EventTag{TagID: tagID, Identifier: id}); err != nil {
		t.Fatalf("InsertEventTag: %v", err)
	}
}
