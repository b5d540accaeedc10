package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/graaaaa/eventhub/internal/event"
)

const testObjectID = "507f1f77bcf86cd799439011"

func TestLedger_InsertAndGet(t *testing.T) {
	fixed := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	store, err := Open(t.TempDir()+"/ledger.sqlite", WithNow(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	id := event.OfficialIdentifier(testObjectID)

	if _, err := store.GetLedgerEntry(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entry := &event.LedgerEntry{Identifier: id, Title: "Jazz Night"}
	if err := store.InsertLedgerEntry(ctx, entry); err != nil {
		t.Fatalf("InsertLedgerEntry: %v", err)
	}

	got, err := store.GetLedgerEntry(ctx, id)
	if err != nil {
		t.Fatalf("GetLedgerEntry: %v", err)
	}
	if got.Title != "Jazz Night" || got.Identifier != id {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, fixed)
	}

	var source, original string
	if err := store.db.QueryRow(
		`SELECT source, original_id FROM event_cache WHERE event_identifier = ?`, id.String(),
	).Scan(&source, &original); err != nil {
		t.Fatalf("query: %v", err)
	}
	if source != "official" || original != testObjectID {
		t.Errorf("source=%q original_id=%q", source, original)
	}
}

func TestLedger_DuplicateInsert(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	id := event.CommunityIdentifier(42)
	if err := store.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: id, Title: "a"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: id, Title: "b"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := store.GetLedgerEntry(ctx, id)
	if err != nil {
		t.Fatalf("GetLedgerEntry: %v", err)
	}
	if got.Title != "a" {
		t.Errorf("title = %q, the first writer should win", got.Title)
	}
}

func TestLedger_RejectsInvalidIdentifier(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	err := store.InsertLedgerEntry(context.Background(), &event.LedgerEntry{
		Identifier: event.Identifier{Origin: event.OriginCommunity, NativeID: "abc"},
	})
	if !errors.Is(err, event.ErrInvalidIdentifier) {
		t.Errorf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestRefreshLedgerTitle(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	id := event.OfficialIdentifier(testObjectID)

	updated, err := store.RefreshLedgerTitle(ctx, id, "New")
	if err != nil || updated {
		t.Fatalf("refresh without row: updated=%v err=%v", updated, err)
	}

	if err := store.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: id, Title: "Old"}); err != nil {
		t.Fatalf("InsertLedgerEntry: %v", err)
	}
	updated, err = store.RefreshLedgerTitle(ctx, id, "New")
	if err != nil || !updated {
		t.Fatalf("refresh: updated=%v err=%v", updated, err)
	}
	updated, err = store.RefreshLedgerTitle(ctx, id, "New")
	if err != nil || updated {
		t.Fatalf("refresh same title: updated=%v err=%v", updated, err)
	}
}

func TestDependents_RequireLedgerRow(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	id := event.OfficialIdentifier(testObjectID)

	err := store.InsertBookmark(ctx, &event.Bookmark{UserID: 1, Identifier: id})
	if !errors.Is(err, ErrMissingReference) {
		t.Errorf("bookmark: expected ErrMissingReference, got %v", err)
	}
	err = store.InsertReview(ctx, &event.Review{UserID: 1, Identifier: id, Score: 5})
	if !errors.Is(err, ErrMissingReference) {
		t.Errorf("review: expected ErrMissingReference, got %v", err)
	}
}

func TestDependents_UniquePerUser(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	id := event.OfficialIdentifier(testObjectID)
	if err := store.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: id, Title: "Jazz Night"}); err != nil {
		t.Fatalf("InsertLedgerEntry: %v", err)
	}

	rv := &event.Review{UserID: 1, Identifier: id, Score: 4, Title: "Good", Body: "Nice"}
	if err := store.InsertReview(ctx, rv); err != nil {
		t.Fatalf("InsertReview: %v", err)
	}
	if err := store.InsertReview(ctx, &event.Review{UserID: 1, Identifier: id, Score: 1}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second review: expected ErrDuplicate, got %v", err)
	}
	if err := store.InsertReview(ctx, &event.Review{UserID: 2, Identifier: id, Score: 2}); err != nil {
		t.Errorf("other user's review: %v", err)
	}

	found, err := store.FindReview(ctx, 1, id)
	if err != nil {
		t.Fatalf("FindReview: %v", err)
	}
	if found.ID != rv.ID || found.Score != 4 {
		t.Errorf("found %+v", found)
	}

	reviews, err := store.ListReviews(ctx, id)
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Errorf("got %d reviews, want 2", len(reviews))
	}

	if err := store.DeleteReview(ctx, rv.ID, 2); !errors.Is(err, ErrNotOwner) {
		t.Errorf("delete by other user: expected ErrNotOwner, got %v", err)
	}
	if err := store.DeleteReview(ctx, rv.ID, 1); err != nil {
		t.Errorf("DeleteReview: %v", err)
	}

	b := &event.Bookmark{UserID: 1, Identifier: id}
	if err := store.InsertBookmark(ctx, b); err != nil {
		t.Fatalf("InsertBookmark: %v", err)
	}
	if err := store.InsertBookmark(ctx, &event.Bookmark{UserID: 1, Identifier: id}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second bookmark: expected ErrDuplicate, got %v", err)
	}
	saved, err := store.ListBookmarks(ctx, 1)
	if err != nil {
		t.Fatalf("ListBookmarks: %v", err)
	}
	if len(saved) != 1 || saved[0].Title != "Jazz Night" || saved[0].Identifier != id {
		t.Errorf("saved = %+v", saved)
	}
	if err := store.DeleteBookmark(ctx, 1, id); err != nil {
		t.Errorf("DeleteBookmark: %v", err)
	}
	if err := store.DeleteBookmark(ctx, 1, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}

	r := &event.Registration{UserID: 3, Identifier: id}
	if err := store.InsertRegistration(ctx, r); err != nil {
		t.Fatalf("InsertRegistration: %v", err)
	}
	if err := store.InsertRegistration(ctx, &event.Registration{UserID: 3, Identifier: id}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second registration: expected ErrDuplicate, got %v", err)
	}
	regs, err := store.ListRegistrations(ctx, 3)
	if err != nil || len(regs) != 1 {
		t.Errorf("ListRegistrations = %v, %v", regs, err)
	}

	// Deleting dependents never removes the ledger row.
	if _, err := store.GetLedgerEntry(ctx, id); err != nil {
		t.Errorf("ledger row removed: %v", err)
	}
}

func TestEventTag_UniquePerTag(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	id := event.CommunityIdentifier(5)
	tag, _, err := store.EnsureTag(ctx, "Music")
	if err != nil {
		t.Fatalf("EnsureTag: %v", err)
	}
	applyTag(t, store, tag.ID, id)

	err = store.InsertEventTag(ctx, &event.EventTag{TagID: tag.ID, Identifier: id})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	err = store.InsertEventTag(ctx, &event.EventTag{TagID: 9999, Identifier: id})
	if !errors.Is(err, ErrMissingReference) {
		t.Errorf("unknown tag: expected ErrMissingReference, got %v", err)
	}

	if _, err := store.FindEventTag(ctx, tag.ID, id); err != nil {
		t.Errorf("FindEventTag: %v", err)
	}
	tags, err := store.ListEventTags(ctx, id)
	if err != nil || len(tags) != 1 {
		t.Errorf("ListEventTags = %v, %v", tags, err)
	}
	if err := store.DeleteEventTag(ctx, tag.ID, id); err != nil {
		t.Errorf("DeleteEventTag: %v", err)
	}
}

func TestPruneLedger(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx := context.Background()
	kept := event.OfficialIdentifier(testObjectID)
	orphan := event.CommunityIdentifier(99)

	for _, id := range []event.Identifier{kept, orphan} {
		if err := store.InsertLedgerEntry(ctx, &event.LedgerEntry{Identifier: id, Title: "x"}); err != nil {
			t.Fatalf("InsertLedgerEntry: %v", err)
		}
	}
	if err := store.InsertBookmark(ctx, &event.Bookmark{UserID: 1, Identifier: kept}); err != nil {
		t.Fatalf("InsertBookmark: %v", err)
	}

	n, err := store.PruneLedger(ctx)
	if err != nil {
		t.Fatalf("PruneLedger: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
	if _, err := store.GetLedgerEntry(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("orphan should be pruned, got %v", err)
	}
	if _, err := store.GetLedgerEntry(ctx, kept); err != nil {
		t.Errorf("referenced row should remain: %v", err)
	}

	entries, err := store.ListLedgerEntries(ctx)
	if err != nil || len(entries) != 1 {
		t.Errorf("ListLedgerEntries = %v, %v", entries, err)
	}
}
