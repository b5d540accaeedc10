package features

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/eventhub/internal/bridge"
	"github.com/graaaaa/eventhub/internal/docstore"
	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/store"
)

const objectID = "507f1f77bcf86cd799439011"

type fakeDocs struct {
	mu     sync.Mutex
	events map[string]event.OfficialEvent
}

func (f *fakeDocs) GetEvent(ctx context.Context, id string) (event.OfficialEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return event.OfficialEvent{}, docstore.ErrNotFound
	}
	return e, nil
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	docs := &fakeDocs{events: map[string]event.OfficialEvent{
		objectID: {ID: objectID, Title: "Jazz Night"},
	}}
	return NewService(bridge.New(docs, st), st), st
}

func TestCreateReview_OfficialThenDuplicate(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	raw := "official_" + objectID

	first, created, err := svc.CreateReview(ctx, 1, raw, ReviewInput{Score: 5, Title: "Great", Body: "Loved it"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	entry, err := st.GetLedgerEntry(ctx, event.OfficialIdentifier(objectID))
	require.NoError(t, err)
	assert.Equal(t, event.OriginOfficial, entry.Identifier.Origin)
	assert.Equal(t, "Jazz Night", entry.Title)

	second, created, err := svc.CreateReview(ctx, 1, raw, ReviewInput{Score: 1})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Score)

	reviews, err := svc.Reviews(ctx, raw)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}

func TestAddBookmark_MissingCommunityEvent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, created, err := svc.AddBookmark(ctx, 1, "community_42")
	require.Error(t, err)
	assert.False(t, created)
	assert.ErrorIs(t, err, bridge.ErrEventNotFound)

	var rerr *bridge.ResolutionError
	assert.True(t, errors.As(err, &rerr))

	counts, err := st.GetCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.LedgerEntries)
	assert.Zero(t, counts.Bookmarks)
}

func TestAddBookmark_Community(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	v := &event.Venue{Name: "Hall", Address: "1 Road"}
	require.NoError(t, st.CreateVenue(ctx, v))
	start := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)
	e := &event.CommunityEvent{UserID: 2, VenueID: v.ID, Title: "Open Mic", Start: start, End: start}
	require.NoError(t, st.CreateCommunityEvent(ctx, e))
	raw := e.Identifier().String()

	b, created, err := svc.AddBookmark(ctx, 1, raw)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, e.Identifier(), b.Identifier)

	ok, err := svc.IsBookmarked(ctx, 1, raw)
	require.NoError(t, err)
	assert.True(t, ok)

	saved, err := svc.Bookmarks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Open Mic", saved[0].Title)

	require.NoError(t, svc.RemoveBookmark(ctx, 1, raw))
	ok, err = svc.IsBookmarked(ctx, 1, raw)
	require.NoError(t, err)
	assert.False(t, ok)

	// The ledger row outlives its dependents.
	_, err = st.GetLedgerEntry(ctx, e.Identifier())
	assert.NoError(t, err)
}

func TestApplyTag(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	raw := "official_" + objectID

	tag, _, err := st.EnsureTag(ctx, "Music")
	require.NoError(t, err)

	et, created, err := svc.ApplyTag(ctx, raw, tag.ID)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.ApplyTag(ctx, raw, tag.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, et.ID, again.ID)

	tags, err := svc.EventTags(ctx, raw)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Music", tags[0].Name)

	_, _, err = svc.ApplyTag(ctx, raw, 9999)
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.RemoveTag(ctx, raw, tag.ID))
	assert.ErrorIs(t, svc.RemoveTag(ctx, raw, tag.ID), store.ErrNotFound)
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	raw := "official_" + objectID

	_, created, err := svc.Register(ctx, 3, raw)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = svc.Register(ctx, 3, raw)
	require.NoError(t, err)
	assert.False(t, created)

	regs, err := svc.Registrations(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, regs, 1)

	require.NoError(t, svc.Unregister(ctx, 3, raw))
}

func TestValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	raw := "official_" + objectID

	_, _, err := svc.CreateReview(ctx, 1, raw, ReviewInput{Score: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = svc.CreateReview(ctx, 1, raw, ReviewInput{Score: 6})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = svc.CreateReview(ctx, 0, raw, ReviewInput{Score: 3})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = svc.AddBookmark(ctx, 1, "official:"+objectID)
	assert.ErrorIs(t, err, event.ErrInvalidIdentifier)
	_, _, err = svc.ApplyTag(ctx, raw, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Rejected submissions never materialize a ledger row.
	counts, err := st.GetCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.LedgerEntries)
}

func TestDeleteReview_Owner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rv, _, err := svc.CreateReview(ctx, 1, "official_"+objectID, ReviewInput{Score: 4})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteReview(ctx, 2, rv.ID), store.ErrNotOwner)
	assert.NoError(t, svc.DeleteReview(ctx, 1, rv.ID))
}

func TestConcurrentBookmarks_OneLedgerRow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	raw := "official_" + objectID

	const n = 8
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, created, err := svc.AddBookmark(ctx, user, raw)
			assert.NoError(t, err)
			assert.True(t, created)
		}(int64(i))
	}
	wg.Wait()

	counts, err := st.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.LedgerEntries)
	assert.Equal(t, int64(n), counts.Bookmarks)
}
