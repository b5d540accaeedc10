package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/eventhub/internal/event"
)

type fakeOfficials struct {
	events []event.OfficialEvent
	err    error
	delay  time.Duration
}

func (f *fakeOfficials) ListEvents(ctx context.Context) ([]event.OfficialEvent, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.events, f.err
}

type fakeCommunities struct {
	events []event.CommunityEvent
	err    error
}

func (f *fakeCommunities) ListCommunityEvents(ctx context.Context) ([]event.CommunityEvent, error) {
	return f.events, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func official(id, title, desc, start string) event.OfficialEvent {
	return event.OfficialEvent{
		ID:          id,
		Title:       title,
		Description: desc,
		StartDate:   event.StringPtrIfNotEmpty(start),
		VenueName:   "Esplanade",
		SourceURL:   "https://x.example/" + id,
	}
}

func community(id int64, title string, start time.Time, tags ...string) event.CommunityEvent {
	c := event.CommunityEvent{
		ID:       id,
		UserID:   7,
		VenueID:  1,
		Title:    title,
		Start:    start,
		End:      start.Add(2 * time.Hour),
		Location: event.StringPtr("Block 5 void deck"),
		Venue:    &event.Venue{ID: 1, Name: "Community Hall"},
	}
	for i, name := range tags {
		c.Tags = append(c.Tags, event.Tag{ID: int64(i + 1), Name: name})
	}
	return c
}

const (
	oid1 = "64b7f0c2a1b2c3d4e5f60001"
	oid2 = "64b7f0c2a1b2c3d4e5f60002"
	oid3 = "64b7f0c2a1b2c3d4e5f60003"
)

func fixture() (*fakeOfficials, *fakeCommunities) {
	offs := &fakeOfficials{events: []event.OfficialEvent{
		official(oid1, "Jazz Night", "", "2025-03-01"),
		official(oid2, "Undated Gallery Walk", "An exhibition", ""),
		official(oid3, "Stand-up Showcase", "", "2025-01-15"),
	}}
	comms := &fakeCommunities{events: []event.CommunityEvent{
		community(42, "Pottery Class", time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), "Workshops", "Music"),
		community(43, "Board Games", time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)),
	}}
	return offs, comms
}

func identifiers(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Identifier.String())
	}
	return out
}

func TestList_MergesAndSorts(t *testing.T) {
	offs, comms := fixture()
	e := New(offs, comms, WithLogger(discardLogger()))

	res, err := e.List(context.Background(), Query{})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.OfficialCount)
	assert.Equal(t, 2, res.CommunityCount)
	assert.Empty(t, res.Unavailable)
	assert.Equal(t, []string{
		"official_" + oid3,
		"community_42",
		"official_" + oid1,
		"community_43",
		"official_" + oid2,
	}, identifiers(res.Events), "raw string order, missing start last")
}

func TestList_Categories(t *testing.T) {
	offs, comms := fixture()
	e := New(offs, comms, WithLogger(discardLogger()))

	res, err := e.List(context.Background(), Query{})
	require.NoError(t, err)

	byID := map[string]Event{}
	for _, ev := range res.Events {
		byID[ev.Identifier.String()] = ev
	}
	assert.Equal(t, event.CategoryMusic, byID["official_"+oid1].Category)
	assert.Equal(t, event.CategoryComedy, byID["official_"+oid3].Category)
	assert.Equal(t, event.CategoryWorkshops, byID["community_42"].Category, "first tag wins")
	assert.Equal(t, event.CategoryOther, byID["community_43"].Category)

	c := byID["community_42"]
	assert.Equal(t, "Community Hall", c.Venue)
	assert.Equal(t, "2025-02-01", c.Date)
	require.NotNil(t, c.CreatorID)
	assert.Equal(t, int64(7), *c.CreatorID)
	assert.Equal(t, "Community Event", c.OriginLabel)
	assert.Len(t, c.Tags, 2)
	assert.NotNil(t, byID["community_43"].Tags)
}

func TestList_Filters(t *testing.T) {
	offs, comms := fixture()
	e := New(offs, comms, WithLogger(discardLogger()))
	ctx := context.Background()

	res, err := e.List(ctx, Query{Category: event.CategoryMusic})
	require.NoError(t, err)
	assert.Equal(t, []string{"official_" + oid1}, identifiers(res.Events))

	res, err = e.List(ctx, Query{Source: event.OriginCommunity})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 0, res.OfficialCount)

	res, err = e.List(ctx, Query{Search: "VOID DECK"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total, "community location is searched")

	res, err = e.List(ctx, Query{Search: "esplanade"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.OfficialCount)
	assert.Equal(t, 0, res.CommunityCount)

	res, err = e.List(ctx, Query{Search: "nothing matches"})
	require.NoError(t, err)
	assert.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
}

func TestList_PartialStoreFailure(t *testing.T) {
	offs, _ := fixture()
	comms := &fakeCommunities{err: errors.New("dial tcp: connection refused")}
	e := New(offs, comms, WithLogger(discardLogger()))

	res, err := e.List(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 0, res.CommunityCount)
	assert.Equal(t, []string{StoreRelational}, res.Unavailable)
}

func TestList_StoreTimeout(t *testing.T) {
	offs, comms := fixture()
	offs.delay = time.Second
	e := New(offs, comms, WithLogger(discardLogger()), WithStoreTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := e.List(context.Background(), Query{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, res.OfficialCount)
	assert.Equal(t, 2, res.CommunityCount)
	assert.Equal(t, []string{StoreDocument}, res.Unavailable)
}

func TestList_Pagination(t *testing.T) {
	offs, comms := fixture()
	e := New(offs, comms, WithLogger(discardLogger()))
	ctx := context.Background()

	var all []string
	cursor := ""
	for {
		res, err := e.List(ctx, Query{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Total, "counts are taken before pagination")
		all = append(all, identifiers(res.Events)...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	full, err := e.List(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, identifiers(full.Events), all)
}

func TestList_InvalidQuery(t *testing.T) {
	offs, comms := fixture()
	e := New(offs, comms, WithLogger(discardLogger()))
	ctx := context.Background()

	for _, q := range []Query{
		{Source: "partner"},
		{Limit: -1},
		{Limit: MaxLimit + 1},
		{Cursor: "%%%"},
		{Cursor: "bm8tc2VwYXJhdG9y"},
	} {
		_, err := e.List(ctx, q)
		assert.ErrorIs(t, err, ErrInvalidQuery, "%+v", q)
	}
}

func TestSourceError(t *testing.T) {
	inner := errors.New("boom")
	err := error(&SourceError{Store: StoreDocument, Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "document")
}
