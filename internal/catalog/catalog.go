// Package catalog merges official and community events into one listing.
//
// Both stores are read concurrently under their own timeout. A store that
// fails contributes nothing: the failure is logged, counted and reported in
// Result.Unavailable, and the other store's events are still returned.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/metrics"
)

const (
	// MissingStartKey sorts events without a start date after every real date.
	MissingStartKey = "9999-99-99"

	// MaxLimit caps Query.Limit.
	MaxLimit = 500

	// DefaultStoreTimeout bounds each store read.
	DefaultStoreTimeout = 5 * time.Second
)

// Officials lists document-store events.
type Officials interface {
	ListEvents(ctx context.Context) ([]event.OfficialEvent, error)
}

// Communities lists relational-store events with venue and tags loaded.
type Communities interface {
	ListCommunityEvents(ctx context.Context) ([]event.CommunityEvent, error)
}

// Query selects events. Zero fields do not filter.
type Query struct {
	Category string
	Search   string
	Source   event.Origin
	Limit    int // 0 returns every match
	Cursor   string
}

// Event is the common shape of an official or community event.
type Event struct {
	Identifier  event.Identifier `json:"identifier"`
	Origin      event.Origin     `json:"origin"`
	OriginLabel string           `json:"origin_label"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Date        string           `json:"date"`
	EndDate     string           `json:"end_date,omitempty"`
	Venue       string           `json:"venue"`
	Location    string           `json:"location,omitempty"`
	ImageURL    *string          `json:"image_url"`
	Category    string           `json:"category"`

	// Official only.
	RegistrationLink *string `json:"registration_link,omitempty"`
	SourceURL        string  `json:"source,omitempty"`

	// Community only.
	Tags      []event.Tag `json:"tags,omitempty"`
	CreatorID *int64      `json:"creator_id,omitempty"`

	sortKey string
}

// Result is one page of the merged listing. Counts cover every match,
// before pagination.
type Result struct {
	Total          int      `json:"total"`
	OfficialCount  int      `json:"official_count"`
	CommunityCount int      `json:"community_count"`
	Events         []Event  `json:"events"`
	NextCursor     string   `json:"next_cursor,omitempty"`
	Unavailable    []string `json:"unavailable,omitempty"`
}

// Engine answers unified listings.
type Engine struct {
	officials    Officials
	communities  Communities
	logger       *slog.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStoreTimeout bounds each store read.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// New creates an Engine.
func New(officials Officials, communities Communities, opts ...Option) *Engine {
	e := &Engine{
		officials:    officials,
		communities:  communities,
		logger:       slog.Default(),
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// List returns the merged, filtered and sorted events for q. Store failures
// never fail the call; only a malformed query does.
func (e *Engine) List(ctx context.Context, q Query) (Result, error) {
	if err := q.validate(); err != nil {
		return Result{}, err
	}

	var (
		cursorKey string
		cursorID  event.Identifier
		err       error
	)
	if q.Cursor != "" {
		cursorKey, cursorID, err = decodeCursor(q.Cursor)
		if err != nil {
			return Result{}, err
		}
	}

	official, community, unavailable := e.fetch(ctx, q.Source)

	events := make([]Event, 0, len(official)+len(community))
	events = append(events, official...)
	events = append(events, community...)

	search := event.Fold(strings.TrimSpace(q.Search))
	res := Result{Events: []Event{}, Unavailable: unavailable}
	matched := events[:0]
	for _, ev := range events {
		if !ev.matches(q.Category, search) {
			continue
		}
		matched = append(matched, ev)
		if ev.Origin == event.OriginOfficial {
			res.OfficialCount++
		} else {
			res.CommunityCount++
		}
	}
	res.Total = len(matched)

	slices.SortFunc(matched, compareEvents)

	start := 0
	if q.Cursor != "" {
		start, _ = slices.BinarySearchFunc(matched, cursorKey, func(ev Event, key string) int {
			if c := cmp.Compare(ev.sortKey, key); c != 0 {
				return c
			}
			if ev.Identifier.String() <= cursorID.String() {
				return -1
			}
			return 1
		})
	}

	page := matched[start:]
	if q.Limit > 0 && len(page) > q.Limit {
		page = page[:q.Limit]
		res.NextCursor = encodeCursor(page[len(page)-1])
	}
	res.Events = append(res.Events, page...)
	return res, nil
}

func (q Query) validate() error {
	if q.Source != "" && !q.Source.Valid() {
		return fmt.Errorf("%w: source %q", ErrInvalidQuery, q.Source)
	}
	if q.Limit < 0 || q.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidQuery, MaxLimit)
	}
	return nil
}

// fetch reads both stores concurrently, skipping a store q.Source excludes.
func (e *Engine) fetch(ctx context.Context, source event.Origin) (official, community []Event, unavailable []string) {
	var (
		wg      sync.WaitGroup
		offErr  error
		commErr error
	)

	if source == "" || source == event.OriginOfficial {
		wg.Add(1)
		go func() {
			defer wg.Done()
			official, offErr = e.fetchOfficial(ctx)
		}()
	}
	if source == "" || source == event.OriginCommunity {
		wg.Add(1)
		go func() {
			defer wg.Done()
			community, commErr = e.fetchCommunity(ctx)
		}()
	}
	wg.Wait()

	for _, err := range []error{offErr, commErr} {
		if err == nil {
			continue
		}
		se := err.(*SourceError)
		e.logger.Warn("store unavailable for listing", "store", se.Store, "error", se.Err)
		e.metrics.StoreFailure(se.Store, "list")
		unavailable = append(unavailable, se.Store)
	}
	return official, community, unavailable
}

func (e *Engine) fetchOfficial(ctx context.Context) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	docs, err := e.officials.ListEvents(ctx)
	if err != nil {
		return nil, &SourceError{Store: StoreDocument, Err: err}
	}
	out := make([]Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, FromOfficial(d))
	}
	return out, nil
}

func (e *Engine) fetchCommunity(ctx context.Context) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	rows, err := e.communities.ListCommunityEvents(ctx)
	if err != nil {
		return nil, &SourceError{Store: StoreRelational, Err: err}
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromCommunity(r))
	}
	return out, nil
}

// FromOfficial maps a document-store event. Its category is derived from
// keywords in the title and description.
func FromOfficial(d event.OfficialEvent) Event {
	start := event.Deref(d.StartDate)
	key := start
	if key == "" {
		key = MissingStartKey
	}
	return Event{
		Identifier:       d.Identifier(),
		Origin:           event.OriginOfficial,
		OriginLabel:      event.OriginOfficial.Label(),
		Title:            d.Title,
		Description:      d.Description,
		Date:             start,
		EndDate:          event.Deref(d.EndDate),
		Venue:            d.VenueName,
		Location:         d.Address,
		ImageURL:         d.ImageURL,
		Category:         event.Categorize(d.Title, d.Description),
		RegistrationLink: d.RegistrationLink,
		SourceURL:        d.SourceURL,
		sortKey:          key,
	}
}

// communityKeyLayout renders community start times for sorting next to
// official ISO dates.
const communityKeyLayout = "2006-01-02T15:04:05"

// FromCommunity maps a relational event. Its category comes from the first
// applied tag.
func FromCommunity(c event.CommunityEvent) Event {
	ev := Event{
		Identifier:  c.Identifier(),
		Origin:      event.OriginCommunity,
		OriginLabel: event.OriginCommunity.Label(),
		Title:       c.Title,
		Description: c.Description,
		Location:    event.Deref(c.Location),
		ImageURL:    c.ImageURL,
		Category:    event.CategoryOther,
		Tags:        c.Tags,
		CreatorID:   &c.UserID,
		sortKey:     MissingStartKey,
	}
	if ev.Tags == nil {
		ev.Tags = []event.Tag{}
	}
	if len(c.Tags) > 0 {
		ev.Category = event.CategoryForTag(c.Tags[0].Name)
	}
	if c.Venue != nil {
		ev.Venue = c.Venue.Name
	}
	if !c.Start.IsZero() {
		ev.Date = c.Start.Format(time.DateOnly)
		ev.sortKey = c.Start.UTC().Format(communityKeyLayout)
	}
	if !c.End.IsZero() {
		ev.EndDate = c.End.Format(time.DateOnly)
	}
	return ev
}

func (ev Event) matches(category, foldedSearch string) bool {
	if category != "" && ev.Category != category {
		return false
	}
	if foldedSearch == "" {
		return true
	}
	fields := []string{ev.Title, ev.Description, ev.Venue}
	if ev.Origin == event.OriginCommunity {
		fields = append(fields, ev.Location)
	}
	for _, f := range fields {
		if strings.Contains(event.Fold(f), foldedSearch) {
			return true
		}
	}
	return false
}

// compareEvents orders by raw start key, then identifier string.
func compareEvents(a, b Event) int {
	if c := strings.Compare(a.sortKey, b.sortKey); c != 0 {
		return c
	}
	return strings.Compare(a.Identifier.String(), b.Identifier.String())
}
