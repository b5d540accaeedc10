// Package bridge materializes identity ledger rows for events of either store.
//
// A ledger row is created the first time a relational feature references an
// identifier. Concurrent first references are resolved by the ledger's primary
// key: the losing insert re-reads the winner's row.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/metrics"
	"github.com/graaaaa/eventhub/internal/store"
)

// PlaceholderTitle is cached for official events whose title could not be read.
const PlaceholderTitle = "Saved Event"

// MaxTitleLength is the longest cached title, in characters.
const MaxTitleLength = 255

// DefaultStoreTimeout bounds each store call.
const DefaultStoreTimeout = 5 * time.Second

// Materialization outcomes reported to metrics.
const (
	outcomeExisting = "existing"
	outcomeCreated  = "created"
	outcomeRace     = "race"
	outcomeFailed   = "failed"
)

// Documents looks up official events.
type Documents interface {
	GetEvent(ctx context.Context, id string) (event.OfficialEvent, error)
}

// Ledger is the relational side the bridge reads and writes.
type Ledger interface {
	GetLedgerEntry(ctx context.Context, id event.Identifier) (event.LedgerEntry, error)
	InsertLedgerEntry(ctx context.Context, entry *event.LedgerEntry) error
	GetCommunityEvent(ctx context.Context, id int64) (event.CommunityEvent, error)
}

// Bridge materializes ledger rows.
type Bridge struct {
	docs         Documents
	ledger       Ledger
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStoreTimeout sets the per-call store timeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.storeTimeout = d
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// New creates a Bridge.
func New(docs Documents, ledger Ledger, opts ...Option) *Bridge {
	b := &Bridge{
		docs:         docs,
		ledger:       ledger,
		storeTimeout: DefaultStoreTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EnsureMaterialized returns the ledger row for id, creating it if absent.
//
// Official identifiers always materialize: a failed or empty title lookup
// caches PlaceholderTitle. Community identifiers must name an existing event;
// otherwise a *ResolutionError wrapping ErrEventNotFound is returned and no
// row is written.
func (b *Bridge) EnsureMaterialized(ctx context.Context, id event.Identifier) (event.LedgerEntry, error) {
	if err := id.Validate(); err != nil {
		return event.LedgerEntry{}, err
	}
	origin := string(id.Origin)

	entry, err := b.read(ctx, id)
	if err == nil {
		b.metrics.Materialization(origin, outcomeExisting)
		return entry, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		b.metrics.Materialization(origin, outcomeFailed)
		return event.LedgerEntry{}, &ResolutionError{Identifier: id, Store: StoreRelational, Err: err}
	}

	title, err := b.resolveTitle(ctx, id)
	if err != nil {
		b.metrics.Materialization(origin, outcomeFailed)
		return event.LedgerEntry{}, err
	}

	entry = event.LedgerEntry{Identifier: id, Title: truncateTitle(title)}
	err = b.insert(ctx, &entry)
	switch {
	case err == nil:
		b.metrics.Materialization(origin, outcomeCreated)
		b.logger.Debug("materialized ledger entry", "identifier", id.String(), "title", entry.Title)
		return entry, nil
	case errors.Is(err, store.ErrDuplicate):
		// Another writer won; its row is authoritative.
		b.metrics.Materialization(origin, outcomeRace)
		winner, rerr := b.read(ctx, id)
		if rerr != nil {
			return event.LedgerEntry{}, &ResolutionError{Identifier: id, Store: StoreRelational, Err: rerr}
		}
		return winner, nil
	default:
		b.metrics.Materialization(origin, outcomeFailed)
		return event.LedgerEntry{}, &ResolutionError{Identifier: id, Store: StoreRelational, Err: err}
	}
}

func (b *Bridge) resolveTitle(ctx context.Context, id event.Identifier) (string, error) {
	switch id.Origin {
	case event.OriginOfficial:
		ctx, cancel := context.WithTimeout(ctx, b.storeTimeout)
		defer cancel()
		e, err := b.docs.GetEvent(ctx, id.NativeID)
		if err != nil {
			b.metrics.StoreFailure(StoreDocument, "get")
			b.logger.Warn("official title lookup failed; using placeholder",
				"identifier", id.String(), "error", err)
			return PlaceholderTitle, nil
		}
		if e.Title == "" {
			return PlaceholderTitle, nil
		}
		return e.Title, nil

	case event.OriginCommunity:
		n, err := id.CommunityID()
		if err != nil {
			return "", err
		}
		ctx, cancel := context.WithTimeout(ctx, b.storeTimeout)
		defer cancel()
		e, err := b.ledger.GetCommunityEvent(ctx, n)
		if errors.Is(err, store.ErrNotFound) {
			return "", &ResolutionError{Identifier: id, Store: StoreRelational, Err: ErrEventNotFound}
		}
		if err != nil {
			b.metrics.StoreFailure(StoreRelational, "get")
			return "", &ResolutionError{Identifier: id, Store: StoreRelational, Err: err}
		}
		return e.Title, nil
	}
	return "", fmt.Errorf("%w: unknown origin %q", event.ErrInvalidIdentifier, id.Origin)
}

func (b *Bridge) read(ctx context.Context, id event.Identifier) (event.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, b.storeTimeout)
	defer cancel()
	return b.ledger.GetLedgerEntry(ctx, id)
}

func (b *Bridge) insert(ctx context.Context, entry *event.LedgerEntry) error {
	ctx, cancel := context.WithTimeout(ctx, b.storeTimeout)
	defer cancel()
	return b.ledger.InsertLedgerEntry(ctx, entry)
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}
	r := []rune(s)
	return string(r[:MaxTitleLength])
}
