// Package docstore defines the document store holding official events and statistics.
//
// Two implementations exist: sqlitedoc keeps JSON documents in an embedded
// SQLite file, mongodoc talks to MongoDB. Both key events by source URL and
// statistics by year, and both mint MongoDB-style object ids.
package docstore

import (
	"context"
	"errors"

	"github.com/graaaaa/eventhub/internal/event"
)

// Collection names.
const (
	CollectionEvents     = "events"
	CollectionStatistics = "statistics"
)

// DefaultDatabase is the database name used when none is configured.
const DefaultDatabase = "event_calendar"

// Sentinel errors for document stores.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidID is returned when an id is not a valid object id.
	ErrInvalidID = errors.New("invalid document id")

	// ErrMissingKey is returned when an upsert lacks its natural key.
	ErrMissingKey = errors.New("missing natural key")
)

// UpsertResult reports what an upsert did.
// At most one of Inserted and Modified is true; neither means the stored
// document already matched.
type UpsertResult struct {
	ID       string
	Inserted bool
	Modified bool
}

// Store is the document store contract.
type Store interface {
	// UpsertEvent replaces the event stored under e.SourceURL, creating it if absent.
	UpsertEvent(ctx context.Context, e event.OfficialEvent) (UpsertResult, error)

	// GetEvent returns the event with the given object id.
	GetEvent(ctx context.Context, id string) (event.OfficialEvent, error)

	// ListEvents returns every stored event.
	ListEvents(ctx context.Context) ([]event.OfficialEvent, error)

	// UpsertStatistics replaces the statistics document of s.Year.
	UpsertStatistics(ctx context.Context, s event.Statistics) (UpsertResult, error)

	// SummarizeStatistics returns per-year totals ordered by year.
	SummarizeStatistics(ctx context.Context) ([]event.YearSummary, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
