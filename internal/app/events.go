package app

import (
	"context"

	"github.com/graaaaa/eventhub/internal/catalog"
	"github.com/graaaaa/eventhub/internal/event"
)

// EventsUsecase defines the event listing use cases.
type EventsUsecase interface {
	// List returns the unified listing of official and community events.
	List(ctx context.Context, q catalog.Query) (catalog.Result, error)

	// ListOfficial returns the raw document-store events.
	ListOfficial(ctx context.Context) ([]event.OfficialEvent, error)
}

// Lister answers unified queries.
type Lister interface {
	List(ctx context.Context, q catalog.Query) (catalog.Result, error)
}

// EventsService implements EventsUsecase.
type EventsService struct {
	Catalog   Lister
	Documents catalog.Officials
}

// List queries the unified catalog.
func (s *EventsService) List(ctx context.Context, q catalog.Query) (catalog.Result, error) {
	return s.Catalog.List(ctx, q)
}

// ListOfficial lists every document-store event.
func (s *EventsService) ListOfficial(ctx context.Context) ([]event.OfficialEvent, error) {
	return s.Documents.ListEvents(ctx)
}
