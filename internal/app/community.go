package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/store"
)

// MaxTagName is the longest accepted tag name in characters.
const MaxTagName = 50

// CommunityUsecase defines community event, venue and tag management.
type CommunityUsecase interface {
	Create(ctx context.Context, e *event.CommunityEvent) error
	Update(ctx context.Context, e *event.CommunityEvent) error
	Delete(ctx context.Context, id, userID int64) error
	Get(ctx context.Context, id int64) (event.CommunityEvent, error)
	Query(ctx context.Context, f store.CommunityFilter) (store.CommunityPage, error)

	CreateVenue(ctx context.Context, v *event.Venue) error
	ListVenues(ctx context.Context) ([]event.Venue, error)

	CreateTag(ctx context.Context, name string) (event.Tag, bool, error)
	ListTags(ctx context.Context) ([]event.Tag, error)
}

// CommunityStore defines store operations needed by CommunityService.
type CommunityStore interface {
	CreateCommunityEvent(ctx context.Context, e *event.CommunityEvent) error
	UpdateCommunityEvent(ctx context.Context, e *event.CommunityEvent) error
	DeleteCommunityEvent(ctx context.Context, id, userID int64) error
	GetCommunityEvent(ctx context.Context, id int64) (event.CommunityEvent, error)
	QueryCommunityEvents(ctx context.Context, f store.CommunityFilter) (store.CommunityPage, error)
	RefreshLedgerTitle(ctx context.Context, id event.Identifier, title string) (bool, error)

	CreateVenue(ctx context.Context, v *event.Venue) error
	ListVenues(ctx context.Context) ([]event.Venue, error)

	EnsureTag(ctx context.Context, name string) (event.Tag, bool, error)
	ListTags(ctx context.Context) ([]event.Tag, error)
}

// CommunityService implements CommunityUsecase.
type CommunityService struct {
	Store  CommunityStore
	Logger *slog.Logger
}

func (s *CommunityService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Create stores a new community event and returns it with venue and tags loaded.
func (s *CommunityService) Create(ctx context.Context, e *event.CommunityEvent) error {
	trimEvent(e)
	if err := s.Store.CreateCommunityEvent(ctx, e); err != nil {
		return err
	}
	return s.reload(ctx, e)
}

// Update replaces an event owned by e.UserID. A cached ledger title for the
// event follows the new title.
func (s *CommunityService) Update(ctx context.Context, e *event.CommunityEvent) error {
	trimEvent(e)
	if err := s.Store.UpdateCommunityEvent(ctx, e); err != nil {
		return err
	}
	if _, err := s.Store.RefreshLedgerTitle(ctx, e.Identifier(), e.Title); err != nil {
		s.logger().Warn("ledger title refresh failed", "identifier", e.Identifier().String(), "error", err)
	}
	return s.reload(ctx, e)
}

func (s *CommunityService) reload(ctx context.Context, e *event.CommunityEvent) error {
	got, err := s.Store.GetCommunityEvent(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("reload event: %w", err)
	}
	*e = got
	return nil
}

// Delete removes an event owned by userID.
func (s *CommunityService) Delete(ctx context.Context, id, userID int64) error {
	return s.Store.DeleteCommunityEvent(ctx, id, userID)
}

// Get returns one event.
func (s *CommunityService) Get(ctx context.Context, id int64) (event.CommunityEvent, error) {
	return s.Store.GetCommunityEvent(ctx, id)
}

// Query pages through events.
func (s *CommunityService) Query(ctx context.Context, f store.CommunityFilter) (store.CommunityPage, error) {
	return s.Store.QueryCommunityEvents(ctx, f)
}

// CreateVenue registers a venue.
func (s *CommunityService) CreateVenue(ctx context.Context, v *event.Venue) error {
	v.Name = strings.TrimSpace(v.Name)
	v.Address = strings.TrimSpace(v.Address)
	return s.Store.CreateVenue(ctx, v)
}

// ListVenues lists venues.
func (s *CommunityService) ListVenues(ctx context.Context) ([]event.Venue, error) {
	return s.Store.ListVenues(ctx)
}

// CreateTag adds name to the vocabulary. created is false if it existed.
func (s *CommunityService) CreateTag(ctx context.Context, name string) (event.Tag, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return event.Tag{}, false, fmt.Errorf("%w: tag_name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxTagName {
		return event.Tag{}, false, fmt.Errorf("%w: tag_name exceeds %d characters", ErrInvalidInput, MaxTagName)
	}
	return s.Store.EnsureTag(ctx, name)
}

// ListTags lists the vocabulary.
func (s *CommunityService) ListTags(ctx context.Context) ([]event.Tag, error) {
	return s.Store.ListTags(ctx)
}

func trimEvent(e *event.CommunityEvent) {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
}
