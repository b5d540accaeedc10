// Package features implements the relational features that reference events
// through the identity ledger: tags, reviews, bookmarks and registrations.
//
// Every create runs the same two steps: materialize the ledger row, then
// insert the dependent row. A failed insert may leave a ledger row behind;
// a dependent row is never written without one.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/store"
)

// Score bounds for reviews.
const (
	MinScore = 1
	MaxScore = 5
)

// Materializer ensures a ledger row exists for an identifier.
type Materializer interface {
	EnsureMaterialized(ctx context.Context, id event.Identifier) (event.LedgerEntry, error)
}

// Store is the relational persistence used by Service.
type Store interface {
	GetTag(ctx context.Context, id int64) (event.Tag, error)
	FindEventTag(ctx context.Context, tagID int64, id event.Identifier) (event.EventTag, error)
	InsertEventTag(ctx context.Context, et *event.EventTag) error
	DeleteEventTag(ctx context.Context, tagID int64, id event.Identifier) error
	ListEventTags(ctx context.Context, id event.Identifier) ([]event.Tag, error)

	FindReview(ctx context.Context, userID int64, id event.Identifier) (event.Review, error)
	InsertReview(ctx context.Context, rv *event.Review) error
	DeleteReview(ctx context.Context, reviewID, userID int64) error
	ListReviews(ctx context.Context, id event.Identifier) ([]event.Review, error)

	FindBookmark(ctx context.Context, userID int64, id event.Identifier) (event.Bookmark, error)
	InsertBookmark(ctx context.Context, b *event.Bookmark) error
	DeleteBookmark(ctx context.Context, userID int64, id event.Identifier) error
	ListBookmarks(ctx context.Context, userID int64) ([]store.SavedEvent, error)

	FindRegistration(ctx context.Context, userID int64, id event.Identifier) (event.Registration, error)
	InsertRegistration(ctx context.Context, r *event.Registration) error
	DeleteRegistration(ctx context.Context, userID int64, id event.Identifier) error
	ListRegistrations(ctx context.Context, userID int64) ([]event.Registration, error)
}

// Service implements the dependent feature operations.
type Service struct {
	bridge Materializer
	store  Store
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(bridge Materializer, st Store, opts ...Option) *Service {
	s := &Service{bridge: bridge, store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReviewInput is the payload of CreateReview.
type ReviewInput struct {
	Score int
	Title string
	Body  string
}

// ApplyTag applies tagID to the event. created is false when the tag was
// already applied, in which case the existing application is returned.
func (s *Service) ApplyTag(ctx context.Context, raw string, tagID int64) (event.EventTag, bool, error) {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return event.EventTag{}, false, err
	}
	if tagID <= 0 {
		return event.EventTag{}, false, fmt.Errorf("%w: tag_id is required", ErrInvalidInput)
	}
	if _, err := s.store.GetTag(ctx, tagID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return event.EventTag{}, false, fmt.Errorf("%w: unknown tag %d", ErrInvalidInput, tagID)
		}
		return event.EventTag{}, false, err
	}

	et := event.EventTag{TagID: tagID, Identifier: id}
	return create(ctx, s, id, "event_tag",
		func() (event.EventTag, error) { return s.store.FindEventTag(ctx, tagID, id) },
		func() error { return s.store.InsertEventTag(ctx, &et) },
		&et,
	)
}

// CreateReview records userID's review. One review per user per event;
// a repeat returns the existing review with created=false.
func (s *Service) CreateReview(ctx context.Context, userID int64, raw string, in ReviewInput) (event.Review, bool, error) {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return event.Review{}, false, err
	}
	if err := validateUser(userID); err != nil {
		return event.Review{}, false, err
	}
	if in.Score < MinScore || in.Score > MaxScore {
		return event.Review{}, false, fmt.Errorf("%w: score must be between %d and %d", ErrInvalidInput, MinScore, MaxScore)
	}
	if len([]rune(in.Title)) > 255 {
		return event.Review{}, false, fmt.Errorf("%w: title exceeds 255 characters", ErrInvalidInput)
	}

	rv := event.Review{
		UserID:     userID,
		Identifier: id,
		Score:      in.Score,
		Title:      strings.TrimSpace(in.Title),
		Body:       strings.TrimSpace(in.Body),
	}
	return create(ctx, s, id, "review",
		func() (event.Review, error) { return s.store.FindReview(ctx, userID, id) },
		func() error { return s.store.InsertReview(ctx, &rv) },
		&rv,
	)
}

// AddBookmark saves the event for userID.
func (s *Service) AddBookmark(ctx context.Context, userID int64, raw string) (event.Bookmark, bool, error) {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return event.Bookmark{}, false, err
	}
	if err := validateUser(userID); err != nil {
		return event.Bookmark{}, false, err
	}

	b := event.Bookmark{UserID: userID, Identifier: id}
	return create(ctx, s, id, "bookmark",
		func() (event.Bookmark, error) { return s.store.FindBookmark(ctx, userID, id) },
		func() error { return s.store.InsertBookmark(ctx, &b) },
		&b,
	)
}

// Register signs userID up for the event.
func (s *Service) Register(ctx context.Context, userID int64, raw string) (event.Registration, bool, error) {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return event.Registration{}, false, err
	}
	if err := validateUser(userID); err != nil {
		return event.Registration{}, false, err
	}

	r := event.Registration{UserID: userID, Identifier: id}
	return create(ctx, s, id, "registration",
		func() (event.Registration, error) { return s.store.FindRegistration(ctx, userID, id) },
		func() error { return s.store.InsertRegistration(ctx, &r) },
		&r,
	)
}

// create runs materialize, duplicate check and insert. A duplicate found
// either by the check or by the insert's unique constraint yields the
// existing row and created=false.
func create[T any](ctx context.Context, s *Service, id event.Identifier, kind string, find func() (T, error), insert func() error, value *T) (T, bool, error) {
	var zero T

	if _, err := s.bridge.EnsureMaterialized(ctx, id); err != nil {
		return zero, false, err
	}

	existing, err := find()
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return zero, false, err
	}

	if err := insert(); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			existing, ferr := find()
			if ferr != nil {
				return zero, false, ferr
			}
			return existing, false, nil
		}
		s.logger.Warn("dependent insert failed after materialization",
			"kind", kind, "identifier", id.String(), "error", err)
		return zero, false, err
	}
	return *value, true, nil
}

// RemoveTag removes a tag application.
func (s *Service) RemoveTag(ctx context.Context, raw string, tagID int64) error {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return err
	}
	return s.store.DeleteEventTag(ctx, tagID, id)
}

// DeleteReview deletes one of userID's reviews.
func (s *Service) DeleteReview(ctx context.Context, userID, reviewID int64) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	return s.store.DeleteReview(ctx, reviewID, userID)
}

// RemoveBookmark removes userID's bookmark.
func (s *Service) RemoveBookmark(ctx context.Context, userID int64, raw string) error {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return err
	}
	return s.store.DeleteBookmark(ctx, userID, id)
}

// Unregister removes userID's registration.
func (s *Service) Unregister(ctx context.Context, userID int64, raw string) error {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return err
	}
	return s.store.DeleteRegistration(ctx, userID, id)
}

// IsBookmarked reports whether userID saved the event.
func (s *Service) IsBookmarked(ctx context.Context, userID int64, raw string) (bool, error) {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return false, err
	}
	_, err = s.store.FindBookmark(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// EventTags lists the tags applied to the event.
func (s *Service) EventTags(ctx context.Context, raw string) ([]event.Tag, error) {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return nil, err
	}
	return s.store.ListEventTags(ctx, id)
}

// Reviews lists the reviews of the event.
func (s *Service) Reviews(ctx context.Context, raw string) ([]event.Review, error) {
	id, err := event.ParseIdentifier(raw)
	if err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, id)
}

// Bookmarks lists userID's saved events.
func (s *Service) Bookmarks(ctx context.Context, userID int64) ([]store.SavedEvent, error) {
	return s.store.ListBookmarks(ctx, userID)
}

// Registrations lists userID's registrations.
func (s *Service) Registrations(ctx context.Context, userID int64) ([]event.Registration, error) {
	return s.store.ListRegistrations(ctx, userID)
}

func validateUser(userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return nil
}
