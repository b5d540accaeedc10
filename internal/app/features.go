package app

import (
	"context"

	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/features"
	"github.com/graaaaa/eventhub/internal/store"
)

// FeaturesUsecase defines the operations on event dependents.
// features.Service implements it.
type FeaturesUsecase interface {
	ApplyTag(ctx context.Context, raw string, tagID int64) (event.EventTag, bool, error)
	RemoveTag(ctx context.Context, raw string, tagID int64) error
	EventTags(ctx context.Context, raw string) ([]event.Tag, error)

	CreateReview(ctx context.Context, userID int64, raw string, in features.ReviewInput) (event.Review, bool, error)
	DeleteReview(ctx context.Context, userID, reviewID int64) error
	Reviews(ctx context.Context, raw string) ([]event.Review, error)

	AddBookmark(ctx context.Context, userID int64, raw string) (event.Bookmark, bool, error)
	RemoveBookmark(ctx context.Context, userID int64, raw string) error
	IsBookmarked(ctx context.Context, userID int64, raw string) (bool, error)
	Bookmarks(ctx context.Context, userID int64) ([]store.SavedEvent, error)

	Register(ctx context.Context, userID int64, raw string) (event.Registration, bool, error)
	Unregister(ctx context.Context, userID int64, raw string) error
	Registrations(ctx context.Context, userID int64) ([]event.Registration, error)
}

var _ FeaturesUsecase = (*features.Service)(nil)
