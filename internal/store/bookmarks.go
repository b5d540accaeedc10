package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graaaaa/eventhub/internal/event"
)

// FindBookmark returns userID's bookmark of id.
func (s *Store) FindBookmark(ctx context.Context, userID int64, id event.Identifier) (event.Bookmark, error) {
	b := event.Bookmark{UserID: userID, Identifier: id}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM bookmark WHERE user_id = ? AND event_identifier = ?`,
		userID, id.String(),
	).Scan(&b.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Bookmark{}, fmt.Errorf("bookmark %d/%s: %w", userID, id, ErrNotFound)
	}
	if err != nil {
		return event.Bookmark{}, fmt.Errorf("get bookmark: %w", err)
	}
	if err := scanTime("created_at", createdAt, &b.CreatedAt); err != nil {
		return event.Bookmark{}, err
	}
	return b, nil
}

// InsertBookmark inserts a bookmark and sets ID and CreatedAt.
func (s *Store) InsertBookmark(ctx context.Context, b *event.Bookmark) error {
	b.CreatedAt = s.now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmark (user_id, event_identifier, created_at) VALUES (?, ?, ?)`,
		b.UserID, b.Identifier.String(), b.CreatedAt.Format(TimeFormat),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("bookmark %d/%s: %w", b.UserID, b.Identifier, ErrDuplicate)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("bookmark %s: %w", b.Identifier, ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// DeleteBookmark removes userID's bookmark of id.
func (s *Store) DeleteBookmark(ctx context.Context, userID int64, id event.Identifier) error {
	return s.deleteOne(ctx, "bookmark",
		`DELETE FROM bookmark WHERE user_id = ? AND event_identifier = ?`,
		userID, id.String(),
	)
}

// SavedEvent is a bookmark joined with the ledger's cached title.
type SavedEvent struct {
	event.Bookmark
	Title string `json:"title"`
}

// ListBookmarks returns userID's bookmarks, newest first, with cached titles.
func (s *Store) ListBookmarks(ctx context.Context, userID int64) ([]SavedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.event_identifier, b.created_at, c.title
		FROM bookmark b JOIN event_cache c ON c.event_identifier = b.event_identifier
		WHERE b.user_id = ?
		ORDER BY b.created_at DESC, b.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	saved := []SavedEvent{}
	for rows.Next() {
		var (
			key, createdAt string
			se             SavedEvent
		)
		if err := rows.Scan(&se.ID, &key, &createdAt, &se.Title); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		se.UserID = userID
		if se.Identifier, err = identifierRow(key); err != nil {
			return nil, err
		}
		if err := scanTime("created_at", createdAt, &se.CreatedAt); err != nil {
			return nil, err
		}
		saved = append(saved, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return saved, nil
}
