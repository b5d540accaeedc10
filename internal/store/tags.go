package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/graaaaa/eventhub/internal/event"
)

// EnsureTag returns the tag named name, creating it if needed.
// created reports whether a row was inserted.
func (s *Store) EnsureTag(ctx context.Context, name string) (tag event.Tag, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return event.Tag{}, false, fmt.Errorf("%w: tag name is required", ErrInvalidEvent)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tag (tag_name) VALUES (?) ON CONFLICT(tag_name) DO NOTHING`, name,
	)
	if err != nil {
		return event.Tag{}, false, fmt.Errorf("insert tag: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return event.Tag{}, false, fmt.Errorf("rows affected: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id, tag_name FROM tag WHERE tag_name = ?`, name,
	).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return event.Tag{}, false, fmt.Errorf("get tag: %w", err)
	}
	return tag, rowsAffected > 0, nil
}

// GetTag returns the tag with the given id.
func (s *Store) GetTag(ctx context.Context, id int64) (event.Tag, error) {
	var tag event.Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, tag_name FROM tag WHERE id = ?`, id).Scan(&tag.ID, &tag.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Tag{}, fmt.Errorf("tag %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.Tag{}, fmt.Errorf("get tag: %w", err)
	}
	return tag, nil
}

// ListTags returns the tag vocabulary ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]event.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tag_name FROM tag ORDER BY tag_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []event.Tag{}
	for rows.Next() {
		var tag event.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tags, nil
}

// FindEventTag returns the application of tagID to id.
func (s *Store) FindEventTag(ctx context.Context, tagID int64, id event.Identifier) (event.EventTag, error) {
	et := event.EventTag{TagID: tagID, Identifier: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM event_tag WHERE tag_id = ? AND event_identifier = ?`,
		tagID, id.String(),
	).Scan(&et.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return event.EventTag{}, fmt.Errorf("event tag %d/%s: %w", tagID, id, ErrNotFound)
	}
	if err != nil {
		return event.EventTag{}, fmt.Errorf("get event tag: %w", err)
	}
	return et, nil
}

// InsertEventTag applies a tag to a ledger identifier and sets et.ID.
// Returns ErrDuplicate if the tag is already applied and
// ErrMissingReference if the tag or ledger row does not exist.
func (s *Store) InsertEventTag(ctx context.Context, et *event.EventTag) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO event_tag (tag_id, event_identifier) VALUES (?, ?)`,
		et.TagID, et.Identifier.String(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("event tag %d/%s: %w", et.TagID, et.Identifier, ErrDuplicate)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("event tag %d/%s: %w", et.TagID, et.Identifier, ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("insert event tag: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	et.ID = id
	return nil
}

// DeleteEventTag removes a tag application. The ledger row is kept.
func (s *Store) DeleteEventTag(ctx context.Context, tagID int64, id event.Identifier) error {
	return s.deleteOne(ctx, "event tag",
		`DELETE FROM event_tag WHERE tag_id = ? AND event_identifier = ?`,
		tagID, id.String(),
	)
}

// ListEventTags returns the tags applied to id in application order.
func (s *Store) ListEventTags(ctx context.Context, id event.Identifier) ([]event.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.tag_name
		FROM event_tag et JOIN tag t ON t.id = et.tag_id
		WHERE et.event_identifier = ?
		ORDER BY et.id ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list event tags: %w", err)
	}
	defer rows.Close()

	tags := []event.Tag{}
	for rows.Next() {
		var tag event.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tags, nil
}

// deleteOne runs a DELETE and maps zero affected rows to ErrNotFound.
func (s *Store) deleteOne(ctx context.Context, what, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
