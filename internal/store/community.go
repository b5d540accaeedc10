package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/graaaaa/eventhub/internal/event"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

// CreateCommunityEvent inserts a community event and sets e.ID.
func (s *Store) CreateCommunityEvent(ctx context.Context, e *event.CommunityEvent) error {
	if err := validateEvent(e); err != nil {
		return err
	}

	const query = `
	INSERT INTO event
	(user_id, venue_id, title, description, start_datetime, end_datetime, image_url, location, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	row := communityToRow(e)
	result, err := s.db.ExecContext(ctx, query,
		row.UserID,
		row.VenueID,
		row.Title,
		row.Description,
		row.Start,
		row.End,
		row.ImageURL,
		row.Location,
		s.timestamp(),
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("venue %d: %w", e.VenueID, ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// UpdateCommunityEvent replaces the editable fields of an existing event.
// Only the owner (e.UserID) may update it.
func (s *Store) UpdateCommunityEvent(ctx context.Context, e *event.CommunityEvent) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	if err := s.checkOwner(ctx, e.ID, e.UserID); err != nil {
		return err
	}

	const query = `
	UPDATE event
	SET venue_id = ?, title = ?, description = ?, start_datetime = ?, end_datetime = ?, image_url = ?, location = ?
	WHERE id = ?
	`
	row := communityToRow(e)
	_, err := s.db.ExecContext(ctx, query,
		row.VenueID, row.Title, row.Description, row.Start, row.End, row.ImageURL, row.Location, row.ID,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("venue %d: %w", e.VenueID, ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// DeleteCommunityEvent deletes an event owned by userID.
// The ledger row for the event, if any, is left in place.
func (s *Store) DeleteCommunityEvent(ctx context.Context, id, userID int64) error {
	if err := s.checkOwner(ctx, id, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM event WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (s *Store) checkOwner(ctx context.Context, id, userID int64) error {
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM event WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get event owner: %w", err)
	}
	if owner != userID {
		return fmt.Errorf("event %d: %w", id, ErrNotOwner)
	}
	return nil
}

// GetCommunityEvent returns one event with its venue and tags loaded.
func (s *Store) GetCommunityEvent(ctx context.Context, id int64) (event.CommunityEvent, error) {
	query := `SELECT ` + communityColumns + `
FROM event e LEFT JOIN venue v ON v.id = e.venue_id
WHERE e.id = ?`

	var r communityRow
	err := s.db.QueryRowContext(ctx, query, id).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return event.CommunityEvent{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.CommunityEvent{}, fmt.Errorf("get event: %w", err)
	}
	e, err := r.toEvent()
	if err != nil {
		return event.CommunityEvent{}, err
	}

	events := []event.CommunityEvent{e}
	if err := s.loadTags(ctx, events); err != nil {
		return event.CommunityEvent{}, err
	}
	return events[0], nil
}

// ListCommunityEvents returns every community event with venue and tags
// eager-loaded, ordered by start then id.
func (s *Store) ListCommunityEvents(ctx context.Context) ([]event.CommunityEvent, error) {
	query := `SELECT ` + communityColumns + `
FROM event e LEFT JOIN venue v ON v.id = e.venue_id
ORDER BY e.start_datetime ASC, e.id ASC`

	events, err := s.queryCommunity(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := s.loadTags(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// CommunityFilter contains filter options for paging community events.
type CommunityFilter struct {
	UserID *int64
	Limit  int
	Cursor *string
}

// CommunityPage is one page of community events.
type CommunityPage struct {
	Items      []event.CommunityEvent
	NextCursor *string
}

// QueryCommunityEvents pages through community events ordered by start then id.
func (s *Store) QueryCommunityEvents(ctx context.Context, f CommunityFilter) (CommunityPage, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	} else if limit > maxLimit {
		limit = maxLimit
	}

	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`SELECT ` + communityColumns + `
FROM event e LEFT JOIN venue v ON v.id = e.venue_id
WHERE 1=1
`)

	if f.UserID != nil {
		sb.WriteString(" AND e.user_id = ?")
		args = append(args, *f.UserID)
	}

	// Composite cursor: start|id
	if f.Cursor != nil && *f.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(*f.Cursor)
		if err != nil {
			return CommunityPage{}, fmt.Errorf("decode cursor: %w", err)
		}
		sb.WriteString(" AND (e.start_datetime > ? OR (e.start_datetime = ? AND e.id > ?))")
		ts := cursorTime.UTC().Format(TimeFormat)
		args = append(args, ts, ts, cursorID)
	}

	sb.WriteString(" ORDER BY e.start_datetime ASC, e.id ASC")
	sb.WriteString(" LIMIT ?")
	args = append(args, limit+1) // fetch one extra to detect next page

	items, err := s.queryCommunity(ctx, sb.String(), args...)
	if err != nil {
		return CommunityPage{}, err
	}

	var nextCursor *string
	if len(items) > limit {
		last := items[limit-1]
		items = items[:limit]
		c := EncodeCursor(last.Start, last.ID)
		nextCursor = &c
	}

	if err := s.loadTags(ctx, items); err != nil {
		return CommunityPage{}, err
	}
	return CommunityPage{Items: items, NextCursor: nextCursor}, nil
}

// CountCommunityEvents returns the total number of community events.
func (s *Store) CountCommunityEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func (s *Store) queryCommunity(ctx context.Context, query string, args ...any) ([]event.CommunityEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	items := []event.CommunityEvent{}
	for rows.Next() {
		var r communityRow
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// tagBatchSize bounds the number of bound parameters per tag query.
const tagBatchSize = 500

// loadTags fills Tags for each event, ordered by application id so the first
// tag is the earliest applied. It issues one query per tagBatchSize events.
func (s *Store) loadTags(ctx context.Context, events []event.CommunityEvent) error {
	index := make(map[string]int, len(events))
	for i := range events {
		index[events[i].Identifier().String()] = i
	}

	for lo := 0; lo < len(events); lo += tagBatchSize {
		hi := min(lo+tagBatchSize, len(events))
		if err := s.loadTagBatch(ctx, events, index, events[lo:hi]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadTagBatch(ctx context.Context, events []event.CommunityEvent, index map[string]int, batch []event.CommunityEvent) error {
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch))
	for i := range batch {
		placeholders = append(placeholders, "?")
		args = append(args, batch[i].Identifier().String())
	}

	query := `
SELECT et.event_identifier, t.id, t.tag_name
FROM event_tag et JOIN tag t ON t.id = et.tag_id
WHERE et.event_identifier IN (` + strings.Join(placeholders, ",") + `)
ORDER BY et.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query event tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			tag event.Tag
		)
		if err := rows.Scan(&key, &tag.ID, &tag.Name); err != nil {
			return fmt.Errorf("scan event tag: %w", err)
		}
		if i, ok := index[key]; ok {
			events[i].Tags = append(events[i].Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}
