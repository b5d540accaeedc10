package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graaaaa/eventhub/internal/event"
)

// GetLedgerEntry returns the ledger row for id.
func (s *Store) GetLedgerEntry(ctx context.Context, id event.Identifier) (event.LedgerEntry, error) {
	var (
		title     string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT title, created_at FROM event_cache WHERE event_identifier = ?`, id.String(),
	).Scan(&title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return event.LedgerEntry{}, fmt.Errorf("ledger %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.LedgerEntry{}, fmt.Errorf("get ledger entry: %w", err)
	}

	entry := event.LedgerEntry{Identifier: id, Title: title}
	if err := scanTime("created_at", createdAt, &entry.CreatedAt); err != nil {
		return event.LedgerEntry{}, err
	}
	return entry, nil
}

// InsertLedgerEntry inserts a ledger row. If CreatedAt is zero the store clock is used.
// Returns ErrDuplicate when a row for the identifier already exists.
func (s *Store) InsertLedgerEntry(ctx context.Context, entry *event.LedgerEntry) error {
	if err := entry.Identifier.Validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_cache (event_identifier, source, original_id, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.Identifier.String(),
		string(entry.Identifier.Origin),
		entry.Identifier.NativeID,
		entry.Title,
		entry.CreatedAt.UTC().Format(TimeFormat),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("ledger %s: %w", entry.Identifier, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// RefreshLedgerTitle updates the cached title of an existing ledger row.
// updated is false when no row exists or the title already matched.
func (s *Store) RefreshLedgerTitle(ctx context.Context, id event.Identifier, title string) (updated bool, err error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE event_cache SET title = ? WHERE event_identifier = ? AND title != ?`,
		title, id.String(), title,
	)
	if err != nil {
		return false, fmt.Errorf("refresh ledger title: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListLedgerEntries returns every ledger row ordered by creation.
func (s *Store) ListLedgerEntries(ctx context.Context) ([]event.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_identifier, title, created_at FROM event_cache ORDER BY created_at, event_identifier`)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []event.LedgerEntry{}
	for rows.Next() {
		var key, createdAt string
		var entry event.LedgerEntry
		if err := rows.Scan(&key, &entry.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if entry.Identifier, err = identifierRow(key); err != nil {
			return nil, err
		}
		if err := scanTime("created_at", createdAt, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

// PruneLedger deletes ledger rows that no tag, review, bookmark or
// registration references. It returns the number of rows removed.
func (s *Store) PruneLedger(ctx context.Context) (int64, error) {
	const query = `
	DELETE FROM event_cache
	WHERE NOT EXISTS (SELECT 1 FROM event_tag WHERE event_tag.event_identifier = event_cache.event_identifier)
	  AND NOT EXISTS (SELECT 1 FROM review WHERE review.event_identifier = event_cache.event_identifier)
	  AND NOT EXISTS (SELECT 1 FROM bookmark WHERE bookmark.event_identifier = event_cache.event_identifier)
	  AND NOT EXISTS (SELECT 1 FROM registered_event WHERE registered_event.event_identifier = event_cache.event_identifier)
	`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned ledger", "removed", n)
	}
	return n, nil
}
