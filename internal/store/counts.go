package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Counts holds row totals of the relational store.
type Counts struct {
	CommunityEvents int64   `json:"community_events"`
	Venues          int64   `json:"venues"`
	Tags            int64   `json:"tags"`
	LedgerEntries   int64   `json:"ledger_entries"`
	Reviews         int64   `json:"reviews"`
	Bookmarks       int64   `json:"bookmarks"`
	Registrations   int64   `json:"registrations"`
	LastSyncAt      *string `json:"last_sync_at,omitempty"`
}

// GetCounts returns row totals in a single query plus the last sync time.
func (s *Store) GetCounts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM event),
			(SELECT COUNT(*) FROM venue),
			(SELECT COUNT(*) FROM tag),
			(SELECT COUNT(*) FROM event_cache),
			(SELECT COUNT(*) FROM review),
			(SELECT COUNT(*) FROM bookmark),
			(SELECT COUNT(*) FROM registered_event)
	`).Scan(&c.CommunityEvents, &c.Venues, &c.Tags, &c.LedgerEntries, &c.Reviews, &c.Bookmarks, &c.Registrations)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	var last sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT finished_at FROM sync_runs
		ORDER BY finished_at DESC, id DESC
		LIMIT 1
	`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last sync: %w", err)
	}
	if last.Valid {
		c.LastSyncAt = &last.String
	}
	return c, nil
}
