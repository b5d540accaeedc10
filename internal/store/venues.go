package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/graaaaa/eventhub/internal/event"
)

// CreateVenue inserts a venue and sets v.ID.
// A venue name that already exists yields ErrDuplicate.
func (s *Store) CreateVenue(ctx context.Context, v *event.Venue) error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: venue name is required", ErrInvalidEvent)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO venue (name, address) VALUES (?, ?)`,
		v.Name, v.Address,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("venue %q: %w", v.Name, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert venue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	v.ID = id
	return nil
}

// GetVenue returns the venue with the given id.
func (s *Store) GetVenue(ctx context.Context, id int64) (event.Venue, error) {
	var v event.Venue
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address FROM venue WHERE id = ?`, id,
	).Scan(&v.ID, &v.Name, &v.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Venue{}, fmt.Errorf("venue %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.Venue{}, fmt.Errorf("get venue: %w", err)
	}
	return v, nil
}

// ListVenues returns all venues ordered by name.
func (s *Store) ListVenues(ctx context.Context) ([]event.Venue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address FROM venue ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()

	venues := []event.Venue{}
	for rows.Next() {
		var v event.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Address); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return venues, nil
}
