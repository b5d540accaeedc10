package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graaaaa/eventhub/internal/event"
)

// FindRegistration returns userID's registration for id.
func (s *Store) FindRegistration(ctx context.Context, userID int64, id event.Identifier) (event.Registration, error) {
	r := event.Registration{UserID: userID, Identifier: id}
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, registered_at FROM registered_event WHERE user_id = ? AND event_identifier = ?`,
		userID, id.String(),
	).Scan(&r.ID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Registration{}, fmt.Errorf("registration %d/%s: %w", userID, id, ErrNotFound)
	}
	if err != nil {
		return event.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	if err := scanTime("registered_at", at, &r.RegisteredAt); err != nil {
		return event.Registration{}, err
	}
	return r, nil
}

// InsertRegistration inserts a registration and sets ID and RegisteredAt.
func (s *Store) InsertRegistration(ctx context.Context, r *event.Registration) error {
	r.RegisteredAt = s.now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO registered_event (user_id, event_identifier, registered_at) VALUES (?, ?, ?)`,
		r.UserID, r.Identifier.String(), r.RegisteredAt.Format(TimeFormat),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("registration %d/%s: %w", r.UserID, r.Identifier, ErrDuplicate)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("registration %s: %w", r.Identifier, ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// DeleteRegistration removes userID's registration for id.
func (s *Store) DeleteRegistration(ctx context.Context, userID int64, id event.Identifier) error {
	return s.deleteOne(ctx, "registration",
		`DELETE FROM registered_event WHERE user_id = ? AND event_identifier = ?`,
		userID, id.String(),
	)
}

// ListRegistrations returns userID's registrations, newest first.
func (s *Store) ListRegistrations(ctx context.Context, userID int64) ([]event.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_identifier, registered_at FROM registered_event WHERE user_id = ? ORDER BY registered_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	regs := []event.Registration{}
	for rows.Next() {
		var (
			key, at string
			r       = event.Registration{UserID: userID}
		)
		if err := rows.Scan(&r.ID, &key, &at); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		if r.Identifier, err = identifierRow(key); err != nil {
			return nil, err
		}
		if err := scanTime("registered_at", at, &r.RegisteredAt); err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return regs, nil
}
