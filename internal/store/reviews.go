package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graaaaa/eventhub/internal/event"
)

const reviewColumns = `id, user_id, event_identifier, score, title, body, created_at`

type reviewRow struct {
	ID         int64
	UserID     int64
	Identifier string
	Score      int
	Title      string
	Body       string
	CreatedAt  string
}

func (r *reviewRow) scanArgs() []any {
	return []any{&r.ID, &r.UserID, &r.Identifier, &r.Score, &r.Title, &r.Body, &r.CreatedAt}
}

func (r *reviewRow) toReview() (event.Review, error) {
	id, err := identifierRow(r.Identifier)
	if err != nil {
		return event.Review{}, err
	}
	rv := event.Review{ID: r.ID, UserID: r.UserID, Identifier: id, Score: r.Score, Title: r.Title, Body: r.Body}
	if err := scanTime("created_at", r.CreatedAt, &rv.CreatedAt); err != nil {
		return event.Review{}, err
	}
	return rv, nil
}

// FindReview returns userID's review of id.
func (s *Store) FindReview(ctx context.Context, userID int64, id event.Identifier) (event.Review, error) {
	var r reviewRow
	err := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM review WHERE user_id = ? AND event_identifier = ?`,
		userID, id.String(),
	).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Review{}, fmt.Errorf("review %d/%s: %w", userID, id, ErrNotFound)
	}
	if err != nil {
		return event.Review{}, fmt.Errorf("get review: %w", err)
	}
	return r.toReview()
}

// InsertReview inserts a review and sets ID and CreatedAt.
func (s *Store) InsertReview(ctx context.Context, rv *event.Review) error {
	rv.CreatedAt = s.now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO review (user_id, event_identifier, score, title, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rv.UserID, rv.Identifier.String(), rv.Score, rv.Title, rv.Body, rv.CreatedAt.Format(TimeFormat),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("review %d/%s: %w", rv.UserID, rv.Identifier, ErrDuplicate)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("review %s: %w", rv.Identifier, ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rv.ID = id
	return nil
}

// DeleteReview deletes review id if it belongs to userID.
func (s *Store) DeleteReview(ctx context.Context, id, userID int64) error {
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM review WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("review %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get review owner: %w", err)
	}
	if owner != userID {
		return fmt.Errorf("review %d: %w", id, ErrNotOwner)
	}
	return s.deleteOne(ctx, "review", `DELETE FROM review WHERE id = ?`, id)
}

// ListReviews returns the reviews of id, newest first.
func (s *Store) ListReviews(ctx context.Context, id event.Identifier) ([]event.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM review WHERE event_identifier = ? ORDER BY created_at DESC, id DESC`,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []event.Review{}
	for rows.Next() {
		var r reviewRow
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv, err := r.toReview()
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return reviews, nil
}
