package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/graaaaa/eventhub/internal/event"
)

// communityRow is the internal type representing an event table row.
type communityRow struct {
	ID          int64
	UserID      int64
	VenueID     int64
	Title       string
	Description string
	Start       string
	End         string
	ImageURL    sql.NullString
	Location    sql.NullString

	// From the venue join.
	VenueName    sql.NullString
	VenueAddress sql.NullString
}

const communityColumns = `e.id, e.user_id, e.venue_id, e.title, e.description, e.start_datetime, e.end_datetime,
e.image_url, e.location, v.name, v.address`

func (r *communityRow) scanArgs() []any {
	return []any{
		&r.ID, &r.UserID, &r.VenueID, &r.Title, &r.Description, &r.Start, &r.End,
		&r.ImageURL, &r.Location, &r.VenueName, &r.VenueAddress,
	}
}

// toEvent converts a database row to a CommunityEvent.
func (r *communityRow) toEvent() (event.CommunityEvent, error) {
	start, err := parseTime("start_datetime", r.Start)
	if err != nil {
		return event.CommunityEvent{}, err
	}
	end, err := parseTime("end_datetime", r.End)
	if err != nil {
		return event.CommunityEvent{}, err
	}

	e := event.CommunityEvent{
		ID:          r.ID,
		UserID:      r.UserID,
		VenueID:     r.VenueID,
		Title:       r.Title,
		Description: r.Description,
		Start:       start,
		End:         end,
		Tags:        []event.Tag{},
	}
	if r.ImageURL.Valid {
		e.ImageURL = &r.ImageURL.String
	}
	if r.Location.Valid {
		e.Location = &r.Location.String
	}
	if r.VenueName.Valid {
		e.Venue = &event.Venue{ID: r.VenueID, Name: r.VenueName.String, Address: r.VenueAddress.String}
	}
	return e, nil
}

// communityToRow converts a CommunityEvent to a database row.
func communityToRow(e *event.CommunityEvent) *communityRow {
	r := &communityRow{
		ID:          e.ID,
		UserID:      e.UserID,
		VenueID:     e.VenueID,
		Title:       e.Title,
		Description: e.Description,
		Start:       e.Start.UTC().Format(TimeFormat),
		End:         e.End.UTC().Format(TimeFormat),
	}
	if e.ImageURL != nil {
		r.ImageURL = sql.NullString{String: *e.ImageURL, Valid: true}
	}
	if e.Location != nil {
		r.Location = sql.NullString{String: *e.Location, Valid: true}
	}
	return r
}

// validateEvent checks that required fields are set.
func validateEvent(e *event.CommunityEvent) error {
	if e.UserID <= 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if e.VenueID <= 0 {
		return fmt.Errorf("%w: venue_id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if utf8.RuneCountInString(e.Title) > 255 {
		return fmt.Errorf("%w: title exceeds 255 characters", ErrInvalidEvent)
	}
	if e.Start.IsZero() {
		return fmt.Errorf("%w: start_datetime is required", ErrInvalidEvent)
	}
	if e.End.IsZero() {
		return fmt.Errorf("%w: end_datetime is required", ErrInvalidEvent)
	}
	if e.End.Before(e.Start) {
		return fmt.Errorf("%w: end_datetime is before start_datetime", ErrInvalidEvent)
	}
	return nil
}

// identifierRow parses a stored event_identifier column.
func identifierRow(s string) (event.Identifier, error) {
	id, err := event.ParseIdentifier(s)
	if err != nil {
		return event.Identifier{}, fmt.Errorf("stored identifier: %w", err)
	}
	return id, nil
}

func scanTime(col, v string, dst *time.Time) error {
	t, err := parseTime(col, v)
	if err != nil {
		return err
	}
	*dst = t
	return nil
}
