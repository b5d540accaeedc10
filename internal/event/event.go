// Package event provides the shared domain model for eventhub.
// This package is used by the connector, ingest, bridge, catalog, store and api packages.
package event

import (
	"time"
)

// Placeholder values produced by connectors when a page lacks a field.
const (
	PlaceholderTitle = "Title not found"
	PlaceholderVenue = "Venue not found"
)

// ScrapedEvent is a normalized record produced by a connector.
// SourceURL is the natural key; dates are ISO date strings and may be empty.
type ScrapedEvent struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	StartDate        string `json:"start_date,omitempty"`
	EndDate          string `json:"end_date,omitempty"`
	VenueName        string `json:"venue_name"`
	Address          string `json:"address"`
	ImageURL         string `json:"image_url,omitempty"`
	RegistrationLink string `json:"registration_link,omitempty"`
	SourceURL        string `json:"source"`
}

// OfficialEvent is the document-store projection of the latest ScrapedEvent per source URL.
type OfficialEvent struct {
	ID               string  `json:"_id,omitempty" bson:"_id,omitempty"`
	Title            string  `json:"title" bson:"title"`
	Description      string  `json:"description" bson:"description"`
	StartDate        *string `json:"start_date" bson:"start_date"`
	EndDate          *string `json:"end_date" bson:"end_date"`
	VenueName        string  `json:"venue_name" bson:"venue_name"`
	Address          string  `json:"address" bson:"address"`
	ImageURL         *string `json:"image_url" bson:"image_url"`
	RegistrationLink *string `json:"registration_link" bson:"registration_link"`
	SourceURL        string  `json:"source" bson:"source"`
}

// FromScraped projects a scraped record onto the stored shape.
// Every field is overwritten; nothing is merged with a previous version.
func FromScraped(s ScrapedEvent) OfficialEvent {
	return OfficialEvent{
		Title:            s.Title,
		Description:      s.Description,
		StartDate:        StringPtrIfNotEmpty(s.StartDate),
		EndDate:          StringPtrIfNotEmpty(s.EndDate),
		VenueName:        s.VenueName,
		Address:          s.Address,
		ImageURL:         StringPtrIfNotEmpty(s.ImageURL),
		RegistrationLink: StringPtrIfNotEmpty(s.RegistrationLink),
		SourceURL:        s.SourceURL,
	}
}

// Identifier returns the universal identifier of the official event.
func (e OfficialEvent) Identifier() Identifier {
	return Identifier{Origin: OriginOfficial, NativeID: e.ID}
}

// Venue is the minimal venue record community events reference.
type Venue struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Tag is an entry of the tag vocabulary.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"tag_name"`
}

// CommunityEvent is a user-authored event held in the relational store.
type CommunityEvent struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	VenueID     int64     `json:"venue_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start_datetime"`
	End         time.Time `json:"end_datetime"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Location    *string   `json:"location,omitempty"`

	// Populated by eager-loading reads.
	Venue *Venue `json:"venue,omitempty"`
	Tags  []Tag  `json:"tags,omitempty"`
}

// Identifier returns the universal identifier of the community event.
func (e CommunityEvent) Identifier() Identifier {
	return CommunityIdentifier(e.ID)
}

// LedgerEntry is a row of the identity bridge.
type LedgerEntry struct {
	Identifier Identifier `json:"event_identifier"`
	Title      string     `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EventTag is the application of a tag to an event.
type EventTag struct {
	ID         int64      `json:"id"`
	TagID      int64      `json:"tag_id"`
	Identifier Identifier `json:"event_identifier"`
}

// Review is a user's rating of an event.
type Review struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Identifier Identifier `json:"event_identifier"`
	Score      int        `json:"score"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Bookmark is a saved event.
type Bookmark struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Identifier Identifier `json:"event_identifier"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Registration records a user signing up for an event.
type Registration struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	Identifier   Identifier `json:"event_identifier"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// Statistics is the per-year arts and culture statistics document.
type Statistics struct {
	Year             int               `json:"year" bson:"year"`
	GovContributions []GovContribution `json:"gov_contributions" bson:"gov_contributions"`
	EmploymentItems  []EmploymentItem  `json:"employment_items" bson:"employment_items"`
	Activities       []ActivityCount   `json:"activities" bson:"activities"`
}

// GovContribution is a government funding line item in millions.
type GovContribution struct {
	Type      string  `json:"type" bson:"type"`
	AmountMil float64 `json:"amount_mil" bson:"amount_mil"`
}

// EmploymentItem is an employment count per art form.
type EmploymentItem struct {
	ArtForm    string `json:"artform" bson:"artform"`
	Employment int    `json:"employment" bson:"employment"`
}

// ActivityCount is the number of activities of a kind.
type ActivityCount struct {
	Type   string `json:"type" bson:"type"`
	Number int    `json:"number" bson:"number"`
}

// YearSummary is the aggregated view of one Statistics document.
type YearSummary struct {
	Year            int     `json:"year" bson:"year"`
	TotalFunding    float64 `json:"total_funding" bson:"total_funding"`
	TotalActivities int     `json:"total_activities" bson:"total_activities"`
}

// Summarize totals the funding and activity counts of a statistics document.
func (s Statistics) Summarize() YearSummary {
	sum := YearSummary{Year: s.Year}
	for _, c := range s.GovContributions {
		sum.TotalFunding += c.AmountMil
	}
	for _, a := range s.Activities {
		sum.TotalActivities += a.Number
	}
	return sum
}

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}

// StringPtrIfNotEmpty returns a pointer to s if non-empty, otherwise nil.
func StringPtrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
