package connector

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/graaaaa/eventhub/internal/event"
)

// ICalConnector reads an iCalendar feed. Each VEVENT becomes one record.
// The source URL is the event's URL property, or <feed-url>#<UID> when the
// event has none. Events with neither are skipped.
type ICalConnector struct {
	name     string
	url      string
	fetcher  *Fetcher
	logger   *slog.Logger
	maxItems int
}

// NewICal creates an ICalConnector.
func NewICal(name, url string, f *Fetcher, logger *slog.Logger, maxItems int) *ICalConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ICalConnector{name: name, url: url, fetcher: f, logger: logger, maxItems: maxItems}
}

// Name implements Connector.
func (c *ICalConnector) Name() string { return c.name }

// Fetch implements Connector.
func (c *ICalConnector) Fetch(ctx context.Context) iter.Seq[event.ScrapedEvent] {
	seq := func(yield func(event.ScrapedEvent) bool) {
		body, err := c.fetcher.GetWithRetry(ctx, c.url)
		if err != nil {
			c.logger.Warn("calendar unavailable", "url", c.url, "error", err)
			return
		}
		if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
			c.logger.Warn("response is not an iCalendar feed", "url", c.url)
			return
		}

		dec := ical.NewDecoder(bytes.NewReader(body))
		for {
			cal, err := dec.Decode()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				c.logger.Warn("failed to decode calendar", "url", c.url, "error", err)
				return
			}

			for _, comp := range cal.Children {
				if comp.Name != ical.CompEvent {
					continue
				}
				rec, ok := c.record(comp)
				if !ok {
					continue
				}
				if !yield(rec) {
					return
				}
			}
		}
	}
	return once(c.logger, limit(seq, c.maxItems))
}

func (c *ICalConnector) record(comp *ical.Component) (event.ScrapedEvent, bool) {
	rec := event.ScrapedEvent{
		Title:            propText(comp, ical.PropSummary),
		Description:      shorten(propText(comp, ical.PropDescription), DescriptionWords),
		RegistrationLink: propText(comp, ical.PropURL),
	}

	rec.SourceURL = rec.RegistrationLink
	if rec.SourceURL == "" {
		uid := propText(comp, ical.PropUID)
		if uid == "" {
			c.logger.Warn("skipping event without URL or UID", "title", rec.Title)
			return event.ScrapedEvent{}, false
		}
		rec.SourceURL = c.url + "#" + uid
	}

	if rec.Title == "" {
		rec.Title = event.PlaceholderTitle
	}

	if loc := propText(comp, ical.PropLocation); loc != "" {
		rec.VenueName, rec.Address = splitLocation(loc)
	} else {
		rec.VenueName = event.PlaceholderVenue
	}

	rec.StartDate = propDate(comp, ical.PropDateTimeStart)
	rec.EndDate = propDate(comp, ical.PropDateTimeEnd)
	if rec.EndDate == "" {
		rec.EndDate = rec.StartDate
	}
	return rec, true
}

func propText(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	if text, err := prop.Text(); err == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(prop.Value)
}

// propDate returns the property's calendar date as YYYY-MM-DD, or "".
func propDate(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	t, err := prop.DateTime(time.UTC)
	if err != nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
