package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/graaaaa/eventhub/internal/event"
)

// JSONFeedConnector reads a structured feed whose body is either an array
// of records or an object with an "events" array. Field names follow
// event.ScrapedEvent's JSON tags.
type JSONFeedConnector struct {
	name     string
	url      string
	fetcher  *Fetcher
	logger   *slog.Logger
	maxItems int
}

// NewJSONFeed creates a JSONFeedConnector.
func NewJSONFeed(name, url string, f *Fetcher, logger *slog.Logger, maxItems int) *JSONFeedConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONFeedConnector{name: name, url: url, fetcher: f, logger: logger, maxItems: maxItems}
}

// Name implements Connector.
func (c *JSONFeedConnector) Name() string { return c.name }

// Fetch implements Connector.
func (c *JSONFeedConnector) Fetch(ctx context.Context) iter.Seq[event.ScrapedEvent] {
	seq := func(yield func(event.ScrapedEvent) bool) {
		body, err := c.fetcher.GetWithRetry(ctx, c.url)
		if err != nil {
			c.logger.Warn("feed unavailable", "url", c.url, "error", err)
			return
		}
		items, err := feedItems(body)
		if err != nil {
			c.logger.Warn("feed is malformed", "url", c.url, "error", err)
			return
		}
		for i, raw := range items {
			var rec event.ScrapedEvent
			if err := json.Unmarshal(raw, &rec); err != nil {
				c.logger.Warn("skipping feed item", "index", i, "error", err)
				continue
			}
			if rec.VenueName == "" {
				rec.VenueName = event.PlaceholderVenue
			}
			rec.Description = shorten(rec.Description, DescriptionWords)
			if !yield(rec) {
				return
			}
		}
	}
	return once(c.logger, limit(seq, c.maxItems))
}

func feedItems(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	var items []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return items, nil
	}

	var wrapped struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return wrapped.Events, nil
}
