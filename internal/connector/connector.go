// Package connector provides source connectors that pull event listings
// from external sites and feeds and normalize them into event.ScrapedEvent.
//
// A connector never fails a whole run because of one bad item: per-item
// failures are logged and skipped, and an unreachable list page yields an
// empty sequence.
package connector

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/graaaaa/eventhub/internal/config"
	"github.com/graaaaa/eventhub/internal/event"
)

// Connector supplies normalized event records.
type Connector interface {
	// Name identifies the connector in logs, metrics and sync runs.
	Name() string

	// Fetch returns a finite, lazy sequence of records. Each call starts a
	// new fetch; a returned sequence can only be ranged over once.
	Fetch(ctx context.Context) iter.Seq[event.ScrapedEvent]
}

// Option configures connectors built by New.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	fetcher []FetcherOption
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFetcherOptions appends options for the connector's Fetcher.
func WithFetcherOptions(opts ...FetcherOption) Option {
	return func(o *options) { o.fetcher = append(o.fetcher, opts...) }
}

// New builds the connector described by cfg.
func New(cfg config.ConnectorConfig, opts ...Option) (Connector, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("connector name is required")
	}

	logger := o.logger.With("source", cfg.Name)
	fopts := []FetcherOption{
		WithRateLimit(cfg.RateLimit, cfg.Burst),
		WithRetries(cfg.Retries),
		WithFetchLogger(logger),
	}
	if cfg.Timeout > 0 {
		fopts = append(fopts, WithTimeout(cfg.Timeout))
	}
	f := NewFetcher(append(fopts, o.fetcher...)...)

	switch cfg.Type {
	case config.ConnectorHTML:
		p, err := presetFor(cfg)
		if err != nil {
			return nil, err
		}
		return NewHTML(cfg.Name, p, f, logger, cfg.MaxItems), nil
	case config.ConnectorJSONFeed:
		if cfg.URL == "" {
			return nil, fmt.Errorf("connector %s: url is required", cfg.Name)
		}
		return NewJSONFeed(cfg.Name, cfg.URL, f, logger, cfg.MaxItems), nil
	case config.ConnectorICal:
		if cfg.URL == "" {
			return nil, fmt.Errorf("connector %s: url is required", cfg.Name)
		}
		return NewICal(cfg.Name, cfg.URL, f, logger, cfg.MaxItems), nil
	default:
		return nil, fmt.Errorf("connector %s: %w: %q", cfg.Name, ErrUnknownType, cfg.Type)
	}
}

func presetFor(cfg config.ConnectorConfig) (Preset, error) {
	var p Preset
	if cfg.Preset != "" {
		var ok bool
		p, ok = Presets[cfg.Preset]
		if !ok {
			return Preset{}, fmt.Errorf("connector %s: %w: %q", cfg.Name, ErrUnknownPreset, cfg.Preset)
		}
	}
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Preset{}, fmt.Errorf("connector %s: invalid url %q", cfg.Name, cfg.URL)
		}
		p.ListURL = cfg.URL
		p.BaseURL = u.Scheme + "://" + u.Host
	}
	if p.ListURL == "" || p.ItemLink == "" {
		return Preset{}, fmt.Errorf("connector %s: html connector needs a preset", cfg.Name)
	}
	return p, nil
}

// once wraps seq so that only the first range over it produces items.
func once[T any](logger *slog.Logger, seq iter.Seq[T]) iter.Seq[T] {
	var used atomic.Bool
	return func(yield func(T) bool) {
		if !used.CompareAndSwap(false, true) {
			logger.Warn("sequence already consumed")
			return
		}
		seq(yield)
	}
}

// limit stops seq after n items. n <= 0 means no limit.
func limit[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	if n <= 0 {
		return seq
	}
	return func(yield func(T) bool) {
		seen := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			seen++
			if seen >= n {
				return
			}
		}
	}
}

// shorten keeps the first maxWords words of s, appending "..." when
// anything was cut. Whitespace runs collapse to single spaces.
func shorten(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) > maxWords {
		return strings.Join(words[:maxWords], " ") + "..."
	}
	return strings.Join(words, " ")
}

// splitLocation splits "name, address" at the first comma. Without a
// comma the whole string serves as both.
func splitLocation(s string) (venue, address string) {
	s = strings.TrimSpace(s)
	name, rest, ok := strings.Cut(s, ",")
	if !ok {
		return s, s
	}
	return strings.TrimSpace(name), strings.TrimSpace(rest)
}

// dateOnly drops a time part from an ISO datetime.
func dateOnly(s string) string {
	d, _, _ := strings.Cut(strings.TrimSpace(s), "T")
	return d
}
