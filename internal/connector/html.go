package connector

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/graaaaa/eventhub/internal/event"
)

// DescriptionWords is the number of words kept from a scraped description.
const DescriptionWords = 50

// Selector locates a value on a detail page.
type Selector struct {
	CSS  string
	Attr string // read this attribute instead of the text
	All  bool   // join the text of every match
}

// Preset describes how to scrape one site: a list page of links to detail
// pages, and the selectors that pull each field from a detail page.
type Preset struct {
	ListURL  string
	BaseURL  string // detail links resolve against this
	ItemLink string // anchors on the list page

	Title        Selector
	Start        Selector
	End          Selector
	Image        Selector
	Venue        Selector
	Address      Selector
	Description  Selector
	Registration Selector

	DescriptionPrefix string // removed from each description block

	// VenueHoldsAddress means Venue yields "name, address".
	VenueHoldsAddress bool
	// DateOnly drops the time part of start and end values.
	DateOnly bool
	// EndDefaultsToStart fills a missing end date from the start date.
	EndDefaultsToStart bool
	// AddressDefaultsToVenue fills a missing address with the venue name.
	AddressDefaultsToVenue bool
	// RegistrationDefaultsToPage links to the detail page when no
	// registration link exists.
	RegistrationDefaultsToPage bool
}

// Presets are the built-in site definitions.
var Presets = map[string]Preset{
	"artsrepublic": {
		ListURL:           "https://artsrepublic.sg/events",
		BaseURL:           "https://artsrepublic.sg",
		ItemLink:          "li a.event_thumbnail",
		Title:             Selector{CSS: `h1[itemprop="name"]`},
		Start:             Selector{CSS: `meta[itemprop="startDate"]`, Attr: "content"},
		End:               Selector{CSS: `meta[itemprop="endDate"]`, Attr: "content"},
		Image:             Selector{CSS: `meta[itemprop="image"]`, Attr: "content"},
		Venue:             Selector{CSS: `div[itemprop="location"] span[itemprop="name"]`},
		Description:       Selector{CSS: "div.synopsis p", All: true},
		Registration:      Selector{CSS: `div.data a[target="_blank"]`, Attr: "href"},
		DescriptionPrefix: "Synopsis:",
		VenueHoldsAddress: true,
	},
	"eventfinda": {
		ListURL:                    "https://www.eventfinda.sg/whatson/events/singapore",
		BaseURL:                    "https://www.eventfinda.sg",
		ItemLink:                   "div.card.h-event h2.card-title a",
		Title:                      Selector{CSS: "h1.p-name"},
		Start:                      Selector{CSS: "span.dtstart span.value-title", Attr: "title"},
		End:                        Selector{CSS: "span.dtend span.value-title", Attr: "title"},
		Image:                      Selector{CSS: "img.photo", Attr: "src"},
		Venue:                      Selector{CSS: "p.venue a.venue-name"},
		Address:                    Selector{CSS: "span.adr"},
		Description:                Selector{CSS: "div.module.description"},
		Registration:               Selector{CSS: "li.list-item-icon a.external-link", Attr: "href"},
		DateOnly:                   true,
		EndDefaultsToStart:         true,
		AddressDefaultsToVenue:     true,
		RegistrationDefaultsToPage: true,
	},
}

// HTMLConnector scrapes a list page and then each linked detail page.
type HTMLConnector struct {
	name     string
	preset   Preset
	fetcher  *Fetcher
	logger   *slog.Logger
	maxItems int
}

// NewHTML creates an HTMLConnector.
func NewHTML(name string, p Preset, f *Fetcher, logger *slog.Logger, maxItems int) *HTMLConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLConnector{name: name, preset: p, fetcher: f, logger: logger, maxItems: maxItems}
}

// Name implements Connector.
func (c *HTMLConnector) Name() string { return c.name }

// Fetch implements Connector.
func (c *HTMLConnector) Fetch(ctx context.Context) iter.Seq[event.ScrapedEvent] {
	seq := func(yield func(event.ScrapedEvent) bool) {
		links, err := c.listLinks(ctx)
		if err != nil {
			c.logger.Warn("list page unavailable", "url", c.preset.ListURL, "error", err)
			return
		}
		c.logger.Info("found event links", "count", len(links))

		for _, link := range links {
			if ctx.Err() != nil {
				return
			}
			rec, err := c.scrapeDetail(ctx, link)
			if err != nil {
				c.logger.Warn("skipping detail page", "url", link, "error", err)
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
	return once(c.logger, limit(seq, c.maxItems))
}

func (c *HTMLConnector) listLinks(ctx context.Context) ([]string, error) {
	body, err := c.fetcher.GetWithRetry(ctx, c.preset.ListURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse list page: %w", err)
	}

	base, err := url.Parse(c.preset.BaseURL)
	if err != nil || c.preset.BaseURL == "" {
		base, err = url.Parse(c.preset.ListURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find(c.preset.ItemLink).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			c.logger.Debug("skipping malformed link", "href", href, "error", err)
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links, nil
}

// scrapeDetail fetches one detail page. Detail pages are not retried.
func (c *HTMLConnector) scrapeDetail(ctx context.Context, pageURL string) (event.ScrapedEvent, error) {
	body, err := c.fetcher.Get(ctx, pageURL)
	if err != nil {
		return event.ScrapedEvent{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return event.ScrapedEvent{}, fmt.Errorf("parse detail page: %w", err)
	}
	return c.preset.extract(doc, pageURL), nil
}

func (p Preset) extract(doc *goquery.Document, pageURL string) event.ScrapedEvent {
	rec := event.ScrapedEvent{SourceURL: pageURL}

	rec.Title = p.Title.find(doc)
	if rec.Title == "" {
		rec.Title = event.PlaceholderTitle
	}

	rec.StartDate = p.Start.find(doc)
	rec.EndDate = p.End.find(doc)
	if p.DateOnly {
		rec.StartDate = dateOnly(rec.StartDate)
		rec.EndDate = dateOnly(rec.EndDate)
	}
	if p.EndDefaultsToStart && (rec.EndDate == "" || rec.StartDate == "") {
		rec.EndDate = rec.StartDate
	}

	rec.ImageURL = p.Image.find(doc)

	venue := p.Venue.find(doc)
	switch {
	case venue == "":
		rec.VenueName = event.PlaceholderVenue
	case p.VenueHoldsAddress:
		rec.VenueName, rec.Address = splitLocation(venue)
	default:
		rec.VenueName = venue
	}
	if p.Address.CSS != "" {
		rec.Address = p.Address.find(doc)
	}
	if rec.Address == "" && p.AddressDefaultsToVenue {
		rec.Address = rec.VenueName
	}

	rec.Description = shorten(p.description(doc), DescriptionWords)

	rec.RegistrationLink = p.Registration.find(doc)
	if rec.RegistrationLink == "" && p.RegistrationDefaultsToPage {
		rec.RegistrationLink = pageURL
	}
	return rec
}

func (p Preset) description(doc *goquery.Document) string {
	if p.Description.CSS == "" {
		return ""
	}
	matches := doc.Find(p.Description.CSS)
	if !p.Description.All {
		matches = matches.First()
	}
	var parts []string
	matches.Each(func(_ int, s *goquery.Selection) {
		text := spacedText(s)
		if p.DescriptionPrefix != "" {
			text = strings.ReplaceAll(text, p.DescriptionPrefix, "")
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

// find returns the trimmed value of the first match, or "".
func (sel Selector) find(doc *goquery.Document) string {
	if sel.CSS == "" {
		return ""
	}
	s := doc.Find(sel.CSS).First()
	if s.Length() == 0 {
		return ""
	}
	if sel.Attr != "" {
		v, _ := s.Attr(sel.Attr)
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s.Text())
}

// spacedText joins the text nodes under s with single spaces, so adjacent
// block elements do not run together.
func spacedText(s *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, n *goquery.Selection) {
			if goquery.NodeName(n) == "#text" {
				if t := strings.TrimSpace(n.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(n)
		})
	}
	walk(s)
	return strings.Join(parts, " ")
}
