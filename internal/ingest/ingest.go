// Package ingest moves connector output into the document store.
//
// Pipeline.Sync validates and upserts one connector's records, keyed by
// source URL, and never aborts on a single bad record. Runner drives every
// configured connector, records each pass as a sync run and can repeat on
// an interval.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/graaaaa/eventhub/internal/docstore"
	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/metrics"
)

// DefaultStoreTimeout bounds each store call made by the pipeline.
const DefaultStoreTimeout = 5 * time.Second

// Documents is the document-store surface the pipeline writes to.
type Documents interface {
	UpsertEvent(ctx context.Context, e event.OfficialEvent) (docstore.UpsertResult, error)
	UpsertStatistics(ctx context.Context, st event.Statistics) (docstore.UpsertResult, error)
}

// Ledger refreshes cached titles of already-materialized official events.
type Ledger interface {
	RefreshLedgerTitle(ctx context.Context, id event.Identifier, title string) (bool, error)
}

// RejectSink records rejected input for later inspection.
type RejectSink interface {
	InsertRejectedRecord(ctx context.Context, source, rawJSON, reason string) (bool, error)
}

// SyncReport counts the outcome of every record of one sync.
type SyncReport struct {
	Upserted  int `json:"upserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Total returns the number of records seen.
func (r SyncReport) Total() int {
	return r.Upserted + r.Updated + r.Unchanged + r.Skipped + r.Failed
}

func (r *SyncReport) add(outcome string) {
	switch outcome {
	case metrics.OutcomeUpserted:
		r.Upserted++
	case metrics.OutcomeUpdated:
		r.Updated++
	case metrics.OutcomeUnchanged:
		r.Unchanged++
	case metrics.OutcomeSkipped:
		r.Skipped++
	case metrics.OutcomeFailed:
		r.Failed++
	}
}

// Pipeline validates records and upserts them into the document store.
type Pipeline struct {
	docs         Documents
	ledger       Ledger
	rejects      RejectSink
	metrics      *metrics.Metrics
	logger       *slog.Logger
	clock        Clock
	storeTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for the Pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock sets the clock (for testing).
func WithClock(clock Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithLedger enables cached-title refresh after each upsert.
func WithLedger(l Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithRejectSink records skipped records.
func WithRejectSink(s RejectSink) Option {
	return func(p *Pipeline) { p.rejects = s }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.storeTimeout = d
		}
	}
}

// New creates a Pipeline writing to docs.
func New(docs Documents, opts ...Option) *Pipeline {
	p := &Pipeline{
		docs:         docs,
		logger:       slog.Default(),
		clock:        DefaultClock,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sync upserts every valid record of records under source. It stops early
// only when ctx is cancelled; the report then covers the records seen.
func (p *Pipeline) Sync(ctx context.Context, source string, records iter.Seq[event.ScrapedEvent]) SyncReport {
	var report SyncReport
	logger := p.logger.With("source", source)

	for rec := range records {
		if ctx.Err() != nil {
			logger.Warn("sync interrupted", "error", ctx.Err())
			break
		}
		outcome := p.syncOne(ctx, logger, source, rec)
		report.add(outcome)
		p.metrics.SyncRecord(source, outcome)
	}

	logger.Info("sync finished",
		"upserted", report.Upserted,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report
}

func (p *Pipeline) syncOne(ctx context.Context, logger *slog.Logger, source string, rec event.ScrapedEvent) string {
	if err := Validate(rec); err != nil {
		logger.Debug("skipping record", "title", rec.Title, "url", rec.SourceURL, "error", err)
		p.reject(ctx, logger, source, rec, err)
		return metrics.OutcomeSkipped
	}

	res, err := p.upsert(ctx, rec)
	if err != nil {
		logger.Error("failed to upsert event", "url", rec.SourceURL, "error", err)
		p.metrics.StoreFailure("document", "upsert_event")
		return metrics.OutcomeFailed
	}

	if !res.Inserted {
		p.refreshTitle(ctx, logger, res.ID, rec.Title)
	}

	switch {
	case res.Inserted:
		return metrics.OutcomeUpserted
	case res.Modified:
		return metrics.OutcomeUpdated
	default:
		return metrics.OutcomeUnchanged
	}
}

func (p *Pipeline) upsert(ctx context.Context, rec event.ScrapedEvent) (docstore.UpsertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	return p.docs.UpsertEvent(ctx, event.FromScraped(rec))
}

// refreshTitle updates the cached ledger title of an existing official
// event. Failure is logged only.
func (p *Pipeline) refreshTitle(ctx context.Context, logger *slog.Logger, docID, title string) {
	if p.ledger == nil {
		return
	}
	id := event.OfficialIdentifier(docID)
	if id.Validate() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	updated, err := p.ledger.RefreshLedgerTitle(ctx, id, truncate(title))
	if err != nil {
		logger.Warn("failed to refresh ledger title", "identifier", id.String(), "error", err)
		p.metrics.StoreFailure("relational", "refresh_title")
		return
	}
	if updated {
		logger.Debug("ledger title refreshed", "identifier", id.String())
	}
}

func (p *Pipeline) reject(ctx context.Context, logger *slog.Logger, source string, rec event.ScrapedEvent, reason error) {
	if p.rejects == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	if _, err := p.rejects.InsertRejectedRecord(ctx, source, string(raw), reason.Error()); err != nil {
		logger.Warn("failed to record rejected record", "error", err)
	}
}

// SyncStatistics upserts yearly statistics documents keyed by year.
func (p *Pipeline) SyncStatistics(ctx context.Context, stats []event.Statistics) SyncReport {
	const source = "statistics"
	var report SyncReport

	for _, st := range stats {
		if ctx.Err() != nil {
			break
		}
		outcome := p.syncStatistics(ctx, st)
		report.add(outcome)
		p.metrics.SyncRecord(source, outcome)
	}

	p.logger.Info("statistics sync finished", "years", len(stats),
		"upserted", report.Upserted, "updated", report.Updated, "failed", report.Failed)
	return report
}

func (p *Pipeline) syncStatistics(ctx context.Context, st event.Statistics) string {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	res, err := p.docs.UpsertStatistics(ctx, st)
	if err != nil {
		p.logger.Error("failed to upsert statistics", "year", st.Year, "error", err)
		p.metrics.StoreFailure("document", "upsert_statistics")
		return metrics.OutcomeFailed
	}
	switch {
	case res.Inserted:
		return metrics.OutcomeUpserted
	case res.Modified:
		return metrics.OutcomeUpdated
	default:
		return metrics.OutcomeUnchanged
	}
}

// Validate reports why rec cannot be stored, or nil. A record needs a
// source URL and a real title; connector placeholders such as
// "Title not found" count as missing.
func Validate(rec event.ScrapedEvent) error {
	title := strings.TrimSpace(rec.Title)
	switch {
	case title == "":
		return fmt.Errorf("%w: title is empty", ErrInvalidRecord)
	case strings.Contains(strings.ToLower(title), "not found"):
		return fmt.Errorf("%w: title is a placeholder", ErrInvalidRecord)
	case strings.TrimSpace(rec.SourceURL) == "":
		return fmt.Errorf("%w: source url is empty", ErrInvalidRecord)
	}
	return nil
}

// maxTitleRunes matches the ledger's title column.
const maxTitleRunes = 255

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxTitleRunes {
		return s
	}
	return string(r[:maxTitleRunes])
}
