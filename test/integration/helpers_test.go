//go:build integration

// Package integration provides end-to-end tests of the eventhub API over
// real stores and a real HTTP listener.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"

	"github.com/graaaaa/eventhub/internal/api"
	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/bridge"
	"github.com/graaaaa/eventhub/internal/catalog"
	"github.com/graaaaa/eventhub/internal/connector"
	"github.com/graaaaa/eventhub/internal/docstore/sqlitedoc"
	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/features"
	"github.com/graaaaa/eventhub/internal/ingest"
	"github.com/graaaaa/eventhub/internal/metrics"
	"github.com/graaaaa/eventhub/internal/store"
)

// TestApp holds all dependencies for integration tests.
type TestApp struct {
	Server *httptest.Server
	Docs   *sqlitedoc.Store
	Store  *store.Store
	Runner *ingest.Runner
}

// staticConnector yields a fixed list of records.
type staticConnector struct {
	name    string
	records []event.ScrapedEvent
}

func (c *staticConnector) Name() string { return c.name }

func (c *staticConnector) Fetch(ctx context.Context) iter.Seq[event.ScrapedEvent] {
	return slices.Values(c.records)
}

var _ connector.Connector = (*staticConnector)(nil)

// jazzNight is the record of the ingestion scenario.
var jazzNight = event.ScrapedEvent{
	Title:       "Jazz Night",
	StartDate:   "2025-03-01",
	VenueName:   "Esplanade",
	Description: "An evening of live jazz",
	SourceURL:   "https://x.example/e/1",
}

// NewTestApp creates a new test application with all dependencies wired up.
// Resources are released by t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	cfg := &testAppConfig{
		records: []event.ScrapedEvent{jazzNight},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	docs, err := sqlitedoc.Open(filepath.Join(dir, "documents.sqlite"))
	if err != nil {
		t.Fatalf("failed to open document store: %v", err)
	}
	st, err := store.Open(filepath.Join(dir, "eventhub.sqlite"), store.WithLogger(logger))
	if err != nil {
		docs.Close()
		t.Fatalf("failed to open store: %v", err)
	}

	pipeline := ingest.New(docs,
		ingest.WithLogger(logger),
		ingest.WithLedger(st),
		ingest.WithRejectSink(st),
		ingest.WithMetrics(m),
	)
	runner := ingest.NewRunner(pipeline,
		[]connector.Connector{&staticConnector{name: "fixture", records: cfg.records}},
		ingest.WithRunRecorder(st),
	)

	engine := catalog.New(docs, st, catalog.WithLogger(logger), catalog.WithMetrics(m))
	br := bridge.New(docs, st, bridge.WithLogger(logger), bridge.WithMetrics(m))

	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithMetrics(m),
		api.WithEventsUsecase(&app.EventsService{Catalog: engine, Documents: docs}),
		api.WithCommunityUsecase(&app.CommunityService{Store: st, Logger: logger}),
		api.WithFeaturesUsecase(features.NewService(br, st, features.WithLogger(logger))),
		api.WithStatsUsecase(app.NewStatsService(docs, st)),
		api.WithSyncUsecase(&app.SyncService{Runner: runner, Runs: st}),
	}
	if cfg.authEnabled {
		serverOpts = append(serverOpts, api.WithBasicAuth(cfg.username, cfg.password))
	}

	health := app.HealthService{
		Version: "integration",
		Stores:  map[string]app.Pinger{"document": docs, "relational": st},
	}
	server := api.NewServer("127.0.0.1:0", health, serverOpts...)
	ts := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		ts.Close()
		st.Close()
		docs.Close()
	})

	return &TestApp{Server: ts, Docs: docs, Store: st, Runner: runner}
}

// URL returns the base URL of the test server.
func (app *TestApp) URL() string {
	return app.Server.URL
}

// Sync runs every connector once and fails the test on error.
func (app *TestApp) Sync(t *testing.T) []ingest.RunResult {
	t.Helper()
	results, err := app.Runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	return results
}

// OfficialID returns the universal identifier of the only official event.
func (app *TestApp) OfficialID(t *testing.T) string {
	t.Helper()
	events, err := app.Docs.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 official event, got %d", len(events))
	}
	return events[0].Identifier().String()
}

// Do sends a JSON request as user uid. An empty uid sends no identity header.
func (app *TestApp) Do(t *testing.T, method, path string, body any, uid string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, app.URL()+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.Header.Set(api.HeaderUserID, uid)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// Decode reads a JSON response body into v.
func Decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
}

// testAppConfig holds configuration for test app.
type testAppConfig struct {
	authEnabled bool
	username    string
	password    string
	records     []event.ScrapedEvent
}

// TestAppOption configures a test app.
type TestAppOption func(*testAppConfig)

// WithAuth enables admin authentication for the test app.
func WithAuth(username, password string) TestAppOption {
	return func(cfg *testAppConfig) {
		cfg.authEnabled = true
		cfg.username = username
		cfg.password = password
	}
}

// WithRecords replaces the records the fixture connector yields.
func WithRecords(records ...event.ScrapedEvent) TestAppOption {
	return func(cfg *testAppConfig) {
		cfg.records = records
	}
}
