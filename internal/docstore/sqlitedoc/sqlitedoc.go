// Package sqlitedoc implements docstore.Store on an embedded SQLite file.
//
// Documents are JSON bodies in a single table keyed by (collection, id) with a
// unique (collection, natural_key) index; ids are MongoDB object ids so
// identifiers stay valid if the data later moves to MongoDB.
package sqlitedoc

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/graaaaa/eventhub/internal/docstore"
	"github.com/graaaaa/eventhub/internal/event"
)

// TimeFormat is the fixed-width timestamp format of updated_at.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed document store.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped documents.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) a document database at path.
func Open(path string, opts ...Option) (*Store, error) {
	escapedPath := url.PathEscape(path)

	// Immediate transactions: the upsert reads then writes inside one tx.
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", escapedPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open document database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping document database: %w", err)
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection  TEXT NOT NULL,
		id          TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		body        TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		PRIMARY KEY (collection, id),
		UNIQUE (collection, natural_key)
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertEvent implements docstore.Store.
func (s *Store) UpsertEvent(ctx context.Context, e event.OfficialEvent) (docstore.UpsertResult, error) {
	if strings.TrimSpace(e.SourceURL) == "" {
		return docstore.UpsertResult{}, fmt.Errorf("%w: source", docstore.ErrMissingKey)
	}
	e.ID = ""
	body, err := json.Marshal(e)
	if err != nil {
		return docstore.UpsertResult{}, fmt.Errorf("marshal event: %w", err)
	}
	return s.upsert(ctx, docstore.CollectionEvents, e.SourceURL, body)
}

// GetEvent implements docstore.Store.
func (s *Store) GetEvent(ctx context.Context, id string) (event.OfficialEvent, error) {
	if !primitive.IsValidObjectID(id) {
		return event.OfficialEvent{}, fmt.Errorf("%w: %q", docstore.ErrInvalidID, id)
	}
	const query = `SELECT body FROM documents WHERE collection = ? AND id = ?`
	var body string
	err := s.db.QueryRowContext(ctx, query, docstore.CollectionEvents, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return event.OfficialEvent{}, fmt.Errorf("%w: events/%s", docstore.ErrNotFound, id)
	}
	if err != nil {
		return event.OfficialEvent{}, fmt.Errorf("get event: %w", err)
	}
	return decodeEvent(id, body)
}

// ListEvents implements docstore.Store. A document that no longer decodes
// is logged and left out.
func (s *Store) ListEvents(ctx context.Context) ([]event.OfficialEvent, error) {
	const query = `SELECT id, body FROM documents WHERE collection = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, docstore.CollectionEvents)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []event.OfficialEvent{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := decodeEvent(id, body)
		if err != nil {
			s.logger.Warn("skipping undecodable event document", "id", id, "error", err)
			continue
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// UpsertStatistics implements docstore.Store.
func (s *Store) UpsertStatistics(ctx context.Context, st event.Statistics) (docstore.UpsertResult, error) {
	if st.Year == 0 {
		return docstore.UpsertResult{}, fmt.Errorf("%w: year", docstore.ErrMissingKey)
	}
	body, err := json.Marshal(st)
	if err != nil {
		return docstore.UpsertResult{}, fmt.Errorf("marshal statistics: %w", err)
	}
	return s.upsert(ctx, docstore.CollectionStatistics, strconv.Itoa(st.Year), body)
}

// SummarizeStatistics implements docstore.Store.
func (s *Store) SummarizeStatistics(ctx context.Context) ([]event.YearSummary, error) {
	const query = `SELECT body FROM documents WHERE collection = ?`
	rows, err := s.db.QueryContext(ctx, query, docstore.CollectionStatistics)
	if err != nil {
		return nil, fmt.Errorf("list statistics: %w", err)
	}
	defer rows.Close()

	out := []event.YearSummary{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		var st event.Statistics
		if err := json.Unmarshal([]byte(body), &st); err != nil {
			return nil, fmt.Errorf("decode statistics: %w", err)
		}
		out = append(out, st.Summarize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

// upsert replaces the body stored under (collection, key).
// A losing concurrent insert of the same key is retried once as an update.
func (s *Store) upsert(ctx context.Context, collection, key string, body []byte) (docstore.UpsertResult, error) {
	res, err := s.upsertTx(ctx, collection, key, body)
	if err != nil && isUniqueViolation(err) {
		res, err = s.upsertTx(ctx, collection, key, body)
	}
	return res, err
}

func (s *Store) upsertTx(ctx context.Context, collection, key string, body []byte) (res docstore.UpsertResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := s.now().UTC().Format(TimeFormat)

	var id, existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? AND natural_key = ?`,
		collection, key,
	).Scan(&id, &existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = primitive.NewObjectID().Hex()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, natural_key, body, updated_at) VALUES (?, ?, ?, ?, ?)`,
			collection, id, key, string(body), now,
		); err != nil {
			return res, fmt.Errorf("insert document: %w", err)
		}
		res = docstore.UpsertResult{ID: id, Inserted: true}
	case err != nil:
		return res, fmt.Errorf("find document: %w", err)
	case bytes.Equal([]byte(existing), body):
		res = docstore.UpsertResult{ID: id}
	default:
		if _, err = tx.ExecContext(ctx,
			`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			string(body), now, collection, id,
		); err != nil {
			return res, fmt.Errorf("update document: %w", err)
		}
		res = docstore.UpsertResult{ID: id, Modified: true}
	}

	if err = tx.Commit(); err != nil {
		return docstore.UpsertResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func decodeEvent(id, body string) (event.OfficialEvent, error) {
	var e event.OfficialEvent
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return event.OfficialEvent{}, fmt.Errorf("decode event %s: %w", id, err)
	}
	e.ID = id
	return e, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
