package store

import (
	"context"
	"fmt"
	"strings"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	steps := []struct {
		name   string
		schema string
	}{
		{"venue", venueSchema},
		{"event", eventSchema},
		{"tag", tagSchema},
		{"event_cache", ledgerSchema},
		{"event_tag", eventTagSchema},
		{"review", reviewSchema},
		{"bookmark", bookmarkSchema},
		{"registered_event", registrationSchema},
		{"sync_runs", syncRunSchema},
		{"rejected_records", rejectedSchema},
		{"metadata", metadataSchema},
	}
	for _, step := range steps {
		if _, err := s.db.ExecContext(ctx, step.schema); err != nil {
			return fmt.Errorf("create %s table: %w", step.name, err)
		}
	}
	return s.upgradeEventIDs(ctx)
}

// upgradeEventIDs rebuilds an event table created without AUTOINCREMENT.
// Community ids name ledger rows that outlive their event, so an id must
// never be handed out twice. The sequence starts above every community id
// the ledger has seen, including ids whose event is already gone.
func (s *Store) upgradeEventIDs(ctx context.Context) error {
	var ddl string
	if err := s.db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'event'`,
	).Scan(&ddl); err != nil {
		return fmt.Errorf("read event schema: %w", err)
	}
	if strings.Contains(strings.ToUpper(ddl), "AUTOINCREMENT") {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event upgrade: %w", err)
	}
	defer tx.Rollback()

	steps := []string{
		`DROP INDEX IF EXISTS idx_event_start_id`,
		`DROP INDEX IF EXISTS idx_event_user`,
		`ALTER TABLE event RENAME TO event_legacy`,
		eventSchema,
		`INSERT INTO event (id, user_id, venue_id, title, description, start_datetime, end_datetime, image_url, location, created_at)
		SELECT id, user_id, venue_id, title, description, start_datetime, end_datetime, image_url, location, created_at
		FROM event_legacy`,
		`DROP TABLE event_legacy`,
		`INSERT INTO sqlite_sequence (name, seq)
		SELECT 'event', 0 WHERE NOT EXISTS (SELECT 1 FROM sqlite_sequence WHERE name = 'event')`,
		`UPDATE sqlite_sequence
		SET seq = MAX(seq, (
			SELECT COALESCE(MAX(CAST(original_id AS INTEGER)), 0)
			FROM event_cache WHERE source = 'community'
		))
		WHERE name = 'event'`,
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("upgrade event ids: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event upgrade: %w", err)
	}
	s.logger.Info("event ids upgraded to autoincrement")
	return nil
}

const venueSchema = `
CREATE TABLE IF NOT EXISTS venue (
	id      INTEGER PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	address TEXT NOT NULL
);
`

const eventSchema = `
CREATE TABLE IF NOT EXISTS event (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        INTEGER NOT NULL,
	venue_id       INTEGER NOT NULL REFERENCES venue(id),
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	start_datetime TEXT NOT NULL,
	end_datetime   TEXT NOT NULL,
	image_url      TEXT,
	location       TEXT,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_start_id ON event(start_datetime, id);
CREATE INDEX IF NOT EXISTS idx_event_user ON event(user_id);
`

const tagSchema = `
CREATE TABLE IF NOT EXISTS tag (
	id       INTEGER PRIMARY KEY,
	tag_name TEXT NOT NULL UNIQUE
);
`

// event_cache is the identity ledger; dependents reference its primary key
// and never an event table.
const ledgerSchema = `
CREATE TABLE IF NOT EXISTS event_cache (
	event_identifier TEXT PRIMARY KEY,
	source           TEXT NOT NULL CHECK (source IN ('official', 'community')),
	original_id      TEXT NOT NULL,
	title            TEXT NOT NULL,
	created_at       TEXT NOT NULL
);
`

const eventTagSchema = `
CREATE TABLE IF NOT EXISTS event_tag (
	id               INTEGER PRIMARY KEY,
	tag_id           INTEGER NOT NULL REFERENCES tag(id),
	event_identifier TEXT NOT NULL REFERENCES event_cache(event_identifier),
	UNIQUE(tag_id, event_identifier)
);

CREATE INDEX IF NOT EXISTS idx_event_tag_identifier ON event_tag(event_identifier, id);
`

const reviewSchema = `
CREATE TABLE IF NOT EXISTS review (
	id               INTEGER PRIMARY KEY,
	user_id          INTEGER NOT NULL,
	event_identifier TEXT NOT NULL REFERENCES event_cache(event_identifier),
	score            INTEGER NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	body             TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	UNIQUE(user_id, event_identifier)
);

CREATE INDEX IF NOT EXISTS idx_review_identifier ON review(event_identifier, id);
`

const bookmarkSchema = `
CREATE TABLE IF NOT EXISTS bookmark (
	id               INTEGER PRIMARY KEY,
	user_id          INTEGER NOT NULL,
	event_identifier TEXT NOT NULL REFERENCES event_cache(event_identifier),
	created_at       TEXT NOT NULL,
	UNIQUE(user_id, event_identifier)
);
`

const registrationSchema = `
CREATE TABLE IF NOT EXISTS registered_event (
	id               INTEGER PRIMARY KEY,
	user_id          INTEGER NOT NULL,
	event_identifier TEXT NOT NULL REFERENCES event_cache(event_identifier),
	registered_at    TEXT NOT NULL,
	UNIQUE(user_id, event_identifier)
);
`

const syncRunSchema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id          INTEGER PRIMARY KEY,
	run_id      TEXT NOT NULL,
	source      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	upserted    INTEGER NOT NULL,
	updated     INTEGER NOT NULL,
	unchanged   INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	error_msg   TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
`

const rejectedSchema = `
CREATE TABLE IF NOT EXISTS rejected_records (
	id         INTEGER PRIMARY KEY,
	ts         TEXT NOT NULL,
	source     TEXT NOT NULL,
	raw_json   TEXT NOT NULL,
	reason     TEXT NOT NULL,
	dedupe_key TEXT NOT NULL,
	UNIQUE(dedupe_key)
);
`

const metadataSchema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
