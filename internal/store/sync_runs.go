package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SyncRun is one connector pass recorded by the ingest runner.
type SyncRun struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Upserted   int       `json:"upserted"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      *string   `json:"error,omitempty"`
}

// InsertSyncRun records a finished run and sets r.ID.
func (s *Store) InsertSyncRun(ctx context.Context, r *SyncRun) error {
	if r.RunID == "" || r.Source == "" {
		return fmt.Errorf("run_id and source are required")
	}
	var errMsg sql.NullString
	if r.Error != nil {
		errMsg = sql.NullString{String: *r.Error, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, source, started_at, finished_at, upserted, updated, unchanged, skipped, failed, error_msg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID, r.Source,
		r.StartedAt.UTC().Format(TimeFormat), r.FinishedAt.UTC().Format(TimeFormat),
		r.Upserted, r.Updated, r.Unchanged, r.Skipped, r.Failed, errMsg,
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// ListSyncRuns returns the most recent runs, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = defaultLimit
	} else if limit > maxLimit {
		limit = maxLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, source, started_at, finished_at, upserted, updated, unchanged, skipped, failed, error_msg
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []SyncRun{}
	for rows.Next() {
		var (
			r                 SyncRun
			started, finished string
			errMsg            sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Source, &started, &finished,
			&r.Upserted, &r.Updated, &r.Unchanged, &r.Skipped, &r.Failed, &errMsg); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		if err := scanTime("started_at", started, &r.StartedAt); err != nil {
			return nil, err
		}
		if err := scanTime("finished_at", finished, &r.FinishedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			r.Error = &errMsg.String
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return runs, nil
}
