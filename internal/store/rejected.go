package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// InsertRejectedRecord keeps a scraped record the pipeline refused.
// Returns true if the record was inserted, false if it was already kept.
// Uses ON CONFLICT(dedupe_key) DO NOTHING for deduplication.
func (s *Store) InsertRejectedRecord(ctx context.Context, source, rawJSON, reason string) (inserted bool, err error) {
	if rawJSON == "" {
		return false, fmt.Errorf("raw_json is required")
	}

	const query = `
	INSERT INTO rejected_records (ts, source, raw_json, reason, dedupe_key)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(dedupe_key) DO NOTHING
	`

	dedupeKey := sha256Hex(source + "\x00" + rawJSON)

	result, err := s.db.ExecContext(ctx, query, s.timestamp(), source, rawJSON, reason, dedupeKey)
	if err != nil {
		return false, fmt.Errorf("insert rejected record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountRejectedRecords returns the number of kept rejected records.
func (s *Store) CountRejectedRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rejected_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rejected records: %w", err)
	}
	return n, nil
}

// sha256Hex returns the SHA256 hash of the input string as a hex string.
func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
