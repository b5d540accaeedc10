package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is returned for a malformed source, limit or cursor.
var ErrInvalidQuery = errors.New("invalid query")

// Store names reported in SourceError.
const (
	StoreDocument   = "document"
	StoreRelational = "relational"
)

// SourceError reports a store that could not contribute to a listing.
type SourceError struct {
	Store string
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s store unavailable: %v", e.Store, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
