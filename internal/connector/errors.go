package connector

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for connectors.
var (
	// ErrUnknownType is returned by New for an unsupported connector type.
	ErrUnknownType = errors.New("unknown connector type")

	// ErrUnknownPreset is returned for an HTML preset that does not exist.
	ErrUnknownPreset = errors.New("unknown html preset")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	// RetryAfter is the wait the server asked for, or 0.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
