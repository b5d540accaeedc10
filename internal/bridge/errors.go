package bridge

import (
	"errors"
	"fmt"

	"github.com/graaaaa/eventhub/internal/event"
)

// ErrEventNotFound is wrapped by ResolutionError when a community identifier
// names no event.
var ErrEventNotFound = errors.New("event not found")

// Store names used in ResolutionError.
const (
	StoreDocument   = "document"
	StoreRelational = "relational"
)

// ResolutionError reports an identifier that could not be materialized.
type ResolutionError struct {
	Identifier event.Identifier
	Store      string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s in %s store: %v", e.Identifier, e.Store, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
