package ingest

import "errors"

var (
	// ErrInvalidRecord marks a record the pipeline refuses to store.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrSyncInProgress is returned when a run is requested while another is active.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrUnknownSource is returned for a connector name the runner does not have.
	ErrUnknownSource = errors.New("unknown source")
)
