package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/bridge"
	"github.com/graaaaa/eventhub/internal/catalog"
	"github.com/graaaaa/eventhub/internal/docstore"
	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/features"
	"github.com/graaaaa/eventhub/internal/ingest"
	"github.com/graaaaa/eventhub/internal/store"
)

// maxBodyBytes limits request bodies.
const maxBodyBytes = 1 << 20

// errorResponse is the standard error response format.
type errorResponse struct {
	Error string `json:"error"`
}

// createdResponse wraps the result of an idempotent create.
// Status is "created" for a new row and "exists" for a duplicate.
type createdResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// writeJSON encodes v as JSON and writes it to the response.
// It buffers the encoding to detect errors before writing headers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
		writeErrorFallback(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// writeCreated answers an idempotent create: 201 for a new row, 200 with
// status "exists" for a duplicate.
func writeCreated(w http.ResponseWriter, v any, created bool) {
	if created {
		writeJSON(w, http.StatusCreated, createdResponse{Status: "created", Data: v})
		return
	}
	writeJSON(w, http.StatusOK, createdResponse{Status: "exists", Data: v})
}

// writeError writes a JSON error response with consistent format.
// For 5xx errors, the underlying error is logged for debugging.
// The public message is what clients see; use generic messages for 5xx.
func writeError(w http.ResponseWriter, status int, public string, err error) {
	if public == "" {
		public = http.StatusText(status)
	}
	if status >= 500 && err != nil {
		slog.Error("internal error", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: public})
}

// writeServiceError maps a domain error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	status, public := classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, public, err)
}

func classify(err error) (int, string) {
	var resErr *bridge.ResolutionError
	switch {
	case errors.Is(err, bridge.ErrEventNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &resErr):
		// Anything but a missing event is a store failure the client may retry.
		return http.StatusServiceUnavailable, fmt.Sprintf("%s store unavailable resolving %s", resErr.Store, resErr.Identifier)
	case errors.Is(err, event.ErrInvalidIdentifier),
		errors.Is(err, features.ErrInvalidInput),
		errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidEvent),
		errors.Is(err, store.ErrInvalidCursor),
		errors.Is(err, catalog.ErrInvalidQuery),
		errors.Is(err, docstore.ErrInvalidID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrNotOwner):
		return http.StatusForbidden, "not the owner of this resource"
	case errors.Is(err, store.ErrMissingReference):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "already exists"
	case errors.Is(err, ingest.ErrSyncInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ingest.ErrUnknownSource):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// decodeJSON strictly decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", app.ErrInvalidInput)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after body", app.ErrInvalidInput)
	}
	return nil
}

// writeErrorFallback writes a plain text error when JSON encoding fails.
// This is a last-resort fallback to avoid infinite recursion.
func writeErrorFallback(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
