package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/catalog"
	"github.com/graaaaa/eventhub/internal/event"
)

// handleEvents handles GET /api/v1/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventsQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := s.events.List(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseEventsQuery parses query parameters into a catalog.Query.
func parseEventsQuery(r *http.Request) (catalog.Query, error) {
	var q catalog.Query
	v := r.URL.Query()

	if c := v.Get("category"); c != "" {
		if !event.IsCategory(c) {
			return q, fmt.Errorf("%w: unknown category %q", app.ErrInvalidInput, c)
		}
		q.Category = c
	}

	q.Search = v.Get("q")

	if src := v.Get("source"); src != "" {
		origin, err := event.ParseOrigin(src)
		if err != nil {
			return q, fmt.Errorf("%w: source must be official or community", app.ErrInvalidInput)
		}
		q.Source = origin
	}

	if l := v.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 || limit > catalog.MaxLimit {
			return q, fmt.Errorf("%w: limit must be between 1 and %d", app.ErrInvalidInput, catalog.MaxLimit)
		}
		q.Limit = limit
	}

	q.Cursor = v.Get("cursor")
	return q, nil
}

// officialEventsResponse lists raw document-store events.
type officialEventsResponse struct {
	Items []event.OfficialEvent `json:"items"`
	Total int                   `json:"total"`
}

// handleOfficialEvents handles GET /api/v1/official-events
func (s *Server) handleOfficialEvents(w http.ResponseWriter, r *http.Request) {
	items, err := s.events.ListOfficial(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "document store unavailable", err)
		return
	}
	if items == nil {
		items = []event.OfficialEvent{}
	}
	writeJSON(w, http.StatusOK, officialEventsResponse{Items: items, Total: len(items)})
}
