package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/features"
)

// eventRequest names an event by its universal identifier.
type eventRequest struct {
	EventID string `json:"event_id"`
}

type eventTagRequest struct {
	EventID string `json:"event_id"`
	TagID   int64  `json:"tag_id"`
}

type reviewRequest struct {
	EventID string `json:"event_id"`
	Score   int    `json:"score"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// handleEventTags handles GET /api/v1/events/{identifier}/tags
func (s *Server) handleEventTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.features.EventTags(r.Context(), r.PathValue("identifier"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// handleApplyTag handles POST /api/v1/event-tags
func (s *Server) handleApplyTag(w http.ResponseWriter, r *http.Request, _ int64) {
	var req eventTagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	et, created, err := s.features.ApplyTag(r.Context(), req.EventID, req.TagID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeCreated(w, et, created)
}

// handleRemoveTag handles DELETE /api/v1/event-tags/{identifier}/{tagID}
func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request, _ int64) {
	tagID, ok := pathInt64(r, "tagID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tag id", nil)
		return
	}
	if err := s.features.RemoveTag(r.Context(), r.PathValue("identifier"), tagID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReviews handles GET /api/v1/events/{identifier}/reviews
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.features.Reviews(r.Context(), r.PathValue("identifier"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// handleCreateReview handles POST /api/v1/reviews
func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request, uid int64) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	rv, created, err := s.features.CreateReview(r.Context(), uid, req.EventID, features.ReviewInput{
		Score: req.Score,
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeCreated(w, rv, created)
}

// handleDeleteReview handles DELETE /api/v1/reviews/{id}
func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request, uid int64) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := s.features.DeleteReview(r.Context(), uid, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBookmarks handles GET /api/v1/bookmarks
func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request, uid int64) {
	saved, err := s.features.Bookmarks(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type bookmarkCheckResponse struct {
	EventID      string `json:"event_id"`
	IsBookmarked bool   `json:"is_bookmarked"`
}

// handleCheckBookmark handles GET /api/v1/bookmarks/check?event_id=
func (s *Server) handleCheckBookmark(w http.ResponseWriter, r *http.Request, uid int64) {
	raw := r.URL.Query().Get("event_id")
	if raw == "" {
		writeServiceError(w, fmt.Errorf("%w: event_id is required", app.ErrInvalidInput))
		return
	}
	ok, err := s.features.IsBookmarked(r.Context(), uid, raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarkCheckResponse{EventID: raw, IsBookmarked: ok})
}

// handleAddBookmark handles POST /api/v1/bookmarks
func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request, uid int64) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	b, created, err := s.features.AddBookmark(r.Context(), uid, req.EventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeCreated(w, b, created)
}

// handleRemoveBookmark handles DELETE /api/v1/bookmarks/{identifier}
func (s *Server) handleRemoveBookmark(w http.ResponseWriter, r *http.Request, uid int64) {
	if err := s.features.RemoveBookmark(r.Context(), uid, r.PathValue("identifier")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegistrations handles GET /api/v1/registrations
func (s *Server) handleRegistrations(w http.ResponseWriter, r *http.Request, uid int64) {
	regs, err := s.features.Registrations(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// handleRegister handles POST /api/v1/registrations
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, uid int64) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	reg, created, err := s.features.Register(r.Context(), uid, req.EventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeCreated(w, reg, created)
}

// handleUnregister handles DELETE /api/v1/registrations/{identifier}
func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request, uid int64) {
	if err := s.features.Unregister(r.Context(), uid, r.PathValue("identifier")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseLimit parses an optional positive limit parameter.
func parseLimit(r *http.Request) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid limit %q", app.ErrInvalidInput, l)
	}
	return n, nil
}
