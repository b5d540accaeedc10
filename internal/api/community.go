package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/event"
	"github.com/graaaaa/eventhub/internal/store"
)

// communityRequest is the body of community event create and update.
type communityRequest struct {
	VenueID       int64     `json:"venue_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	ImageURL      *string   `json:"image_url,omitempty"`
	Location      *string   `json:"location,omitempty"`
}

func (req communityRequest) toEvent(id, uid int64) event.CommunityEvent {
	return event.CommunityEvent{
		ID:          id,
		UserID:      uid,
		VenueID:     req.VenueID,
		Title:       req.Title,
		Description: req.Description,
		Start:       req.StartDatetime,
		End:         req.EndDatetime,
		ImageURL:    req.ImageURL,
		Location:    req.Location,
	}
}

// communityListResponse is one page of community events.
type communityListResponse struct {
	Items      []event.CommunityEvent `json:"items"`
	NextCursor *string                `json:"next_cursor,omitempty"`
}

// handleListCommunity handles GET /api/v1/community-events?mine=&limit=&cursor=
func (s *Server) handleListCommunity(w http.ResponseWriter, r *http.Request) {
	var f store.CommunityFilter
	v := r.URL.Query()

	if v.Get("mine") == "true" {
		uid, ok := userID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+HeaderUserID, nil)
			return
		}
		f.UserID = &uid
	}
	if l := v.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 {
			writeServiceError(w, fmt.Errorf("%w: invalid limit %q", app.ErrInvalidInput, l))
			return
		}
		f.Limit = limit
	}
	if c := v.Get("cursor"); c != "" {
		f.Cursor = &c
	}

	page, err := s.community.Query(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, communityListResponse{Items: page.Items, NextCursor: page.NextCursor})
}

// handleCreateCommunity handles POST /api/v1/community-events
func (s *Server) handleCreateCommunity(w http.ResponseWriter, r *http.Request, uid int64) {
	var req communityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	e := req.toEvent(0, uid)
	if err := s.community.Create(r.Context(), &e); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleGetCommunity handles GET /api/v1/community-events/{id}
func (s *Server) handleGetCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id", nil)
		return
	}
	e, err := s.community.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleUpdateCommunity handles PUT /api/v1/community-events/{id}
func (s *Server) handleUpdateCommunity(w http.ResponseWriter, r *http.Request, uid int64) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req communityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	e := req.toEvent(id, uid)
	if err := s.community.Update(r.Context(), &e); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteCommunity handles DELETE /api/v1/community-events/{id}
func (s *Server) handleDeleteCommunity(w http.ResponseWriter, r *http.Request, uid int64) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := s.community.Delete(r.Context(), id, uid); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListVenues handles GET /api/v1/venues
func (s *Server) handleListVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := s.community.ListVenues(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

// handleCreateVenue handles POST /api/v1/venues
func (s *Server) handleCreateVenue(w http.ResponseWriter, r *http.Request, _ int64) {
	var v event.Venue
	if err := decodeJSON(w, r, &v); err != nil {
		writeServiceError(w, err)
		return
	}
	v.ID = 0
	if err := s.community.CreateVenue(r.Context(), &v); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleListTags handles GET /api/v1/tags
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.community.ListTags(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

type tagRequest struct {
	Name string `json:"tag_name"`
}

// handleCreateTag handles POST /api/v1/tags
func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request, _ int64) {
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	tag, created, err := s.community.CreateTag(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeCreated(w, tag, created)
}
