package api

import (
	"net/http"

	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/ingest"
)

// syncRequest selects the source to run. An empty source runs all.
type syncRequest struct {
	Source string `json:"source"`
}

type syncResponse struct {
	Runs []ingest.RunResult `json:"runs"`
}

// handleSync handles POST /api/v1/admin/sync. The run happens inline and
// the response carries its reports.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	s.logger.Info("admin sync requested", "source", req.Source, "remote", extractIP(r))
	results, err := s.sync.Trigger(r.Context(), req.Source)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if results == nil {
		results = []ingest.RunResult{}
	}
	writeJSON(w, http.StatusOK, syncResponse{Runs: results})
}

// handleSyncRuns handles GET /api/v1/admin/sync-runs?limit=
func (s *Server) handleSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	runs, err := s.sync.History(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetConfig handles GET /api/v1/admin/config requests.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.GetConfig(r.Context()))
}

// handlePutConfig handles PUT /api/v1/admin/config requests.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req app.ConfigUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := s.cfg.UpdateConfig(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
