package api

import (
	"net/http"
)

// handleStats handles GET /api/v1/stats requests.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result, err := s.stats.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "statistics unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
