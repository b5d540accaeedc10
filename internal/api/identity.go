package api

import (
	"net/http"
	"strconv"
)

// HeaderUserID carries the authenticated caller's id. An upstream
// authentication layer sets it; this server trusts it as given.
const HeaderUserID = "X-User-ID"

// userID returns the caller id from HeaderUserID.
func userID(r *http.Request) (int64, bool) {
	raw := r.Header.Get(HeaderUserID)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// withUser adapts a handler that needs a caller id. Requests without a
// valid HeaderUserID get 401.
func withUser(h func(w http.ResponseWriter, r *http.Request, uid int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+HeaderUserID, nil)
			return
		}
		h(w, r, uid)
	}
}

// pathInt64 parses a positive integer path value.
func pathInt64(r *http.Request, name string) (int64, bool) {
	n, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
