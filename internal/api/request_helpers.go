package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/onetask/onetask-api/internal/api/middleware"
	"github.com/onetask/onetask-api/internal/api/shared"
)

// getUserIDFromContext extracts the authenticated user ID from the request.
// Writes a 401 response and returns false if it is missing, which indicates
// the auth middleware did not run or failed.
func getUserIDFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	return userID, true
}

// getPathUUID parses a UUID path parameter.
// Writes a 400 response and returns false if the parameter is malformed.
func getPathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+param+" format")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter, returning fallback
// when the parameter is absent or not a valid non-negative integer.
func queryInt(r *http.Request, param string, fallback int) int {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, param string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(param))
	return err == nil && v
}
