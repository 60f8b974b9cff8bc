package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tonlobby/tonlobby/internal/lobby"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// decodeJSON reads the request body into dst, reporting false after
// writing a 400 when the body is malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeLobbyError maps a lobby operation failure to its HTTP status and
// stable code. Unknown errors surface as a generic 500.
func writeLobbyError(w http.ResponseWriter, err error) {
	var lerr *lobby.Error
	if !errors.As(err, &lerr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch lerr {
	case lobby.ErrValidation, lobby.ErrNotOpen, lobby.ErrNoParticipants:
		status = http.StatusBadRequest
	case lobby.ErrInvalidPassword, lobby.ErrNotCreator:
		status = http.StatusForbidden
	case lobby.ErrLobbyNotFound, lobby.ErrUserResolution:
		status = http.StatusNotFound
	case lobby.ErrFull:
		status = http.StatusConflict
	}
	writeError(w, status, lerr.Code)
}
