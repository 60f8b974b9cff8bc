package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tonlobby/tonlobby/internal/invites"
)

type createInviteRequest struct {
	LobbyID string `json:"lobbyId"`
}

// CreateInvite mints a short-lived invite token for a lobby.
func (s *Server) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.LobbyID == "" {
		writeError(w, http.StatusBadRequest, "lobbyId required")
		return
	}
	token, err := s.Invites.Create(r.Context(), req.LobbyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

// ResolveInvite exchanges a token for its lobby id. Expired tokens are
// reported once as 410 and removed.
func (s *Server) ResolveInvite(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := s.Invites.Resolve(r.Context(), chi.URLParam(r, "token"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lobbyId": lobbyID})
	case errors.Is(err, invites.ErrExpired):
		writeJSON(w, http.StatusGone, map[string]any{"ok": false, "error": "EXPIRED"})
	case errors.Is(err, invites.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "NOT_FOUND"})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
