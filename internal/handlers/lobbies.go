package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tonlobby/tonlobby/internal/lobby"
)

type createLobbyRequest struct {
	AppID     string  `json:"appId"`
	Seats     int     `json:"seats"`
	StakeTon  float64 `json:"stakeTon"`
	IsPrivate bool    `json:"isPrivate"`
	Password  string  `json:"password"`
}

type joinLobbyRequest struct {
	AppID    string `json:"appId"`
	Password string `json:"password"`
}

type leaveLobbyRequest struct {
	AppID string `json:"appId"`
}

// lobbyID parses the path id, reporting false after writing a 404 when
// it is not a UUID.
func lobbyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Lobby not found")
		return uuid.Nil, false
	}
	return id, true
}

// ListPublicLobbies returns snapshots of every non-private lobby.
func (s *Server) ListPublicLobbies(w http.ResponseWriter, r *http.Request) {
	views, err := s.Lobbies.ListPublic(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetLobby returns one lobby's snapshot.
func (s *Server) GetLobby(w http.ResponseWriter, r *http.Request) {
	id, ok := lobbyID(w, r)
	if !ok {
		return
	}
	view, err := s.Lobbies.Get(r.Context(), id)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateLobby creates a lobby and auto-enrolls the creator.
func (s *Server) CreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.Lobbies.Create(r.Context(), lobby.CreateParams{
		AppID:     req.AppID,
		Seats:     req.Seats,
		StakeTon:  req.StakeTon,
		IsPrivate: req.IsPrivate,
		Password:  req.Password,
	})
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	if user, uerr := s.Store.GetUserByAppID(r.Context(), req.AppID); uerr == nil {
		s.recordActivity(r.Context(), user.ID, "lobby:create", map[string]any{"lobbyId": view.ID})
	}
	writeJSON(w, http.StatusOK, view)
}

// JoinLobby adds the caller to a lobby and notifies its channel.
func (s *Server) JoinLobby(w http.ResponseWriter, r *http.Request) {
	id, ok := lobbyID(w, r)
	if !ok {
		return
	}
	var req joinLobbyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.Lobbies.Join(r.Context(), id, req.AppID, req.Password)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	if user, uerr := s.Store.GetUserByAppID(r.Context(), req.AppID); uerr == nil {
		s.Hub.BroadcastLobby(view.ID, "participant:join", map[string]any{"userId": user.ID.String()})
		s.recordActivity(r.Context(), user.ID, "lobby:join", map[string]any{"lobbyId": view.ID})
	}
	writeJSON(w, http.StatusOK, view)
}

// LeaveLobby closes the caller's participation and notifies the channel.
func (s *Server) LeaveLobby(w http.ResponseWriter, r *http.Request) {
	id, ok := lobbyID(w, r)
	if !ok {
		return
	}
	var req leaveLobbyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.Lobbies.Leave(r.Context(), id, req.AppID)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	if user, uerr := s.Store.GetUserByAppID(r.Context(), req.AppID); uerr == nil {
		s.Hub.BroadcastLobby(view.ID, "participant:leave", map[string]any{"userId": user.ID.String()})
	}
	writeJSON(w, http.StatusOK, view)
}

// FinishLobby draws the winner and moves the lobby to FINISHED. Creator
// only.
func (s *Server) FinishLobby(w http.ResponseWriter, r *http.Request) {
	id, ok := lobbyID(w, r)
	if !ok {
		return
	}
	var req leaveLobbyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.Lobbies.Finish(r.Context(), id, req.AppID)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	s.Hub.BroadcastLobby(view.ID, "countdown:update", map[string]any{"seconds": 0})
	writeJSON(w, http.StatusOK, view)
}
