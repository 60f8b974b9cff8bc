package handlers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tonlobby/tonlobby/internal/database"
)

type upsertUserRequest struct {
	AppID         string `json:"appId"`
	TelegramID    string `json:"telegramId"`
	WalletAddress string `json:"walletAddress"`
	Action        string `json:"action"` // connect | disconnect | ""
}

type activityRequest struct {
	AppID     string         `json:"appId"`
	Action    string         `json:"action"`
	ExtraData map[string]any `json:"extra_data"`
}

type walletRequest struct {
	AppID         string `json:"appId"`
	WalletAddress string `json:"walletAddress"`
}

// UpsertUser gets or creates a user by appId and optionally connects or
// disconnects the active wallet.
func (s *Server) UpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AppID == "" {
		writeError(w, http.StatusBadRequest, "appId required")
		return
	}
	user, err := s.Store.EnsureUser(r.Context(), req.AppID, req.TelegramID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upsert user")
		return
	}
	switch {
	case req.Action == "connect" && req.WalletAddress != "":
		if err := s.Store.ConnectWallet(r.Context(), user.ID, req.WalletAddress); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	case req.Action == "disconnect":
		if err := s.Store.DisconnectWallet(r.Context(), user.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.recordActivity(r.Context(), user.ID, "user:upsert", map[string]any{"action": req.Action})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GetUser returns a single user by appId.
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.Store.GetUserByAppID(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// round4 keeps client-facing TON totals at 4 decimal places.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// UserStats aggregates rounds played, win rate and confirmed-payment
// totals for one user.
func (s *Server) UserStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := s.Store.GetUserByAppID(ctx, chi.URLParam(r, "appID"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	totalRounds, err := s.Store.CountUserRounds(ctx, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	wins, err := s.Store.CountUserWins(ctx, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	winRate := 0.0
	if totalRounds > 0 {
		winRate = math.Round(float64(wins)/float64(totalRounds)*1000) / 10
	}

	payments, err := s.Store.ListPayments(ctx, user.ID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var winnings, last24h float64
	since := time.Now().Add(-24 * time.Hour)
	for _, p := range payments {
		if p.Status != "confirmed" {
			continue
		}
		delta := -p.Amount
		if p.Type == "withdraw" {
			delta = p.Amount
		}
		winnings += delta
		if p.CreatedAt.After(since) {
			last24h += delta
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalRounds": totalRounds,
		"winRate":     winRate,
		"winnings":    round4(winnings),
		"last24h":     round4(last24h),
	})
}

// UserHistory returns the last payments and activity rows for one user.
// An unknown appId yields empty lists, not a 404.
func (s *Server) UserHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := s.Store.GetUserByAppID(ctx, chi.URLParam(r, "appID"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"payments": []any{}, "activity": []any{}})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payments, err := s.Store.ListPayments(ctx, user.ID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	activity, err := s.Store.ListActivity(ctx, user.ID, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"activity": activity,
	})
}

// PostActivity appends a client-reported activity row.
func (s *Server) PostActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AppID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "appId and action required")
		return
	}
	user, err := s.Store.EnsureUser(r.Context(), req.AppID, "")
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	s.recordActivity(r.Context(), user.ID, req.Action, req.ExtraData)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// LinkWallet records a wallet in the user's history without making it
// the active address.
func (s *Server) LinkWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AppID == "" || len(req.WalletAddress) < 4 {
		writeError(w, http.StatusBadRequest, "appId and walletAddress required")
		return
	}
	user, err := s.Store.GetUserByAppID(r.Context(), req.AppID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.Store.LinkWallet(r.Context(), user.ID, req.WalletAddress); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.recordActivity(r.Context(), user.ID, "wallet:link", map[string]any{"walletAddress": req.WalletAddress})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ActivateWallet makes a wallet the user's active address.
func (s *Server) ActivateWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AppID == "" || len(req.WalletAddress) < 4 {
		writeError(w, http.StatusBadRequest, "appId and walletAddress required")
		return
	}
	user, err := s.Store.GetUserByAppID(r.Context(), req.AppID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.Store.ConnectWallet(r.Context(), user.ID, req.WalletAddress); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.recordActivity(r.Context(), user.ID, "wallet:activate", map[string]any{"walletAddress": req.WalletAddress})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ListWallets returns the active address and the connection history for
// the user named by ?appId=. Unknown users get an empty list.
func (s *Server) ListWallets(w http.ResponseWriter, r *http.Request) {
	user, err := s.Store.GetUserByAppID(r.Context(), r.URL.Query().Get("appId"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	history, err := s.Store.WalletHistory(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var active any
	if user.WalletAddress != nil {
		active = *user.WalletAddress
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active": active,
		"items":  history,
	})
}
