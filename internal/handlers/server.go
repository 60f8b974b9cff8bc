// Package handlers wires the HTTP surface: lobby lifecycle, users and
// wallets, invites, stats, and the websocket endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tonlobby/tonlobby/internal/cache"
	"github.com/tonlobby/tonlobby/internal/config"
	"github.com/tonlobby/tonlobby/internal/database"
	"github.com/tonlobby/tonlobby/internal/invites"
	"github.com/tonlobby/tonlobby/internal/lobby"
	"github.com/tonlobby/tonlobby/internal/middleware"
	"github.com/tonlobby/tonlobby/internal/telegram"
	"github.com/tonlobby/tonlobby/internal/ws"
)

// Server bundles the services behind the HTTP surface.
type Server struct {
	Store   database.Store
	Lobbies *lobby.Service
	Invites *invites.Service
	Hub     *ws.Hub
	Queue   *cache.Queue
	Logger  *logrus.Logger
}

// NewServer builds a Server over the given store. Queue may be nil.
func NewServer(store database.Store, hub *ws.Hub, queue *cache.Queue, logger *logrus.Logger) *Server {
	return &Server{
		Store:   store,
		Lobbies: lobby.NewService(store, logger),
		Invites: invites.NewService(store, logger),
		Hub:     hub,
		Queue:   queue,
		Logger:  logger,
	}
}

// Routes assembles the router: REST under /api, the Telegram webhook,
// and the two websocket namespaces. The websocket routes stay outside
// the logging middleware so the upgrade can hijack the connection.
func (s *Server) Routes(cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Backend works"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.LogMiddleware(s.Logger))

		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":    "ok",
				"message":   "Backend running",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})
		r.Get("/tg/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"enabled": cfg.TgBotToken != ""})
		})

		r.Post("/users/upsert", s.UpsertUser)
		r.Get("/users/{appID}", s.GetUser)
		r.Get("/users/{appID}/stats", s.UserStats)
		r.Get("/users/{appID}/history", s.UserHistory)
		r.Post("/activity", s.PostActivity)

		r.Get("/lobbies/public", s.ListPublicLobbies)
		r.Post("/lobbies/create", s.CreateLobby)
		r.Get("/lobbies/{id}", s.GetLobby)
		r.Post("/lobbies/{id}/join", s.JoinLobby)
		r.Post("/lobbies/{id}/leave", s.LeaveLobby)
		r.Post("/lobbies/{id}/finish", s.FinishLobby)

		r.Post("/wallets/link", s.LinkWallet)
		r.Post("/wallets/activate", s.ActivateWallet)
		r.Get("/wallets", s.ListWallets)

		r.Post("/invites/create", s.CreateInvite)
		r.Get("/invites/{token}", s.ResolveInvite)
	})

	r.Method(http.MethodPost, "/tg/webhook",
		telegram.NewWebhookHandler(s.Store, cfg.TgWebhookSecret, s.Logger))

	r.Get("/ws/lobbies/{lobbyID}", ws.LobbyHandler(s.Hub, s.Logger, cfg.WSAllowedOrigins))
	r.Get("/ws/user/{userID}", ws.UserHandler(s.Hub, s.Logger, cfg.WSAllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})

	return r
}

// recordActivity appends an activity row and mirrors it onto the Redis
// queue. Failures are logged, never surfaced to the caller.
func (s *Server) recordActivity(ctx context.Context, userID uuid.UUID, action string, extra map[string]any) {
	if err := s.Store.InsertActivity(ctx, userID, action, extra); err != nil {
		s.Logger.WithError(err).Warn("activity write failed")
	}
	if err := s.Queue.Publish(ctx, cache.ActivityRecord{
		UserID: userID.String(),
		Action: action,
		Extra:  extra,
	}); err != nil {
		s.Logger.WithError(err).Warn("activity queue publish failed")
	}
}
