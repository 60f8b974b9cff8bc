// Package lobby implements the lobby lifecycle: creation, seat-filling,
// leaving, and winner selection. All state lives in the Store; the
// service only adds validation and a per-lobby serialization point so
// the seat capacity invariant holds under concurrent joins.
package lobby

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tonlobby/tonlobby/internal/database"
	"github.com/tonlobby/tonlobby/internal/models"
)

// Seat bounds accepted by Create.
const (
	MinSeats = 2
	MaxSeats = 100
)

// Service validates and applies lobby operations and computes the
// client-facing snapshot after every mutation.
type Service struct {
	store  database.Store
	logger *logrus.Logger

	// locks serializes join/leave/finish per lobby id. Entries are never
	// pruned; the map grows with the number of distinct lobbies touched
	// by this process.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService builds a Service on the given store.
func NewService(store database.Store, logger *logrus.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// HashPassword returns the hex SHA-256 of a lobby join password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// lockLobby acquires the per-lobby mutex and returns its unlock func.
func (s *Service) lockLobby(id uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	AppID     string
	Seats     int
	StakeTon  float64
	IsPrivate bool
	Password  string
}

// Create validates the params, resolves the acting user, inserts the
// lobby with status waiting and poolTon = seats*stakeTon, and enrolls
// the creator as the first participant.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.LobbyView, error) {
	if p.AppID == "" || p.Seats < MinSeats || p.Seats > MaxSeats || p.StakeTon < 0 {
		return nil, ErrValidation
	}

	user, err := s.store.EnsureUser(ctx, p.AppID, "")
	if err != nil {
		s.logger.WithError(err).WithField("appId", p.AppID).Warn("user resolution failed")
		return nil, ErrUserResolution
	}

	l := &models.Lobby{
		CreatedBy: user.ID,
		IsPrivate: p.IsPrivate,
		Status:    models.StatusWaiting,
		Seats:     p.Seats,
		StakeTon:  p.StakeTon,
		PoolTon:   float64(p.Seats) * p.StakeTon,
	}
	if p.IsPrivate && p.Password != "" {
		hash := HashPassword(p.Password)
		l.PasswordHash = &hash
	}

	if err := s.store.InsertLobby(ctx, l); err != nil {
		return nil, err
	}
	if _, err := s.store.InsertParticipant(ctx, l.ID, user.ID); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"lobby": l.ID,
		"seats": l.Seats,
		"stake": l.StakeTon,
	}).Info("lobby created")

	return s.snapshot(ctx, l)
}

// Join adds the user to the lobby. Already being an active participant
// is a no-op; a wrong password on a private lobby, a non-waiting status,
// or a full lobby fail with their respective codes. Joins on the same
// lobby are serialized so the participant count never exceeds seats.
func (s *Service) Join(ctx context.Context, lobbyID uuid.UUID, appID, password string) (*models.LobbyView, error) {
	if appID == "" {
		return nil, ErrValidation
	}
	user, err := s.store.EnsureUser(ctx, appID, "")
	if err != nil {
		return nil, ErrUserResolution
	}

	unlock := s.lockLobby(lobbyID)
	defer unlock()

	l, err := s.store.GetLobby(ctx, lobbyID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrLobbyNotFound
		}
		return nil, err
	}

	if l.IsPrivate {
		if l.PasswordHash == nil || password == "" || HashPassword(password) != *l.PasswordHash {
			return nil, ErrInvalidPassword
		}
	}
	if l.Status != models.StatusWaiting {
		return nil, ErrNotOpen
	}

	active, err := s.store.ActiveParticipants(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	for _, p := range active {
		if p.UserID == user.ID {
			// Idempotent rejoin.
			return models.Snapshot(l, active), nil
		}
	}
	if len(active) >= l.Seats {
		return nil, ErrFull
	}

	if _, err := s.store.InsertParticipant(ctx, lobbyID, user.ID); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"lobby": lobbyID, "user": user.ID}).Info("participant joined")

	return s.snapshot(ctx, l)
}

// Leave closes the user's active participation row. Leaving a lobby the
// user is not in is a silent no-op; the snapshot is returned either way.
func (s *Service) Leave(ctx context.Context, lobbyID uuid.UUID, appID string) (*models.LobbyView, error) {
	if appID == "" {
		return nil, ErrValidation
	}
	user, err := s.store.EnsureUser(ctx, appID, "")
	if err != nil {
		return nil, ErrUserResolution
	}

	unlock := s.lockLobby(lobbyID)
	defer unlock()

	if err := s.store.CloseParticipant(ctx, lobbyID, user.ID, time.Now().UTC()); err != nil {
		return nil, err
	}

	l, err := s.store.GetLobby(ctx, lobbyID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrLobbyNotFound
		}
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"lobby": lobbyID, "user": user.ID}).Info("participant left")

	return s.snapshot(ctx, l)
}

// Finish draws a uniform-random winner among the active participants,
// records it, and moves the lobby to FINISHED. Only the creator may
// finish, and only once.
func (s *Service) Finish(ctx context.Context, lobbyID uuid.UUID, appID string) (*models.LobbyView, error) {
	if appID == "" {
		return nil, ErrValidation
	}
	user, err := s.store.EnsureUser(ctx, appID, "")
	if err != nil {
		return nil, ErrUserResolution
	}

	unlock := s.lockLobby(lobbyID)
	defer unlock()

	l, err := s.store.GetLobby(ctx, lobbyID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrLobbyNotFound
		}
		return nil, err
	}
	if l.CreatedBy != user.ID {
		return nil, ErrNotCreator
	}
	if l.Status == models.StatusFinished {
		return nil, ErrNotOpen
	}

	active, err := s.store.ActiveParticipants(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	winner, err := PickWinner(active)
	if err != nil {
		return nil, err
	}

	if err := s.store.FinishLobby(ctx, lobbyID, winner); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"lobby": lobbyID, "winner": winner}).Info("lobby finished")

	l, err = s.store.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, l)
}

// PickWinner draws uniformly among the active participants.
func PickWinner(active []models.Participant) (uuid.UUID, error) {
	if len(active) == 0 {
		return uuid.Nil, ErrNoParticipants
	}
	return active[rand.IntN(len(active))].UserID, nil
}

// Get returns the current snapshot of one lobby.
func (s *Service) Get(ctx context.Context, lobbyID uuid.UUID) (*models.LobbyView, error) {
	l, err := s.store.GetLobby(ctx, lobbyID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrLobbyNotFound
		}
		return nil, err
	}
	return s.snapshot(ctx, l)
}

// ListPublic returns snapshots of every non-private lobby.
func (s *Service) ListPublic(ctx context.Context) ([]*models.LobbyView, error) {
	lobbies, err := s.store.ListLobbies(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*models.LobbyView, 0, len(lobbies))
	for i := range lobbies {
		l := &lobbies[i]
		if l.IsPrivate {
			continue
		}
		v, err := s.snapshot(ctx, l)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// snapshot re-queries the participant list after a write rather than
// deriving it in memory, to tolerate concurrent writers.
func (s *Service) snapshot(ctx context.Context, l *models.Lobby) (*models.LobbyView, error) {
	active, err := s.store.ActiveParticipants(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	return models.Snapshot(l, active), nil
}
