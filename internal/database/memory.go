package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tonlobby/tonlobby/internal/models"
)

// Memory is an in-process Store. It backs the test suite and the invite
// fallback path; its contents do not survive a restart and are not
// shared across server instances.
type Memory struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*models.User
	lobbies      map[uuid.UUID]*models.Lobby
	participants []*models.Participant
	payments     map[string]*models.Payment // keyed by tx hash
	invites      map[string]*models.Invite
	wallets      []*models.WalletEvent
	activity     []*models.Activity
	tgUpdates    map[int64]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[uuid.UUID]*models.User),
		lobbies:   make(map[uuid.UUID]*models.Lobby),
		payments:  make(map[string]*models.Payment),
		invites:   make(map[string]*models.Invite),
		tgUpdates: make(map[int64]struct{}),
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (m *Memory) EnsureUser(_ context.Context, appID, telegramID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.AppID == appID {
			return copyUser(u), nil
		}
	}
	u := &models.User{
		ID:        uuid.New(),
		AppID:     appID,
		CreatedAt: time.Now().UTC(),
	}
	if telegramID != "" {
		tg := telegramID
		u.TelegramID = &tg
	}
	m.users[u.ID] = u
	return copyUser(u), nil
}

func (m *Memory) GetUserByAppID(_ context.Context, appID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.AppID == appID {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetUserByTelegramID(_ context.Context, telegramID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetUserByWallet(_ context.Context, walletAddress string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.WalletAddress != nil && *u.WalletAddress == walletAddress {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ConnectWallet(_ context.Context, userID uuid.UUID, walletAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	addr := walletAddress
	u.WalletAddress = &addr
	m.wallets = append(m.wallets, &models.WalletEvent{
		ID:            uuid.New(),
		UserID:        userID,
		WalletAddress: walletAddress,
		ConnectedAt:   time.Now().UTC(),
	})
	return nil
}

func (m *Memory) DisconnectWallet(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.WalletAddress = nil
	for i := len(m.wallets) - 1; i >= 0; i-- {
		e := m.wallets[i]
		if e.UserID == userID && e.DisconnectedAt == nil {
			now := time.Now().UTC()
			e.DisconnectedAt = &now
			break
		}
	}
	return nil
}

func (m *Memory) LinkWallet(_ context.Context, userID uuid.UUID, walletAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	m.wallets = append(m.wallets, &models.WalletEvent{
		ID:            uuid.New(),
		UserID:        userID,
		WalletAddress: walletAddress,
		ConnectedAt:   time.Now().UTC(),
	})
	return nil
}

func (m *Memory) WalletHistory(_ context.Context, userID uuid.UUID) ([]models.WalletEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []models.WalletEvent
	for _, e := range m.wallets {
		if e.UserID == userID {
			events = append(events, *e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ConnectedAt.After(events[j].ConnectedAt) })
	return events, nil
}

func (m *Memory) InsertLobby(_ context.Context, lobby *models.Lobby) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lobby.ID == uuid.Nil {
		lobby.ID = uuid.New()
	}
	lobby.CreatedAt = time.Now().UTC()
	c := *lobby
	m.lobbies[lobby.ID] = &c
	return nil
}

func (m *Memory) GetLobby(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *l
	return &c, nil
}

func (m *Memory) ListLobbies(_ context.Context) ([]models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lobbies := make([]models.Lobby, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		lobbies = append(lobbies, *l)
	}
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].CreatedAt.After(lobbies[j].CreatedAt) })
	return lobbies, nil
}

func (m *Memory) FinishLobby(_ context.Context, id, winnerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return ErrNotFound
	}
	w := winnerID
	l.Status = models.StatusFinished
	l.WinnerID = &w
	return nil
}

func (m *Memory) InsertParticipant(_ context.Context, lobbyID, userID uuid.UUID) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &models.Participant{
		ID:       uuid.New(),
		LobbyID:  lobbyID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	}
	m.participants = append(m.participants, p)
	c := *p
	return &c, nil
}

func (m *Memory) CloseParticipant(_ context.Context, lobbyID, userID uuid.UUID, leftAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.LobbyID == lobbyID && p.UserID == userID && p.LeftAt == nil {
			t := leftAt
			p.LeftAt = &t
		}
	}
	return nil
}

func (m *Memory) ActiveParticipants(_ context.Context, lobbyID uuid.UUID) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var parts []models.Participant
	for _, p := range m.participants {
		if p.LobbyID == lobbyID && p.LeftAt == nil {
			parts = append(parts, *p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].JoinedAt.Before(parts[j].JoinedAt) })
	return parts, nil
}

func (m *Memory) CountUserRounds(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	for _, p := range m.participants {
		if p.UserID == userID {
			seen[p.LobbyID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (m *Memory) CountUserWins(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.lobbies {
		if l.WinnerID != nil && *l.WinnerID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpsertPayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.payments[p.TxHash]; ok {
		existing.Status = p.Status
		existing.Amount = p.Amount
		existing.UserID = p.UserID
		return nil
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	c := *p
	m.payments[p.TxHash] = &c
	return nil
}

func (m *Memory) ListPayments(_ context.Context, userID uuid.UUID, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payments []models.Payment
	for _, p := range m.payments {
		if p.UserID != nil && *p.UserID == userID {
			payments = append(payments, *p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.After(payments[j].CreatedAt) })
	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

func (m *Memory) InsertInvite(_ context.Context, inv *models.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *inv
	m.invites[inv.Token] = &c
	return nil
}

func (m *Memory) GetInvite(_ context.Context, token string) (*models.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[token]
	if !ok {
		return nil, ErrNotFound
	}
	c := *inv
	return &c, nil
}

func (m *Memory) DeleteInvite(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, token)
	return nil
}

func (m *Memory) DeleteExpiredInvites(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, inv := range m.invites {
		if !inv.ExpiresAt.After(now) {
			delete(m.invites, token)
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertActivity(_ context.Context, userID uuid.UUID, action string, extra map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, &models.Activity{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Extra:     extra,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *Memory) ListActivity(_ context.Context, userID uuid.UUID, limit int) ([]models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var acts []models.Activity
	for _, a := range m.activity {
		if a.UserID == userID {
			acts = append(acts, *a)
		}
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].CreatedAt.After(acts[j].CreatedAt) })
	if limit > 0 && len(acts) > limit {
		acts = acts[:limit]
	}
	return acts, nil
}

func (m *Memory) MarkUpdateSeen(_ context.Context, updateID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tgUpdates[updateID]; ok {
		return false, nil
	}
	m.tgUpdates[updateID] = struct{}{}
	return true, nil
}
