// Package models holds the persisted row types and the client-facing
// snapshot shapes shared by the HTTP and websocket surfaces.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Persisted lobby status values. The client-facing view maps these to
// OPEN/RUNNING/FINISHED, see LobbyStatus.
const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusFinished = "finished"
)

// User is a row in the users table. Identity is a client-supplied opaque
// appId; it is not verified.
type User struct {
	ID            uuid.UUID  `json:"id"`
	AppID         string     `json:"appId"`
	TelegramID    *string    `json:"telegramId,omitempty"`
	WalletAddress *string    `json:"walletAddress,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Lobby is a row in the lobbies table.
type Lobby struct {
	ID           uuid.UUID  `json:"id"`
	CreatedBy    uuid.UUID  `json:"createdBy"`
	IsPrivate    bool       `json:"isPrivate"`
	PasswordHash *string    `json:"-"`
	Status       string     `json:"status"`
	Seats        int        `json:"seats"`
	StakeTon     float64    `json:"stakeTon"`
	PoolTon      float64    `json:"poolTon"`
	WinnerID     *uuid.UUID `json:"winnerId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Participant is a row in the lobby_participants table. A user is active
// in a lobby while LeftAt is nil; leaving closes the row, it is never
// hard-deleted.
type Participant struct {
	ID       uuid.UUID  `json:"id"`
	LobbyID  uuid.UUID  `json:"lobbyId"`
	UserID   uuid.UUID  `json:"userId"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
}

// Invite is a short-lived join token for a lobby.
type Invite struct {
	Token     string    `json:"token"`
	LobbyID   string    `json:"lobbyId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Payment is a row in the payments table, keyed by TxHash for idempotent
// upserts. UserID is nil for deposits that matched no known wallet.
type Payment struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Type      string     `json:"type"`   // deposit | withdraw
	Amount    float64    `json:"amount"` // TON
	Status    string     `json:"status"` // pending | confirmed | failed
	TxHash    string     `json:"txHash"`
	CreatedAt time.Time  `json:"createdAt"`
}

// WalletEvent is a row in wallet_history. At most one row per user has a
// nil DisconnectedAt.
type WalletEvent struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"userId"`
	WalletAddress  string     `json:"walletAddress"`
	ConnectedAt    time.Time  `json:"connectedAt"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
}

// Activity is a row in user_activity.
type Activity struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"userId"`
	Action    string         `json:"action"`
	Extra     map[string]any `json:"extraData,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LobbyStatus maps a persisted status string to the three-state view the
// clients consume.
func LobbyStatus(db string) string {
	switch db {
	case StatusWaiting:
		return "OPEN"
	case StatusActive:
		return "RUNNING"
	default:
		return "FINISHED"
	}
}

// ParticipantView is one entry in a lobby snapshot's participant list.
type ParticipantView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// LobbyView is the full client-facing lobby snapshot returned by every
// lobby mutation and lookup.
type LobbyView struct {
	ID           string            `json:"id"`
	Tier         string            `json:"tier"`
	Seats        int               `json:"seats"`
	StakeTon     float64           `json:"stakeTon"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	CreatorID    string            `json:"creatorId"`
	Participants []ParticipantView `json:"participants"`
	PoolTon      float64           `json:"poolTon"`
	IsPrivate    bool              `json:"isPrivate"`
	WinnerID     string            `json:"winnerId,omitempty"`
}

// Snapshot builds the client view of a lobby plus its active participants.
func Snapshot(l *Lobby, active []Participant) *LobbyView {
	views := make([]ParticipantView, 0, len(active))
	for _, p := range active {
		views = append(views, ParticipantView{
			ID:       p.UserID.String(),
			Name:     p.UserID.String(),
			JoinedAt: p.JoinedAt,
		})
	}
	v := &LobbyView{
		ID:           l.ID.String(),
		Tier:         "Easy",
		Seats:        l.Seats,
		StakeTon:     l.StakeTon,
		Status:       LobbyStatus(l.Status),
		CreatedAt:    l.CreatedAt,
		CreatorID:    l.CreatedBy.String(),
		Participants: views,
		PoolTon:      l.PoolTon,
		IsPrivate:    l.IsPrivate,
	}
	if l.WinnerID != nil {
		v.WinnerID = l.WinnerID.String()
	}
	return v
}
