// Package database fronts the relational store behind a narrow,
// strongly-typed interface so the lobby state machine and the periodic
// jobs can run against an in-memory fake in tests.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tonlobby/tonlobby/internal/models"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("database: not found")

// Store is the single source of truth. Implementations: Postgres (pgx)
// and Memory (per-process fake, also used as the invite fallback).
type Store interface {
	// Users. EnsureUser lazily creates the row on first reference.
	EnsureUser(ctx context.Context, appID, telegramID string) (*models.User, error)
	GetUserByAppID(ctx context.Context, appID string) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID string) (*models.User, error)
	GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error)

	// Wallets. ConnectWallet sets the active address and opens a history
	// row; DisconnectWallet clears it and closes the open row; LinkWallet
	// records history only.
	ConnectWallet(ctx context.Context, userID uuid.UUID, walletAddress string) error
	DisconnectWallet(ctx context.Context, userID uuid.UUID) error
	LinkWallet(ctx context.Context, userID uuid.UUID, walletAddress string) error
	WalletHistory(ctx context.Context, userID uuid.UUID) ([]models.WalletEvent, error)

	// Lobbies.
	InsertLobby(ctx context.Context, lobby *models.Lobby) error
	GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	ListLobbies(ctx context.Context) ([]models.Lobby, error)
	FinishLobby(ctx context.Context, id, winnerID uuid.UUID) error

	// Participants. CloseParticipant is filtered on (lobby, user,
	// left_at IS NULL) and is a no-op when no active row exists.
	InsertParticipant(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Participant, error)
	CloseParticipant(ctx context.Context, lobbyID, userID uuid.UUID, leftAt time.Time) error
	ActiveParticipants(ctx context.Context, lobbyID uuid.UUID) ([]models.Participant, error)
	CountUserRounds(ctx context.Context, userID uuid.UUID) (int, error)
	CountUserWins(ctx context.Context, userID uuid.UUID) (int, error)

	// Payments. UpsertPayment is keyed by tx_hash: re-observing a
	// transaction updates status/amount rather than duplicating.
	UpsertPayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, userID uuid.UUID, limit int) ([]models.Payment, error)

	// Invites.
	InsertInvite(ctx context.Context, inv *models.Invite) error
	GetInvite(ctx context.Context, token string) (*models.Invite, error)
	DeleteInvite(ctx context.Context, token string) error
	DeleteExpiredInvites(ctx context.Context, now time.Time) (int, error)

	// Activity.
	InsertActivity(ctx context.Context, userID uuid.UUID, action string, extra map[string]any) error
	ListActivity(ctx context.Context, userID uuid.UUID, limit int) ([]models.Activity, error)

	// MarkUpdateSeen records a Telegram update id and reports whether it
	// was seen for the first time.
	MarkUpdateSeen(ctx context.Context, updateID int64) (bool, error)
}
