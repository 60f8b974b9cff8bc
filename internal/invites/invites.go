// Package invites mints and resolves short-lived lobby join tokens.
//
// Tokens live in the store; when the store is unavailable (not
// configured, or a write fails) the service falls back to an
// in-process map with identical semantics. The fallback is not shared
// across server instances and is lost on restart.
package invites

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tonlobby/tonlobby/internal/database"
	"github.com/tonlobby/tonlobby/internal/models"
)

const (
	// TokenLength is the invite token size in characters.
	TokenLength = 24
	// Lifetime is how long a token resolves after creation.
	Lifetime = time.Hour
	// SweepInterval is the cadence of the expired-token GC.
	SweepInterval = 10 * time.Minute
)

var (
	// ErrNotFound means the token does not exist (or was swept).
	ErrNotFound = errors.New("invites: not found")
	// ErrExpired means the token exists but is past its expiry.
	ErrExpired = errors.New("invites: expired")
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewToken returns a random opaque token.
func NewToken() (string, error) {
	buf := make([]byte, TokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate invite token: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Service is the invite lifecycle: create, resolve, sweep.
type Service struct {
	store    database.Store
	fallback *database.Memory
	logger   *logrus.Logger
}

// NewService builds a Service. store may be nil, in which case every
// invite lives in the fallback map.
func NewService(store database.Store, logger *logrus.Logger) *Service {
	return &Service{
		store:    store,
		fallback: database.NewMemory(),
		logger:   logger,
	}
}

// Create mints a token for the lobby with a fixed one-hour lifetime.
func (s *Service) Create(ctx context.Context, lobbyID string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	inv := &models.Invite{
		Token:     token,
		LobbyID:   lobbyID,
		CreatedAt: now,
		ExpiresAt: now.Add(Lifetime),
	}

	if s.store != nil {
		err := s.store.InsertInvite(ctx, inv)
		if err == nil {
			return token, nil
		}
		s.logger.WithError(err).Warn("invite store write failed, using in-process fallback")
	}
	if err := s.fallback.InsertInvite(ctx, inv); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the lobby id for a live token. Expired tokens are
// deleted on read and reported as ErrExpired; unknown (or already swept)
// tokens as ErrNotFound.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	inv, err := s.lookup(ctx, token)
	if err != nil {
		return "", err
	}
	if !time.Now().Before(inv.ExpiresAt) {
		s.delete(ctx, token)
		return "", ErrExpired
	}
	return inv.LobbyID, nil
}

func (s *Service) lookup(ctx context.Context, token string) (*models.Invite, error) {
	if s.store != nil {
		inv, err := s.store.GetInvite(ctx, token)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.WithError(err).Warn("invite store read failed, trying fallback")
		}
	}
	inv, err := s.fallback.GetInvite(ctx, token)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return inv, err
}

func (s *Service) delete(ctx context.Context, token string) {
	if s.store != nil {
		if err := s.store.DeleteInvite(ctx, token); err != nil {
			s.logger.WithError(err).Warn("invite delete failed")
		}
	}
	_ = s.fallback.DeleteInvite(ctx, token)
}

// Sweep garbage-collects every token past expiry, in the store and the
// fallback. Errors are logged; the next sweep runs regardless.
func (s *Service) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	total := 0
	if s.store != nil {
		n, err := s.store.DeleteExpiredInvites(ctx, now)
		if err != nil {
			s.logger.WithError(err).Warn("invite sweep failed")
		} else {
			total += n
		}
	}
	n, _ := s.fallback.DeleteExpiredInvites(ctx, now)
	total += n
	if total > 0 {
		s.logger.WithField("count", total).Info("expired invites swept")
	}
}
