package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tonlobby/tonlobby/internal/models"
)

// UpsertPayment inserts the payment or, when the tx_hash is already
// known, updates its status and amount in place. A given transaction
// hash therefore produces at most one row.
func (pg *Postgres) UpsertPayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	q := `
	INSERT INTO payments (id, user_id, type, amount, status, tx_hash, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (tx_hash) DO UPDATE
	SET status = EXCLUDED.status, amount = EXCLUDED.amount, user_id = EXCLUDED.user_id`
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, p.ID, p.UserID, p.Type, p.Amount, p.Status, p.TxHash, p.CreatedAt)
		return err
	})
}

// ListPayments returns the user's payments, newest first. limit <= 0
// means no limit.
func (pg *Postgres) ListPayments(ctx context.Context, userID uuid.UUID, limit int) ([]models.Payment, error) {
	q := `
	SELECT id, user_id, type, amount, status, tx_hash, created_at
	FROM payments
	WHERE user_id = $1
	ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := pg.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Type, &p.Amount, &p.Status, &p.TxHash, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// InsertInvite stores a new invite token.
func (pg *Postgres) InsertInvite(ctx context.Context, inv *models.Invite) error {
	q := `
	INSERT INTO invites (token, lobby_id, created_at, expires_at)
	VALUES ($1, $2, $3, $4)`
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, inv.Token, inv.LobbyID, inv.CreatedAt, inv.ExpiresAt)
		return err
	})
}

func (pg *Postgres) GetInvite(ctx context.Context, token string) (*models.Invite, error) {
	var inv models.Invite
	q := `SELECT token, lobby_id, created_at, expires_at FROM invites WHERE token = $1`
	err := pg.pool.QueryRow(ctx, q, token).Scan(&inv.Token, &inv.LobbyID, &inv.CreatedAt, &inv.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (pg *Postgres) DeleteInvite(ctx context.Context, token string) error {
	_, err := pg.pool.Exec(ctx, `DELETE FROM invites WHERE token = $1`, token)
	return err
}

// DeleteExpiredInvites removes every invite past expiry and returns how
// many were swept.
func (pg *Postgres) DeleteExpiredInvites(ctx context.Context, now time.Time) (int, error) {
	tag, err := pg.pool.Exec(ctx, `DELETE FROM invites WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
