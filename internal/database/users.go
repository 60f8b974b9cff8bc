package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tonlobby/tonlobby/internal/models"
)

const userCols = `id, app_id, telegram_id, wallet_address, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.AppID, &u.TelegramID, &u.WalletAddress, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser returns the user for appID, inserting a fresh row when none
// exists yet.
func (pg *Postgres) EnsureUser(ctx context.Context, appID, telegramID string) (*models.User, error) {
	u, err := pg.GetUserByAppID(ctx, appID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}
	var tg *string
	if telegramID != "" {
		tg = &telegramID
	}

	q := `
	INSERT INTO users (id, app_id, telegram_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (app_id) DO UPDATE SET app_id = EXCLUDED.app_id
	RETURNING ` + userCols
	return scanUser(pg.pool.QueryRow(ctx, q, id, appID, tg))
}

func (pg *Postgres) GetUserByAppID(ctx context.Context, appID string) (*models.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE app_id = $1`
	return scanUser(pg.pool.QueryRow(ctx, q, appID))
}

func (pg *Postgres) GetUserByTelegramID(ctx context.Context, telegramID string) (*models.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE telegram_id = $1`
	return scanUser(pg.pool.QueryRow(ctx, q, telegramID))
}

func (pg *Postgres) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE wallet_address = $1`
	return scanUser(pg.pool.QueryRow(ctx, q, walletAddress))
}

// ConnectWallet makes walletAddress the user's active address and opens a
// wallet_history row.
func (pg *Postgres) ConnectWallet(ctx context.Context, userID uuid.UUID, walletAddress string) error {
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE users SET wallet_address = $1 WHERE id = $2`, walletAddress, userID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO wallet_history (id, user_id, wallet_address, connected_at) VALUES ($1, $2, $3, now())`,
			uuid.New(), userID, walletAddress)
		return err
	})
}

// DisconnectWallet clears the active address and closes the latest open
// wallet_history row, if any.
func (pg *Postgres) DisconnectWallet(ctx context.Context, userID uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE users SET wallet_address = NULL WHERE id = $1`, userID)
		if err != nil {
			return err
		}
		q := `
		UPDATE wallet_history SET disconnected_at = now()
		WHERE id = (
			SELECT id FROM wallet_history
			WHERE user_id = $1 AND disconnected_at IS NULL
			ORDER BY connected_at DESC
			LIMIT 1
		)`
		_, err = tx.Exec(ctx, q, userID)
		return err
	})
}

// LinkWallet records a wallet_history row without changing the active
// address.
func (pg *Postgres) LinkWallet(ctx context.Context, userID uuid.UUID, walletAddress string) error {
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO wallet_history (id, user_id, wallet_address, connected_at) VALUES ($1, $2, $3, now())`,
			uuid.New(), userID, walletAddress)
		return err
	})
}

func (pg *Postgres) WalletHistory(ctx context.Context, userID uuid.UUID) ([]models.WalletEvent, error) {
	q := `
	SELECT id, user_id, wallet_address, connected_at, disconnected_at
	FROM wallet_history
	WHERE user_id = $1
	ORDER BY connected_at DESC`
	rows, err := pg.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.WalletEvent
	for rows.Next() {
		var e models.WalletEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.WalletAddress, &e.ConnectedAt, &e.DisconnectedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertActivity appends a user_activity row.
func (pg *Postgres) InsertActivity(ctx context.Context, userID uuid.UUID, action string, extra map[string]any) error {
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_activity (id, user_id, action, extra_data) VALUES ($1, $2, $3, $4)`,
			uuid.New(), userID, action, extra)
		return err
	})
}

func (pg *Postgres) ListActivity(ctx context.Context, userID uuid.UUID, limit int) ([]models.Activity, error) {
	q := `
	SELECT id, user_id, action, extra_data, created_at
	FROM user_activity
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2`
	rows, err := pg.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.Extra, &a.CreatedAt); err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

// MarkUpdateSeen inserts the Telegram update id, reporting false when it
// was already recorded.
func (pg *Postgres) MarkUpdateSeen(ctx context.Context, updateID int64) (bool, error) {
	tag, err := pg.pool.Exec(ctx,
		`INSERT INTO tg_updates (update_id, seen_at) VALUES ($1, $2) ON CONFLICT (update_id) DO NOTHING`,
		updateID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
