package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tonlobby/tonlobby/internal/models"
)

const lobbyCols = `id, created_by, is_private, password_hash, status, seats, stake_ton, pool_ton, winner_id, created_at`

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	err := row.Scan(
		&l.ID, &l.CreatedBy, &l.IsPrivate, &l.PasswordHash, &l.Status,
		&l.Seats, &l.StakeTon, &l.PoolTon, &l.WinnerID, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertLobby creates a new lobby row and fills in server-generated
// fields on the passed struct.
func (pg *Postgres) InsertLobby(ctx context.Context, lobby *models.Lobby) error {
	if lobby.ID == uuid.Nil {
		lobby.ID = uuid.New()
	}
	lobby.CreatedAt = time.Now().UTC()

	q := `
	INSERT INTO lobbies (id, created_by, is_private, password_hash, status, seats, stake_ton, pool_ton, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			lobby.ID, lobby.CreatedBy, lobby.IsPrivate, lobby.PasswordHash,
			lobby.Status, lobby.Seats, lobby.StakeTon, lobby.PoolTon, lobby.CreatedAt,
		)
		return err
	})
}

func (pg *Postgres) GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	q := `SELECT ` + lobbyCols + ` FROM lobbies WHERE id = $1`
	return scanLobby(pg.pool.QueryRow(ctx, q, id))
}

func (pg *Postgres) ListLobbies(ctx context.Context) ([]models.Lobby, error) {
	q := `SELECT ` + lobbyCols + ` FROM lobbies ORDER BY created_at DESC`
	rows, err := pg.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []models.Lobby
	for rows.Next() {
		var l models.Lobby
		err := rows.Scan(
			&l.ID, &l.CreatedBy, &l.IsPrivate, &l.PasswordHash, &l.Status,
			&l.Seats, &l.StakeTon, &l.PoolTon, &l.WinnerID, &l.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, l)
	}
	return lobbies, rows.Err()
}

// FinishLobby records the winner and moves the lobby to its terminal
// status.
func (pg *Postgres) FinishLobby(ctx context.Context, id, winnerID uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE lobbies SET status = $1, winner_id = $2 WHERE id = $3`,
			models.StatusFinished, winnerID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// InsertParticipant opens an active participation row.
func (pg *Postgres) InsertParticipant(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Participant, error) {
	p := &models.Participant{
		ID:       uuid.New(),
		LobbyID:  lobbyID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	}
	q := `
	INSERT INTO lobby_participants (id, lobby_id, user_id, joined_at)
	VALUES ($1, $2, $3, $4)`
	err := pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, p.ID, p.LobbyID, p.UserID, p.JoinedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CloseParticipant soft-deletes the user's active row. No-op when the
// user has no active row in the lobby.
func (pg *Postgres) CloseParticipant(ctx context.Context, lobbyID, userID uuid.UUID, leftAt time.Time) error {
	q := `
	UPDATE lobby_participants SET left_at = $1
	WHERE lobby_id = $2 AND user_id = $3 AND left_at IS NULL`
	return pgx.BeginTxFunc(ctx, pg.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, leftAt, lobbyID, userID)
		return err
	})
}

func (pg *Postgres) ActiveParticipants(ctx context.Context, lobbyID uuid.UUID) ([]models.Participant, error) {
	q := `
	SELECT id, lobby_id, user_id, joined_at, left_at
	FROM lobby_participants
	WHERE lobby_id = $1 AND left_at IS NULL
	ORDER BY joined_at`
	rows, err := pg.pool.Query(ctx, q, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.LobbyID, &p.UserID, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// CountUserRounds counts distinct lobbies the user has ever joined.
func (pg *Postgres) CountUserRounds(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	q := `SELECT count(DISTINCT lobby_id) FROM lobby_participants WHERE user_id = $1`
	if err := pg.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (pg *Postgres) CountUserWins(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	q := `SELECT count(*) FROM lobbies WHERE winner_id = $1`
	if err := pg.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
