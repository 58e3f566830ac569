package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

const dropColumns = `
	SELECT d.id, d.session_id, s.hash, d.boss_id, d.boss_killed, d.transferred_at,
		t.id, t.name, t.weight, t.token_id
	FROM drops d
	JOIN game_sessions s ON s.id = d.session_id
	LEFT JOIN tokens t ON t.id = d.token_id
`

func scanDrop(row scanner) (*models.Drop, error) {
	var (
		drop        models.Drop
		transferred sql.NullTime
		tokenID     sql.NullInt64
		tokenName   sql.NullString
		tokenWeight sql.NullInt64
		externalID  sql.NullInt64
	)
	err := row.Scan(
		&drop.ID,
		&drop.SessionID,
		&drop.SessionHash,
		&drop.BossID,
		&drop.BossKilled,
		&transferred,
		&tokenID,
		&tokenName,
		&tokenWeight,
		&externalID,
	)
	if err != nil {
		return nil, err
	}
	drop.TransferredAt = timePtr(transferred)
	if tokenID.Valid {
		drop.Token = &models.Token{
			ID:         tokenID.Int64,
			Name:       tokenName.String,
			Weight:     int(tokenWeight.Int64),
			ExternalID: externalID.Int64,
		}
	}
	return &drop, nil
}

func (s *Store) queryDrops(ctx context.Context, query string, args ...any) ([]models.Drop, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drops: %w", err)
	}
	defer rows.Close()

	var drops []models.Drop
	for rows.Next() {
		drop, err := scanDrop(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drop: %w", err)
		}
		drops = append(drops, *drop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drops: %w", err)
	}
	return drops, nil
}

func insertDrops(ctx context.Context, tx *sql.Tx, sessionID int64, drops []models.Drop) error {
	for i := range drops {
		var tokenID sql.NullInt64
		if drops[i].Token != nil {
			tokenID = sql.NullInt64{Int64: drops[i].Token.ID, Valid: true}
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO drops (session_id, boss_id, token_id, boss_killed)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, sessionID, drops[i].BossID, tokenID, drops[i].BossKilled).Scan(&drops[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert drop: %w", err)
		}
		drops[i].SessionID = sessionID
	}
	return nil
}

// SessionDrops lists the drops of one session
func (s *Store) SessionDrops(ctx context.Context, hash string) ([]models.Drop, error) {
	return s.queryDrops(ctx, dropColumns+` WHERE s.hash = $1 ORDER BY d.boss_id`, hash)
}

// PlayerDrops lists every drop of the player's sessions, newest session first
func (s *Store) PlayerDrops(ctx context.Context, address string) ([]models.Drop, error) {
	return s.queryDrops(ctx, dropColumns+`
		JOIN players p ON p.id = s.player_id
		WHERE p.address = $1
		ORDER BY s.created_at DESC, d.boss_id
	`, address)
}

// EligibleDrops lists killed, unsettled drops carrying a token from the player's finished sessions
func (s *Store) EligibleDrops(ctx context.Context, address string) ([]models.Drop, error) {
	return s.queryDrops(ctx, dropColumns+`
		JOIN players p ON p.id = s.player_id
		WHERE p.address = $1
			AND s.status IN ($2, $3)
			AND d.boss_killed
			AND d.token_id IS NOT NULL
			AND d.transferred_at IS NULL
		ORDER BY d.id
	`, address, models.StatusEnded, models.StatusAbandoned)
}

// MarkTransferred stamps the whole batch or nothing
func (s *Store) MarkTransferred(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.withTx(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE drops SET transferred_at = $1
			WHERE id = ANY($2) AND transferred_at IS NULL
		`, at, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("failed to mark drops transferred: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count transferred drops: %w", err)
		}
		if n != int64(len(ids)) {
			return game.StateConflict("only %d of %d drops are still untransferred", n, len(ids))
		}
		return nil
	})
}
