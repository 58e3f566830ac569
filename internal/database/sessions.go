package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

const sessionColumns = `
	SELECT s.id, s.hash, p.address, s.status, s.created_at, s.pause_started_at,
		s.paused_seconds, s.expires_at, s.score, s.favourite_weapon, s.shots_fired, s.mobs_killed
	FROM game_sessions s
	LEFT JOIN players p ON p.id = s.player_id
`

func scanSession(row scanner) (*models.Session, error) {
	var (
		sess       models.Session
		address    sql.NullString
		pauseStart sql.NullTime
		score      sql.NullInt64
		weapon     sql.NullString
		shots      sql.NullInt64
		mobs       sql.NullInt64
	)
	err := row.Scan(
		&sess.ID,
		&sess.Hash,
		&address,
		&sess.Status,
		&sess.CreatedAt,
		&pauseStart,
		&sess.PausedSeconds,
		&sess.ExpiresAt,
		&score,
		&weapon,
		&shots,
		&mobs,
	)
	if err != nil {
		return nil, err
	}
	if address.Valid {
		sess.PlayerAddress = &address.String
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.PauseStartedAt = timePtr(pauseStart)
	if score.Valid {
		sess.Telemetry = &models.Telemetry{
			Score:           score.Int64,
			FavouriteWeapon: weapon.String,
			ShotsFired:      shots.Int64,
			MobsKilled:      mobs.Int64,
		}
	}
	return &sess, nil
}

func querySessions(ctx context.Context, q queryer, query string, args ...any) ([]models.Session, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// lockSession reads a session row and holds its lock until the transaction ends
func lockSession(ctx context.Context, tx *sql.Tx, hash string) (*models.Session, error) {
	sess, err := scanSession(tx.QueryRowContext(ctx, sessionColumns+` WHERE s.hash = $1 FOR UPDATE OF s`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.NotFound("session %s not found", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	return sess, nil
}

func playerID(ctx context.Context, tx *sql.Tx, address string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM players WHERE address = $1`, address).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, game.NotFound("player %s not found", address)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch player: %w", err)
	}
	return id, nil
}

// StartSession abandons the player's live sessions and inserts the new one with its drops
func (s *Store) StartSession(ctx context.Context, sess *models.Session, drops []models.Drop) ([]string, error) {
	if sess.PlayerAddress == nil {
		return nil, game.InvalidArgument("session has no player")
	}
	var abandoned []string
	err := s.db.withTx(ctx, nil, func(tx *sql.Tx) error {
		pid, err := playerID(ctx, tx, *sess.PlayerAddress)
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			UPDATE game_sessions
			SET status = $2, pause_started_at = NULL
			WHERE player_id = $1 AND status IN ($3, $4)
			RETURNING hash
		`, pid, models.StatusAbandoned, models.StatusCreated, models.StatusPaused)
		if err != nil {
			return fmt.Errorf("failed to abandon live sessions: %w", err)
		}
		for rows.Next() {
			var hash string
			if err := rows.Scan(&hash); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan abandoned session: %w", err)
			}
			abandoned = append(abandoned, hash)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to abandon live sessions: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO game_sessions (hash, player_id, status, created_at, paused_seconds, expires_at)
			VALUES ($1, $2, $3, $4, 0, $5)
			RETURNING id
		`, sess.Hash, pid, sess.Status, sess.CreatedAt, sess.ExpiresAt).Scan(&sess.ID)
		if isUniqueViolation(err, liveSessionIndex) {
			return game.ErrMultiplicityConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		return insertDrops(ctx, tx, sess.ID, drops)
	})
	if err != nil {
		return nil, err
	}
	return abandoned, nil
}

// LiveSessions lists the player's created or paused sessions, oldest first
func (s *Store) LiveSessions(ctx context.Context, address string) ([]models.Session, error) {
	return querySessions(ctx, s.db, sessionColumns+`
		WHERE p.address = $1 AND s.status IN ($2, $3)
		ORDER BY s.created_at, s.hash
	`, address, models.StatusCreated, models.StatusPaused)
}

// CollapseLiveSessions deletes every other live session of the player and replaces keep's drops
func (s *Store) CollapseLiveSessions(ctx context.Context, address, keep string, drops []models.Drop) ([]models.Drop, error) {
	var stored []models.Drop
	err := s.db.withTx(ctx, nil, func(tx *sql.Tx) error {
		kept, err := lockSession(ctx, tx, keep)
		if err != nil {
			return err
		}
		pid, err := playerID(ctx, tx, address)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM game_sessions
			WHERE player_id = $1 AND status IN ($2, $3) AND id <> $4
		`, pid, models.StatusCreated, models.StatusPaused, kept.ID)
		if err != nil {
			return fmt.Errorf("failed to delete duplicate sessions: %w", err)
		}

		killed, err := killedBosses(ctx, tx, kept.ID)
		if err != nil {
			return err
		}
		stored = game.CarryKills(drops, killed)
		for i := range stored {
			stored[i].SessionHash = keep
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM drops WHERE session_id = $1`, kept.ID); err != nil {
			return fmt.Errorf("failed to clear drops: %w", err)
		}
		return insertDrops(ctx, tx, kept.ID, stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func killedBosses(ctx context.Context, tx *sql.Tx, sessionID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT boss_id FROM drops WHERE session_id = $1 AND boss_killed ORDER BY boss_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list killed bosses: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan killed boss: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Session fetches a session by hash
func (s *Store) Session(ctx context.Context, hash string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionColumns+` WHERE s.hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.NotFound("session %s not found", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	return sess, nil
}

// UpdateSession locks the session, applies fn and writes the mutable columns back
func (s *Store) UpdateSession(ctx context.Context, hash string, fn func(*models.Session) error) (*models.Session, error) {
	var updated *models.Session
	err := s.db.withTx(ctx, nil, func(tx *sql.Tx) error {
		sess, err := lockSession(ctx, tx, hash)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			if errors.Is(err, game.ErrUnchanged) {
				updated = sess
				return nil
			}
			return err
		}

		var score, shots, mobs sql.NullInt64
		var weapon sql.NullString
		if t := sess.Telemetry; t != nil {
			score = sql.NullInt64{Int64: t.Score, Valid: true}
			weapon = sql.NullString{String: t.FavouriteWeapon, Valid: true}
			shots = sql.NullInt64{Int64: t.ShotsFired, Valid: true}
			mobs = sql.NullInt64{Int64: t.MobsKilled, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE game_sessions
			SET status = $2, pause_started_at = $3, paused_seconds = $4, expires_at = $5,
				score = $6, favourite_weapon = $7, shots_fired = $8, mobs_killed = $9
			WHERE id = $1
		`, sess.ID, sess.Status, nullTimeOf(sess.PauseStartedAt), sess.PausedSeconds, sess.ExpiresAt,
			score, weapon, shots, mobs)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		updated = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// KillBoss marks the (session, boss) drop as killed, creating an empty drop when missing
func (s *Store) KillBoss(ctx context.Context, hash string, bossID int64, check func(*models.Session) error) (*models.Drop, error) {
	var drop *models.Drop
	err := s.db.withTx(ctx, nil, func(tx *sql.Tx) error {
		sess, err := lockSession(ctx, tx, hash)
		if err != nil {
			return err
		}
		if err := check(sess); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bosses WHERE id = $1)`, bossID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check boss: %w", err)
		}
		if !exists {
			return game.NotFound("boss %d not found", bossID)
		}

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO drops (session_id, boss_id, boss_killed)
			VALUES ($1, $2, TRUE)
			ON CONFLICT (session_id, boss_id) DO UPDATE SET boss_killed = TRUE
			RETURNING id
		`, sess.ID, bossID).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to record boss kill: %w", err)
		}

		drop, err = scanDrop(tx.QueryRowContext(ctx, dropColumns+` WHERE d.id = $1`, id))
		if err != nil {
			return fmt.Errorf("failed to fetch drop: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drop, nil
}

// ExpiringSessions lists every live session with its persisted fire time
func (s *Store) ExpiringSessions(ctx context.Context) ([]models.Session, error) {
	return querySessions(ctx, s.db, sessionColumns+`
		WHERE s.status IN ($1, $2)
		ORDER BY s.expires_at
	`, models.StatusCreated, models.StatusPaused)
}
