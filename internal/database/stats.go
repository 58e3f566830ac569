package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/omega-realm/bossdrop/internal/models"
)

// PlayerStats aggregates the player's ended games and killed bosses
func (s *Store) PlayerStats(ctx context.Context, address string) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{Address: address}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(s.score), 0), COALESCE(SUM(s.score), 0),
			COALESCE(SUM(s.shots_fired), 0), COALESCE(SUM(s.mobs_killed), 0)
		FROM game_sessions s
		JOIN players p ON p.id = s.player_id
		WHERE p.address = $1 AND s.status = $2
	`, address, models.StatusEnded).Scan(
		&stats.GamesPlayed,
		&stats.BestScore,
		&stats.TotalScore,
		&stats.ShotsFired,
		&stats.MobsKilled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT s.favourite_weapon
		FROM game_sessions s
		JOIN players p ON p.id = s.player_id
		WHERE p.address = $1 AND s.status = $2 AND s.favourite_weapon IS NOT NULL
		GROUP BY s.favourite_weapon
		ORDER BY COUNT(*) DESC, s.favourite_weapon
		LIMIT 1
	`, address, models.StatusEnded).Scan(&stats.FavouriteWeapon)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find favourite weapon: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE d.boss_killed),
			COUNT(*) FILTER (WHERE d.boss_killed AND d.token_id IS NOT NULL AND s.status IN ($2, $3)),
			COUNT(*) FILTER (WHERE d.boss_killed AND d.token_id IS NOT NULL AND s.status IN ($2, $3) AND d.transferred_at IS NOT NULL)
		FROM drops d
		JOIN game_sessions s ON s.id = d.session_id
		JOIN players p ON p.id = s.player_id
		WHERE p.address = $1
	`, address, models.StatusEnded, models.StatusAbandoned).Scan(
		&stats.BossesKilled,
		&stats.TokensEarned,
		&stats.TokensTransferred,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate drops: %w", err)
	}
	return stats, nil
}
