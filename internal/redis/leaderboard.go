package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/omega-realm/bossdrop/internal/game"
)

// LeaderboardEntry represents a player's position and stats on the leaderboard
type LeaderboardEntry struct {
	Address     string `json:"address"`
	BestScore   int64  `json:"best_score"`
	GamesPlayed int64  `json:"games_played"`
	Rank        int64  `json:"rank"`
}

// recordScoreScript keeps the best score per player and counts finished games
var recordScoreScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[2])
redis.call('ZINCRBY', KEYS[2], 1, ARGV[2])
if (not current) or tonumber(ARGV[1]) > tonumber(current) then
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

func (c *Client) scoresKey() string { return c.key("leaderboard", "best_score") }
func (c *Client) gamesKey() string  { return c.key("leaderboard", "games") }

// RecordScore stores the score of a finished game, keeping the player's best
func (c *Client) RecordScore(ctx context.Context, address string, score int64) error {
	keys := []string{c.scoresKey(), c.gamesKey()}
	if err := recordScoreScript.Run(ctx, c, keys, score, address).Err(); err != nil {
		return fmt.Errorf("failed to record score: %w", err)
	}
	return nil
}

// TopPlayers returns the top N players by best score
func (c *Client) TopPlayers(ctx context.Context, limit int64) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		return []LeaderboardEntry{}, nil
	}
	players, err := c.ZRevRangeWithScores(ctx, c.scoresKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get top players: %w", err)
	}
	if len(players) == 0 {
		return []LeaderboardEntry{}, nil
	}

	// Fetch game counts in one round trip
	pipe := c.Pipeline()
	counts := make([]*redis.FloatCmd, len(players))
	for i, p := range players {
		counts[i] = pipe.ZScore(ctx, c.gamesKey(), p.Member.(string))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get game counts: %w", err)
	}

	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = LeaderboardEntry{
			Address:     p.Member.(string),
			BestScore:   int64(p.Score),
			GamesPlayed: int64(counts[i].Val()),
			Rank:        int64(i) + 1,
		}
	}
	return entries, nil
}

// PlayerRank returns the leaderboard position of a player (1-based)
func (c *Client) PlayerRank(ctx context.Context, address string) (*LeaderboardEntry, error) {
	score, err := c.ZScore(ctx, c.scoresKey(), address).Result()
	if errors.Is(err, redis.Nil) {
		return nil, game.NotFound("player %s has no ranked games", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player score: %w", err)
	}

	// ZRevRank returns 0-based rank, so add 1 for 1-based ranking
	rank, err := c.ZRevRank(ctx, c.scoresKey(), address).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get player rank: %w", err)
	}
	games, err := c.ZScore(ctx, c.gamesKey(), address).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get player games: %w", err)
	}

	return &LeaderboardEntry{
		Address:     address,
		BestScore:   int64(score),
		GamesPlayed: int64(games),
		Rank:        rank + 1,
	}, nil
}

// LeaderboardSize returns the number of ranked players
func (c *Client) LeaderboardSize(ctx context.Context) (int64, error) {
	count, err := c.ZCard(ctx, c.scoresKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get leaderboard size: %w", err)
	}
	return count, nil
}
