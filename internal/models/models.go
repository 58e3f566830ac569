package models

import (
	"math"
	"time"
)

// Player represents a wallet-backed player identity
type Player struct {
	ID           int64     `json:"id"`
	Address      string    `json:"address"`
	PublicKey    string    `json:"public_key"`
	Payload      string    `json:"payload"`
	Signature    string    `json:"-"`
	SuccessSign  bool      `json:"success_sign"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Boss represents a catalog boss and the chance (0-100) that it drops something
type Boss struct {
	ID         int64   `json:"id"`
	Level      int     `json:"level"`
	DropChance float64 `json:"drop_chance"`
}

// Token represents a catalog token with its relative drop weight
type Token struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Weight     int    `json:"weight"`
	ExternalID int64  `json:"token_id"`
}

// Catalog is a consistent snapshot of the boss and token catalogs
type Catalog struct {
	Bosses []Boss  `json:"bosses"`
	Tokens []Token `json:"tokens"`
}

// TotalWeight sums the positive token weights of the catalog
func (c Catalog) TotalWeight() int {
	total := 0
	for _, t := range c.Tokens {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	return total
}

// DropChance returns the token's share of the catalog weight as a percentage,
// rounded to two decimals. Tokens that are not weighted return 0.
func (c Catalog) DropChance(token Token) float64 {
	total := c.TotalWeight()
	if total == 0 || token.Weight <= 0 {
		return 0
	}
	chance := float64(token.Weight) * 100 / float64(total)
	return math.Round(chance*100) / 100
}

// Telemetry is the end-of-game report submitted by the client
type Telemetry struct {
	Score           int64  `json:"score"`
	FavouriteWeapon string `json:"favourite_weapon"`
	ShotsFired      int64  `json:"shots_fired"`
	MobsKilled      int64  `json:"mobs_killed"`
}

// Session represents one play-through
type Session struct {
	ID             int64      `json:"-"`
	Hash           string     `json:"hash"`
	PlayerAddress  *string    `json:"player,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	PauseStartedAt *time.Time `json:"pause_started_at,omitempty"`
	PausedSeconds  int64      `json:"paused_seconds"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Telemetry      *Telemetry `json:"telemetry,omitempty"`
}

// OwnedBy reports whether the session belongs to the given player address
func (s *Session) OwnedBy(address string) bool {
	return s.PlayerAddress != nil && *s.PlayerAddress == address
}

// Drop links a session boss to the token it dropped
type Drop struct {
	ID            int64      `json:"id"`
	SessionID     int64      `json:"-"`
	SessionHash   string     `json:"session"`
	BossID        int64      `json:"boss_id"`
	Token         *Token     `json:"token"`
	BossKilled    bool       `json:"boss_killed"`
	TransferredAt *time.Time `json:"transfer_date"`
}

// Transferred reports whether the drop has been settled on chain
func (d Drop) Transferred() bool {
	return d.TransferredAt != nil
}

// PlayerStats aggregates a player's finished games
type PlayerStats struct {
	Address           string `json:"address"`
	GamesPlayed       int64  `json:"games_played"`
	BestScore         int64  `json:"best_score"`
	TotalScore        int64  `json:"total_score"`
	ShotsFired        int64  `json:"shots_fired"`
	MobsKilled        int64  `json:"mobs_killed"`
	BossesKilled      int64  `json:"bosses_killed"`
	TokensEarned      int64  `json:"tokens_earned"`
	TokensTransferred int64  `json:"tokens_transferred"`
	FavouriteWeapon   string `json:"favourite_weapon"`
}
