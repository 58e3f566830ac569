package game

import "github.com/omega-realm/bossdrop/internal/models"

// Rand is the uniform source used by the allocator. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Allocate decides which bosses of the catalog drop which token for a new session.
//
// Each boss is rolled independently: a draw in [0,100) at or below its drop chance
// makes it drop. The token is then picked by a second draw in [0,total weight),
// walking tokens in catalog order until the cumulative weight reaches the draw.
// Bosses that do not drop, or drop while no token is weighted, get no row.
func Allocate(rng Rand, sessionHash string, catalog models.Catalog) []models.Drop {
	total := catalog.TotalWeight()
	drops := make([]models.Drop, 0, len(catalog.Bosses))

	for _, boss := range catalog.Bosses {
		if boss.DropChance <= 0 {
			continue
		}
		if rng.Float64()*100 > boss.DropChance {
			continue
		}
		token, ok := pickToken(rng, catalog.Tokens, total)
		if !ok {
			continue
		}
		drops = append(drops, models.Drop{
			SessionHash: sessionHash,
			BossID:      boss.ID,
			Token:       &token,
		})
	}
	return drops
}

func pickToken(rng Rand, tokens []models.Token, total int) (models.Token, bool) {
	if total <= 0 {
		return models.Token{}, false
	}
	draw := rng.Float64() * float64(total)
	cumulative := 0
	for _, token := range tokens {
		if token.Weight <= 0 {
			continue
		}
		cumulative += token.Weight
		if float64(cumulative) >= draw {
			return token, true
		}
	}
	// unreachable for draw < total; keep the last weighted token for float edge cases
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].Weight > 0 {
			return tokens[i], true
		}
	}
	return models.Token{}, false
}

// CarryKills applies the kills already recorded for a session to a fresh
// allocation. A killed boss the allocation has no drop for keeps an empty
// killed drop, the row KillBoss would have left.
func CarryKills(drops []models.Drop, killed []int64) []models.Drop {
	out := append([]models.Drop(nil), drops...)
	seen := make(map[int64]bool, len(killed))
	for _, id := range killed {
		if seen[id] {
			continue
		}
		seen[id] = true
		found := false
		for i := range out {
			if out[i].BossID == id {
				out[i].BossKilled = true
				found = true
			}
		}
		if !found {
			out = append(out, models.Drop{BossID: id, BossKilled: true})
		}
	}
	return out
}
