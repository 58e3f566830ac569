package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/redis"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Leaderboard reads the best-score ranking
type Leaderboard interface {
	TopPlayers(ctx context.Context, limit int64) ([]redis.LeaderboardEntry, error)
	PlayerRank(ctx context.Context, address string) (*redis.LeaderboardEntry, error)
}

type LeaderboardHandler struct {
	board  Leaderboard
	logger *zap.Logger
}

func NewLeaderboardHandler(board Leaderboard, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, logger: componentLogger(logger, "leaderboard")}
}

// GetLeaderboard handles GET /api/leaderboard?limit=
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	limit := int64(defaultLeaderboardLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := h.board.TopPlayers(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []redis.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetRank handles GET /api/leaderboard/rank for the authenticated player
func (h *LeaderboardHandler) GetRank(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}
	entry, err := h.board.PlayerRank(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
