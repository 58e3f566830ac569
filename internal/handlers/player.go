package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/models"
)

// PlayerQueries answers read-only questions about a player
type PlayerQueries interface {
	PlayerStats(ctx context.Context, address string) (*models.PlayerStats, error)
	ActiveSession(ctx context.Context, address string) (*models.Session, error)
}

type PlayerHandler struct {
	players PlayerQueries
	logger  *zap.Logger
}

func NewPlayerHandler(players PlayerQueries, logger *zap.Logger) *PlayerHandler {
	return &PlayerHandler{players: players, logger: componentLogger(logger, "player")}
}

// ActiveResponse reports the player's live session, if any
type ActiveResponse struct {
	HasActive bool            `json:"has_active"`
	Session   *models.Session `json:"session,omitempty"`
}

// Stats handles GET /api/player/stats
func (h *PlayerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}
	stats, err := h.players.PlayerStats(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HasActive handles GET /api/player/games/has-active
func (h *PlayerHandler) HasActive(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}
	sess, err := h.players.ActiveSession(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ActiveResponse{HasActive: sess != nil, Session: sess})
}
