package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

// GameService is the session lifecycle used by the game endpoints
type GameService interface {
	Start(ctx context.Context, address string) (*game.StartResult, error)
	Pause(ctx context.Context, address, hash string) (*models.Session, error)
	Unpause(ctx context.Context, address, hash string) (*models.Session, error)
	End(ctx context.Context, address, hash string, telemetry models.Telemetry) (*models.Session, error)
	KillBoss(ctx context.Context, address, hash string, bossID int64) (*models.Drop, error)
}

type GameHandler struct {
	service GameService
	logger  *zap.Logger
}

func NewGameHandler(service GameService, logger *zap.Logger) *GameHandler {
	return &GameHandler{service: service, logger: componentLogger(logger, "game")}
}

// SessionRequest names the session a call applies to
type SessionRequest struct {
	Hash string `json:"hash"`
}

// EndRequest is the end-of-game report
type EndRequest struct {
	Hash string `json:"hash"`
	models.Telemetry
}

// KillBossRequest names the defeated boss
type KillBossRequest struct {
	Hash   string `json:"hash"`
	BossID int64  `json:"boss_id"`
}

// DropView is a boss and the token it will drop
type DropView struct {
	BossID int64         `json:"boss_id"`
	Token  *models.Token `json:"token"`
}

// StartResponse is returned to the client when a session starts
type StartResponse struct {
	Hash      string     `json:"hash"`
	ExpiresAt time.Time  `json:"expires_at"`
	Drops     []DropView `json:"drops"`
}

// Start handles POST /api/game/start
func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}

	res, err := h.service.Start(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	drops := make([]DropView, 0, len(res.Drops))
	for _, d := range res.Drops {
		drops = append(drops, DropView{BossID: d.BossID, Token: d.Token})
	}
	writeJSON(w, http.StatusCreated, StartResponse{
		Hash:      res.Session.Hash,
		ExpiresAt: res.Session.ExpiresAt.UTC(),
		Drops:     drops,
	})
}

// Pause handles POST /api/game/pause
func (h *GameHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.sessionCall(w, r, h.service.Pause)
}

// Unpause handles POST /api/game/unpause
func (h *GameHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.sessionCall(w, r, h.service.Unpause)
}

// End handles POST /api/game/end
func (h *GameHandler) End(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}
	var req EndRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.service.End(r.Context(), address, req.Hash, req.Telemetry)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// KillBoss handles POST /api/game/boss/kill
func (h *GameHandler) KillBoss(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}
	var req KillBossRequest
	if !decodeBody(w, r, &req) {
		return
	}

	drop, err := h.service.KillBoss(r.Context(), address, req.Hash, req.BossID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, drop)
}

func (h *GameHandler) sessionCall(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, address, hash string) (*models.Session, error)) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}
	var req SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := call(r.Context(), address, req.Hash)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
