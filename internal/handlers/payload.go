package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/models"
)

// PayloadRegistry hands out and verifies sign-in payloads
type PayloadRegistry interface {
	GetPayload(ctx context.Context, publicKey string) (*models.Player, error)
	Verify(ctx context.Context, publicKey, signature string) (*models.Player, error)
}

// TokenIssuer signs access tokens for verified players
type TokenIssuer interface {
	GenerateAccessToken(address, publicKey string) (string, error)
}

// PayloadHandler serves the wallet sign-in flow
type PayloadHandler struct {
	registry PayloadRegistry
	issuer   TokenIssuer
	logger   *zap.Logger
}

func NewPayloadHandler(registry PayloadRegistry, issuer TokenIssuer, logger *zap.Logger) *PayloadHandler {
	return &PayloadHandler{registry: registry, issuer: issuer, logger: componentLogger(logger, "payload")}
}

// PayloadResponse carries the message the wallet has to sign
type PayloadResponse struct {
	Address string `json:"address"`
	Payload string `json:"payload"`
}

// VerifyResponse reports the signature check and, when it passed, an access token
type VerifyResponse struct {
	Address     string `json:"address"`
	Verified    bool   `json:"success"`
	AccessToken string `json:"access_token,omitempty"`
}

// GetPayload handles GET /api/payload/get?pub_key=
func (h *PayloadHandler) GetPayload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	player, err := h.registry.GetPayload(r.Context(), r.URL.Query().Get("pub_key"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, PayloadResponse{Address: player.Address, Payload: player.Payload})
}

// Verify handles GET /api/payload/verify?pub_key=&signature=
func (h *PayloadHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	player, err := h.registry.Verify(r.Context(), q.Get("pub_key"), q.Get("signature"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := VerifyResponse{Address: player.Address, Verified: player.SuccessSign}
	if player.SuccessSign {
		token, err := h.issuer.GenerateAccessToken(player.Address, player.PublicKey)
		if err != nil {
			h.logger.Error("failed to generate access token", zap.String("player", player.Address), zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}
		resp.AccessToken = token
		h.logger.Info("player signed in", zap.String("player", player.Address))
	}
	writeJSON(w, http.StatusOK, resp)
}
