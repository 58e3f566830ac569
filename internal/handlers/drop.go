package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

// DropLister lists a player's drops
type DropLister interface {
	PlayerDrops(ctx context.Context, address string) ([]models.Drop, error)
}

// TransferReconciler settles a player's eligible drops
type TransferReconciler interface {
	Reconcile(ctx context.Context, address string) (*game.ReconcileResult, error)
}

type DropHandler struct {
	drops      DropLister
	reconciler TransferReconciler
	captcha    CaptchaVerifier
	logger     *zap.Logger
}

// NewDropHandler creates the drop endpoints. A nil verifier disables the
// captcha check on transfer.
func NewDropHandler(drops DropLister, reconciler TransferReconciler, verifier CaptchaVerifier, logger *zap.Logger) *DropHandler {
	return &DropHandler{drops: drops, reconciler: reconciler, captcha: verifier, logger: componentLogger(logger, "drop")}
}

// TransferResponse reports the settled batch
type TransferResponse struct {
	Count     int    `json:"count"`
	Reference string `json:"reference,omitempty"`
}

// Transfer handles POST /api/drop/transfer
func (h *DropHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}
	var req CaptchaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkCaptcha(r.Context(), w, h.captcha, req.Captcha, h.logger) {
		return
	}

	res, err := h.reconciler.Reconcile(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TransferResponse{Count: res.Count, Reference: res.Reference})
}

// Get handles GET /api/drop/get
func (h *DropHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	address, ok := playerAddress(w, r)
	if !ok {
		return
	}

	drops, err := h.drops.PlayerDrops(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if drops == nil {
		drops = []models.Drop{}
	}
	writeJSON(w, http.StatusOK, drops)
}
