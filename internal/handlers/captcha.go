package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/captcha"
)

// CaptchaVerifier checks a reCAPTCHA response token
type CaptchaVerifier interface {
	Verify(ctx context.Context, response string) error
}

type CaptchaHandler struct {
	verifier CaptchaVerifier
	logger   *zap.Logger
}

func NewCaptchaHandler(verifier CaptchaVerifier, logger *zap.Logger) *CaptchaHandler {
	return &CaptchaHandler{verifier: verifier, logger: componentLogger(logger, "captcha")}
}

// CaptchaRequest carries the widget response token
type CaptchaRequest struct {
	Captcha string `json:"captcha"`
}

// Verify handles POST /api/captcha/verify
func (h *CaptchaHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req CaptchaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkCaptcha(r.Context(), w, h.verifier, req.Captcha, h.logger) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// checkCaptcha writes the failure response and returns false when the token
// is not accepted. A nil verifier accepts everything.
func checkCaptcha(ctx context.Context, w http.ResponseWriter, verifier CaptchaVerifier, response string, logger *zap.Logger) bool {
	if verifier == nil {
		return true
	}
	err := verifier.Verify(ctx, response)
	switch {
	case err == nil:
		return true
	case errors.Is(err, captcha.ErrMissing), errors.Is(err, captcha.ErrRejected):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		logger.Warn("captcha provider unavailable", zap.Error(err))
		writeMessage(w, http.StatusBadGateway, "Captcha verification unavailable")
	}
	return false
}
