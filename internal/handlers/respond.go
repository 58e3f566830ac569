package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/logger"
	"github.com/omega-realm/bossdrop/internal/middleware"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[game.Code]int{
	game.CodeInvalidArgument:    http.StatusBadRequest,
	game.CodeNotFound:           http.StatusNotFound,
	game.CodeStateConflict:      http.StatusConflict,
	game.CodeUnverifiedPlayer:   http.StatusForbidden,
	game.CodeTransferFailed:     http.StatusBadGateway,
	game.CodeTransferInProgress: http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeError maps game errors to their HTTP status. Anything else is logged
// and reported as an internal error.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var gameErr *game.Error
	if errors.As(err, &gameErr) {
		status, ok := statusByCode[gameErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request failed", zap.String("code", string(gameErr.Code)), zap.Error(err))
		}
		writeJSON(w, status, ErrorResponse{Error: gameErr.Error(), Code: string(gameErr.Code)})
		return
	}
	logger.Error("request failed", zap.Error(err))
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// playerAddress returns the address of the authenticated player
func playerAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetPlayerClaims(r)
	if !ok || claims.Address == "" {
		writeMessage(w, http.StatusUnauthorized, "Missing player identity")
		return "", false
	}
	return claims.Address, true
}

func componentLogger(base *zap.Logger, name string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return logger.WithComponent(base, name)
}
