package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/omega-realm/bossdrop/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// PlayerContextKey is the key for storing player claims in request context
	PlayerContextKey contextKey = "player"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenValidator is satisfied by *auth.Issuer
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.PlayerClaims, error)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// RequireAuth returns a middleware that validates JWT tokens
func RequireAuth(validator TokenValidator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Missing authorization header")
				return
			}

			// Check if header has Bearer prefix
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "Invalid authorization header format. Use: Bearer <token>")
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			// Add claims to request context
			ctx := context.WithValue(r.Context(), PlayerContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}

// GetPlayerClaims extracts player claims from request context
func GetPlayerClaims(r *http.Request) (*auth.PlayerClaims, bool) {
	claims, ok := r.Context().Value(PlayerContextKey).(*auth.PlayerClaims)
	return claims, ok
}

// WithPlayerClaims stores claims in ctx the way RequireAuth does
func WithPlayerClaims(ctx context.Context, claims *auth.PlayerClaims) context.Context {
	return context.WithValue(ctx, PlayerContextKey, claims)
}
