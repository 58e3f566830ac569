package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omega-realm/bossdrop/internal/auth"
)

func TestRequireAuth(t *testing.T) {
	issuer := auth.NewIssuer(auth.Config{Secret: "test", AccessTokenTTL: time.Hour})
	token, err := issuer.GenerateAccessToken("tz1abc", "edpk")
	require.NoError(t, err)

	var seen *auth.PlayerClaims
	handler := RequireAuth(issuer)(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetPlayerClaims(r)
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token " + token, http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "tz1abc", seen.Address)
				return
			}
			assert.Nil(t, seen)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}
