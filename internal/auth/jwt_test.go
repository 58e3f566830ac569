package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer(Config{Secret: "s3cret", AccessTokenTTL: time.Hour})

	token, err := issuer.GenerateAccessToken("tz1abc", "edpkxyz")
	require.NoError(t, err)

	claims, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tz1abc", claims.Address)
	assert.Equal(t, "edpkxyz", claims.PublicKey)
	assert.Equal(t, "tz1abc", claims.Subject)
}

func TestValidateTokenRejects(t *testing.T) {
	issuer := NewIssuer(Config{Secret: "s3cret", AccessTokenTTL: time.Hour})
	token, err := issuer.GenerateAccessToken("tz1abc", "edpk")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewIssuer(Config{Secret: "other"})
		_, err := other.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewIssuer(Config{Secret: "s3cret"})
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ValidateToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("unsigned", func(t *testing.T) {
		none := jwt.NewWithClaims(jwt.SigningMethodNone, PlayerClaims{Address: "tz1abc"})
		raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.ValidateToken(raw)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.ValidateToken("not-a-token")
		assert.Error(t, err)
	})
}
