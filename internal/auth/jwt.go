package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuerName = "bossdrop-api"

// Config holds token signing settings
type Config struct {
	Secret         string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TOKEN_TTL" envDefault:"24h"`
}

// PlayerClaims represents the JWT claims structure
type PlayerClaims struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	jwt.RegisteredClaims
}

// Issuer signs and validates player access tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a token issuer
func NewIssuer(cfg Config) *Issuer {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}
}

// GenerateAccessToken creates a new access token for a verified player
func (i *Issuer) GenerateAccessToken(address, publicKey string) (string, error) {
	now := i.now()
	claims := PlayerClaims{
		Address:   address,
		PublicKey: publicKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuerName,
			Subject:   address,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*PlayerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuerName), jwt.WithTimeFunc(i.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*PlayerClaims); ok && token.Valid && claims.Address != "" {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
