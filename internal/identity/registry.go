package identity

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

// Store persists player identities.
type Store interface {
	UpsertPayload(ctx context.Context, address, publicKey, payload string) (*models.Player, error)
	PlayerByPublicKey(ctx context.Context, publicKey string) (*models.Player, error)
	RecordSignature(ctx context.Context, publicKey, signature string, verified bool) error
}

// Registry issues challenge payloads and records signature checks.
type Registry struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry creates a registry.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger.With(zap.String("component", "identity")), now: time.Now}
}

// GetPayload registers the key's owner on first sight and hands out a fresh payload.
func (r *Registry) GetPayload(ctx context.Context, publicKey string) (*models.Player, error) {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return nil, game.InvalidArgument(`parameter "pub_key" is missing`)
	}
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, game.InvalidArgument("public key error: %v", err)
	}
	player, err := r.store.UpsertPayload(ctx, key.Address(), key.String(), NewPayload(r.now()))
	if err != nil {
		return nil, err
	}
	return player, nil
}

// Verify checks the signature of the player's current payload and stores the result.
func (r *Registry) Verify(ctx context.Context, publicKey, signature string) (*models.Player, error) {
	publicKey = strings.TrimSpace(publicKey)
	signature = strings.TrimSpace(signature)
	if publicKey == "" {
		return nil, game.InvalidArgument(`"pub_key" param is missing`)
	}
	if signature == "" {
		return nil, game.InvalidArgument(`"signature" param is missing`)
	}
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, game.InvalidArgument("public key error: %v", err)
	}
	player, err := r.store.PlayerByPublicKey(ctx, key.String())
	if err != nil {
		return nil, err
	}

	verified, err := key.Verify(signature, HexPayload(player.Payload))
	if err != nil {
		return nil, game.InvalidArgument("%v", err)
	}
	if err := r.store.RecordSignature(ctx, key.String(), signature, verified); err != nil {
		return nil, err
	}
	player.Signature = signature
	player.SuccessSign = verified

	r.logger.Info("payload signature checked", zap.String("player", player.Address), zap.Bool("verified", verified))
	return player, nil
}
