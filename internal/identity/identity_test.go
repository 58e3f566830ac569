package identity

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

func testKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	return priv, EncodePublicKey(priv.Public().(ed25519.PublicKey))
}

func TestHexPayload(t *testing.T) {
	assert.Equal(t, "050100000002"+"6869", HexPayload("hi"))

	payload := NewPayload(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.True(t, strings.HasPrefix(payload, "Tezos Signed Message: 2024-01-02T03:04:05Z "))
	assert.Len(t, strings.Fields(payload)[4], 32)
	assert.Equal(t, "0501", HexPayload(payload)[:4])
}

func TestPublicKeyEncoding(t *testing.T) {
	_, edpk := testKey(t)
	assert.True(t, strings.HasPrefix(edpk, "edpk"))

	key, err := ParsePublicKey(edpk)
	require.NoError(t, err)
	assert.Equal(t, edpk, key.String())
	assert.True(t, strings.HasPrefix(key.Address(), "tz1"))
	assert.Len(t, key.Address(), 36)

	corrupted := edpk[:len(edpk)-1] + "1"
	if corrupted == edpk {
		corrupted = edpk[:len(edpk)-1] + "2"
	}
	_, err = ParsePublicKey(corrupted)
	assert.Error(t, err)

	_, err = ParsePublicKey(key.Address())
	assert.ErrorIs(t, err, ErrPrefix)
}

func TestVerifySignature(t *testing.T) {
	priv, edpk := testKey(t)
	key, err := ParsePublicKey(edpk)
	require.NoError(t, err)

	msg := HexPayload("Tezos Signed Message: hello")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "edsig"))

	ok, err := key.Verify(sig, msg)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = key.Verify(sig, HexPayload("Tezos Signed Message: other"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = key.Verify("edsignope", msg)
	assert.Error(t, err)
}

type memStore struct {
	mu      sync.Mutex
	players map[string]*models.Player
}

func (m *memStore) UpsertPayload(_ context.Context, address, publicKey, payload string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[publicKey]
	if !ok {
		p = &models.Player{ID: int64(len(m.players) + 1), Address: address, PublicKey: publicKey}
		m.players[publicKey] = p
	}
	p.Payload = payload
	out := *p
	return &out, nil
}

func (m *memStore) PlayerByPublicKey(_ context.Context, publicKey string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[publicKey]
	if !ok {
		return nil, game.NotFound("player not found")
	}
	out := *p
	return &out, nil
}

func (m *memStore) RecordSignature(_ context.Context, publicKey, signature string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[publicKey]
	if !ok {
		return game.NotFound("player not found")
	}
	p.Signature, p.SuccessSign = signature, verified
	return nil
}

func TestRegistryFlow(t *testing.T) {
	store := &memStore{players: make(map[string]*models.Player)}
	reg := NewRegistry(store, zap.NewNop())
	ctx := context.Background()
	priv, edpk := testKey(t)

	first, err := reg.GetPayload(ctx, edpk)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Address, "tz1"))
	assert.False(t, first.SuccessSign)

	sig, err := Sign(priv, HexPayload(first.Payload))
	require.NoError(t, err)
	player, err := reg.Verify(ctx, edpk, sig)
	require.NoError(t, err)
	assert.True(t, player.SuccessSign)

	// a new payload invalidates the old signature on the next check
	rotated, err := reg.GetPayload(ctx, edpk)
	require.NoError(t, err)
	assert.True(t, rotated.SuccessSign, "rotation keeps the verified flag")
	player, err = reg.Verify(ctx, edpk, sig)
	require.NoError(t, err)
	assert.False(t, player.SuccessSign)
}

func TestRegistryRejectsBadInput(t *testing.T) {
	store := &memStore{players: make(map[string]*models.Player)}
	reg := NewRegistry(store, zap.NewNop())
	ctx := context.Background()
	_, edpk := testKey(t)

	_, err := reg.GetPayload(ctx, "")
	assert.ErrorIs(t, err, game.ErrInvalidArgument)
	_, err = reg.GetPayload(ctx, "edpkgarbage")
	assert.ErrorIs(t, err, game.ErrInvalidArgument)
	_, err = reg.Verify(ctx, edpk, "")
	assert.ErrorIs(t, err, game.ErrInvalidArgument)
	_, err = reg.Verify(ctx, edpk, "edsigxyz")
	assert.ErrorIs(t, err, game.ErrNotFound)
}
