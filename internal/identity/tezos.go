// Package identity verifies wallet ownership of players through a signed
// challenge payload.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/decred/base58"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// base58check prefixes
var (
	prefixTz1     = []byte{6, 161, 159}
	prefixEdpk    = []byte{13, 15, 37, 217}
	prefixEdsig   = []byte{9, 245, 205, 134, 18}
	prefixGeneric = []byte{4, 130, 43}
)

var (
	ErrChecksum  = errors.New("base58 checksum mismatch")
	ErrPrefix    = errors.New("unexpected key prefix")
	ErrKeyLength = errors.New("unexpected key length")
)

const payloadPrefix = "Tezos Signed Message:"

// NewPayload returns a fresh challenge text for the player to sign.
func NewPayload(now time.Time) string {
	return fmt.Sprintf("%s %s %s", payloadPrefix, now.UTC().Format(time.RFC3339), strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// HexPayload encodes a text payload as a Micheline string expression, the form
// wallets sign: 05 01, a 4-byte big-endian length, then the utf-8 bytes.
func HexPayload(payload string) string {
	body := hex.EncodeToString([]byte(payload))
	return fmt.Sprintf("0501%08x%s", len(payload), body)
}

// PublicKey is a decoded Ed25519 wallet key.
type PublicKey struct {
	key ed25519.PublicKey
}

// ParsePublicKey decodes an edpk-prefixed base58check key.
func ParsePublicKey(encoded string) (PublicKey, error) {
	raw, err := decodeCheck(encoded, prefixEdpk)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("invalid public key: %w", ErrKeyLength)
	}
	return PublicKey{key: ed25519.PublicKey(raw)}, nil
}

// String returns the edpk encoding.
func (k PublicKey) String() string {
	return encodeCheck(prefixEdpk, k.key)
}

// Address returns the tz1 address hashed from the key.
func (k PublicKey) Address() string {
	h, _ := blake2b.New(20, nil)
	h.Write(k.key)
	return encodeCheck(prefixTz1, h.Sum(nil))
}

// Verify checks an edsig (or generic sig) signature over the hex-encoded message.
func (k PublicKey) Verify(signature, hexMessage string) (bool, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return false, err
	}
	msg, err := hex.DecodeString(hexMessage)
	if err != nil {
		return false, fmt.Errorf("invalid message hex: %w", err)
	}
	digest := blake2b.Sum256(msg)
	return ed25519.Verify(k.key, digest[:], sig), nil
}

// EncodeSignature returns the edsig encoding of a raw signature.
func EncodeSignature(sig []byte) string {
	return encodeCheck(prefixEdsig, sig)
}

// EncodePublicKey returns the edpk encoding of a raw key.
func EncodePublicKey(key ed25519.PublicKey) string {
	return encodeCheck(prefixEdpk, key)
}

// Sign signs a hex message the way a wallet does. Used by tooling and tests.
func Sign(priv ed25519.PrivateKey, hexMessage string) (string, error) {
	msg, err := hex.DecodeString(hexMessage)
	if err != nil {
		return "", fmt.Errorf("invalid message hex: %w", err)
	}
	digest := blake2b.Sum256(msg)
	return EncodeSignature(ed25519.Sign(priv, digest[:])), nil
}

func decodeSignature(encoded string) ([]byte, error) {
	prefix := prefixEdsig
	if strings.HasPrefix(encoded, "sig") {
		prefix = prefixGeneric
	}
	raw, err := decodeCheck(encoded, prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature: %w", ErrKeyLength)
	}
	return raw, nil
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func encodeCheck(prefix, payload []byte) string {
	buf := make([]byte, 0, len(prefix)+len(payload)+4)
	buf = append(buf, prefix...)
	buf = append(buf, payload...)
	buf = append(buf, checksum(buf)...)
	return base58.Encode(buf)
}

func decodeCheck(encoded string, prefix []byte) ([]byte, error) {
	raw := base58.Decode(encoded)
	if len(raw) < len(prefix)+4 {
		return nil, ErrKeyLength
	}
	body, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(checksum(body), sum) {
		return nil, ErrChecksum
	}
	if !bytes.HasPrefix(body, prefix) {
		return nil, ErrPrefix
	}
	return body[len(prefix):], nil
}
