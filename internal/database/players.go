package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

const playerColumns = `SELECT id, address, public_key, payload, signature, success_sign, registered_at FROM players`

func scanPlayer(row scanner) (*models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.Address, &p.PublicKey, &p.Payload, &p.Signature, &p.SuccessSign, &p.RegisteredAt)
	if err != nil {
		return nil, err
	}
	p.RegisteredAt = p.RegisteredAt.UTC()
	return &p, nil
}

func (s *Store) playerBy(ctx context.Context, column, value string) (*models.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, playerColumns+` WHERE `+column+` = $1`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.NotFound("player %s not found", value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch player: %w", err)
	}
	return p, nil
}

// PlayerByAddress fetches a player by wallet address
func (s *Store) PlayerByAddress(ctx context.Context, address string) (*models.Player, error) {
	return s.playerBy(ctx, "address", address)
}

// PlayerByPublicKey fetches a player by encoded public key
func (s *Store) PlayerByPublicKey(ctx context.Context, publicKey string) (*models.Player, error) {
	return s.playerBy(ctx, "public_key", publicKey)
}

// UpsertPayload registers the player or rotates the payload of an existing one
func (s *Store) UpsertPayload(ctx context.Context, address, publicKey, payload string) (*models.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `
		INSERT INTO players (address, public_key, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (public_key) DO UPDATE SET payload = EXCLUDED.payload
		RETURNING id, address, public_key, payload, signature, success_sign, registered_at
	`, address, publicKey, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}
	return p, nil
}

// RecordSignature stores the last submitted signature and its verification result
func (s *Store) RecordSignature(ctx context.Context, publicKey, signature string, verified bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE players SET signature = $2, success_sign = $3 WHERE public_key = $1
	`, publicKey, signature, verified)
	if err != nil {
		return fmt.Errorf("failed to record signature: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record signature: %w", err)
	}
	if n == 0 {
		return game.NotFound("player with public key %s not found", publicKey)
	}
	return nil
}
