package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/omega-realm/bossdrop/internal/models"
)

// Catalog reads bosses and tokens in one repeatable-read snapshot
func (s *Store) Catalog(ctx context.Context) (models.Catalog, error) {
	var catalog models.Catalog
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := s.db.withTx(ctx, opts, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, level, drop_chance FROM bosses ORDER BY level, id`)
		if err != nil {
			return fmt.Errorf("failed to query bosses: %w", err)
		}
		for rows.Next() {
			var b models.Boss
			if err := rows.Scan(&b.ID, &b.Level, &b.DropChance); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan boss: %w", err)
			}
			catalog.Bosses = append(catalog.Bosses, b)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate bosses: %w", err)
		}

		rows, err = tx.QueryContext(ctx, `SELECT id, name, weight, token_id FROM tokens ORDER BY id`)
		if err != nil {
			return fmt.Errorf("failed to query tokens: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var t models.Token
			if err := rows.Scan(&t.ID, &t.Name, &t.Weight, &t.ExternalID); err != nil {
				return fmt.Errorf("failed to scan token: %w", err)
			}
			catalog.Tokens = append(catalog.Tokens, t)
		}
		return rows.Err()
	})
	if err != nil {
		return models.Catalog{}, err
	}
	return catalog, nil
}

// SeedCatalog upserts bosses by level and tokens by external id
func (s *Store) SeedCatalog(ctx context.Context, catalog models.Catalog) error {
	return s.db.withTx(ctx, nil, func(tx *sql.Tx) error {
		for _, b := range catalog.Bosses {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO bosses (level, drop_chance) VALUES ($1, $2)
				ON CONFLICT (level) DO UPDATE SET drop_chance = EXCLUDED.drop_chance
			`, b.Level, b.DropChance)
			if err != nil {
				return fmt.Errorf("failed to upsert boss level %d: %w", b.Level, err)
			}
		}
		for _, t := range catalog.Tokens {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tokens (name, weight, token_id) VALUES ($1, $2, $3)
				ON CONFLICT (token_id) DO UPDATE SET name = EXCLUDED.name, weight = EXCLUDED.weight
			`, t.Name, t.Weight, t.ExternalID)
			if err != nil {
				return fmt.Errorf("failed to upsert token %d: %w", t.ExternalID, err)
			}
		}
		s.db.logger.Info("catalog seeded")
		return nil
	})
}
