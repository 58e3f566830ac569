package database

import (
	"context"
	"fmt"
)

// liveSessionIndex enforces a single live (created or paused) session per player
const liveSessionIndex = "idx_game_sessions_one_live_per_player"

// InitSchema creates database tables if they don't exist
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	-- Players table (wallet identities)
	CREATE TABLE IF NOT EXISTS players (
		id BIGSERIAL PRIMARY KEY,
		address VARCHAR(64) UNIQUE NOT NULL,
		public_key VARCHAR(128) UNIQUE NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		signature VARCHAR(256) NOT NULL DEFAULT '',
		success_sign BOOLEAN NOT NULL DEFAULT FALSE,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Boss catalog
	CREATE TABLE IF NOT EXISTS bosses (
		id BIGSERIAL PRIMARY KEY,
		level INTEGER UNIQUE NOT NULL,
		drop_chance NUMERIC(5,2) NOT NULL DEFAULT 0 CHECK (drop_chance BETWEEN 0 AND 100)
	);

	-- Token catalog
	CREATE TABLE IF NOT EXISTS tokens (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		weight INTEGER NOT NULL DEFAULT 1 CHECK (weight >= 0),
		token_id BIGINT UNIQUE NOT NULL
	);

	-- Game sessions
	CREATE TABLE IF NOT EXISTS game_sessions (
		id BIGSERIAL PRIMARY KEY,
		hash CHAR(32) UNIQUE NOT NULL,
		player_id BIGINT REFERENCES players(id) ON DELETE SET NULL,
		status SMALLINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		pause_started_at TIMESTAMPTZ,
		paused_seconds BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ NOT NULL,
		score BIGINT,
		favourite_weapon VARCHAR(64),
		shots_fired BIGINT,
		mobs_killed BIGINT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Drops: one row per (session, boss)
	CREATE TABLE IF NOT EXISTS drops (
		id BIGSERIAL PRIMARY KEY,
		session_id BIGINT NOT NULL REFERENCES game_sessions(id) ON DELETE CASCADE,
		boss_id BIGINT NOT NULL REFERENCES bosses(id),
		token_id BIGINT REFERENCES tokens(id) ON DELETE SET NULL,
		boss_killed BOOLEAN NOT NULL DEFAULT FALSE,
		transferred_at TIMESTAMPTZ,
		UNIQUE (session_id, boss_id)
	);

	-- Create indexes for performance
	CREATE UNIQUE INDEX IF NOT EXISTS ` + liveSessionIndex + `
		ON game_sessions(player_id) WHERE status IN (0, 3);
	CREATE INDEX IF NOT EXISTS idx_game_sessions_player_id ON game_sessions(player_id);
	CREATE INDEX IF NOT EXISTS idx_game_sessions_live_expiry ON game_sessions(expires_at) WHERE status IN (0, 3);
	CREATE INDEX IF NOT EXISTS idx_drops_pending ON drops(session_id) WHERE boss_killed AND transferred_at IS NULL;
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := db.initTriggers(ctx); err != nil {
		return fmt.Errorf("failed to initialize triggers: %w", err)
	}

	db.logger.Info("schema initialized with indexes and triggers")
	return nil
}

// initTriggers creates database triggers for automation
func (db *DB) initTriggers(ctx context.Context) error {
	triggers := `
	-- Function to update session timestamp
	CREATE OR REPLACE FUNCTION update_game_session_timestamp()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = CURRENT_TIMESTAMP;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS trg_update_game_session_timestamp ON game_sessions;
	CREATE TRIGGER trg_update_game_session_timestamp
		BEFORE UPDATE ON game_sessions
		FOR EACH ROW
		EXECUTE FUNCTION update_game_session_timestamp();

	-- Function rejecting changes to ended or abandoned sessions
	CREATE OR REPLACE FUNCTION guard_terminal_game_session()
	RETURNS TRIGGER AS $$
	BEGIN
		IF OLD.status IN (1, 2) AND (
			NEW.status <> OLD.status OR
			NEW.paused_seconds <> OLD.paused_seconds OR
			NEW.pause_started_at IS DISTINCT FROM OLD.pause_started_at
		) THEN
			RAISE EXCEPTION 'game session % is terminal', OLD.hash USING ERRCODE = 'check_violation';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS trg_guard_terminal_game_session ON game_sessions;
	CREATE TRIGGER trg_guard_terminal_game_session
		BEFORE UPDATE ON game_sessions
		FOR EACH ROW
		EXECUTE FUNCTION guard_terminal_game_session();
	`

	_, err := db.ExecContext(ctx, triggers)
	return err
}
