package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "bossdrop", cfg.Redis.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.Game.ExpiryTimeout)
	assert.False(t, cfg.Game.AllowEndFromPaused)
	assert.Equal(t, 60*time.Second, cfg.Game.TransferTimeout)
	assert.Equal(t, time.Second, cfg.Scheduler.PollInterval)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("GAME_EXPIRY_TIMEOUT", "30m")
	t.Setenv("GAME_ALLOW_END_FROM_PAUSED", "true")
	t.Setenv("DB_HOST", "db")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.Game.ExpiryTimeout)
	assert.True(t, cfg.Game.AllowEndFromPaused)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("GAME_EXPIRY_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "GAME_ISSUER_ADDRESS")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("GAME_ISSUER_ADDRESS", "tz1issuer")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Nil(t, cat)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"bosses": [{"level": 1, "drop_chance": 50}],
		"tokens": [{"name": "Sword", "weight": 3, "token_id": 11}]
	}`), 0o600))

	cat, err = LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Bosses, 1)
	assert.Equal(t, 50.0, cat.Bosses[0].DropChance)
	assert.Equal(t, int64(11), cat.Tokens[0].ExternalID)

	require.NoError(t, os.WriteFile(path, []byte(`{"bosses": [{"level": 1, "drop_chance": 150}]}`), 0o600))
	_, err = LoadCatalog(path)
	assert.Error(t, err)
}
