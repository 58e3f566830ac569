package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
)

const testAddress = "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb"

// setupStore connects to GAME_TEST_DATABASE_URL and resets every table.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GAME_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GAME_TEST_DATABASE_URL not set, run make test-integration")
	}
	ctx := context.Background()

	db, err := Open(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.InitSchema(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE drops, game_sessions, tokens, bosses, players RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	store := NewStore(db)
	_, err = store.UpsertPayload(ctx, testAddress, "edpkTest", "Tezos Signed Message: test")
	require.NoError(t, err)
	require.NoError(t, store.RecordSignature(ctx, "edpkTest", "edsigTest", true))
	require.NoError(t, store.SeedCatalog(ctx, models.Catalog{
		Bosses: []models.Boss{{Level: 1, DropChance: 100}, {Level: 2, DropChance: 0}},
		Tokens: []models.Token{{Name: "gem", Weight: 100, ExternalID: 501}},
	}))
	return store
}

func newTestService(store *Store) *game.Service {
	return game.NewService(store, nil, game.Config{ExpiryTimeout: time.Hour}, zap.NewNop())
}

func TestStoreCatalogSnapshot(t *testing.T) {
	store := setupStore(t)

	catalog, err := store.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.Bosses, 2)
	require.Len(t, catalog.Tokens, 1)
	assert.Equal(t, 100.0, catalog.Bosses[0].DropChance)
	assert.Equal(t, int64(501), catalog.Tokens[0].ExternalID)
}

func TestStoreSessionLifecycle(t *testing.T) {
	store := setupStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.Start(ctx, testAddress)
	require.NoError(t, err)
	require.Len(t, first.Drops, 1)

	second, err := svc.Start(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, []string{first.Session.Hash}, second.Abandoned)

	live, err := store.LiveSessions(ctx, testAddress)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, second.Session.Hash, live[0].Hash)

	hash := second.Session.Hash
	_, err = svc.Pause(ctx, testAddress, hash)
	require.NoError(t, err)
	_, err = svc.Unpause(ctx, testAddress, hash)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		drop, err := svc.KillBoss(ctx, testAddress, hash, first.Drops[0].BossID)
		require.NoError(t, err)
		assert.True(t, drop.BossKilled)
	}
	drops, err := store.SessionDrops(ctx, hash)
	require.NoError(t, err)
	assert.Len(t, drops, 1)

	ended, err := svc.End(ctx, testAddress, hash, models.Telemetry{Score: 77, FavouriteWeapon: "bow", ShotsFired: 9, MobsKilled: 4})
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, ended.Status)

	_, err = svc.Pause(ctx, testAddress, hash)
	assert.ErrorIs(t, err, game.ErrStateConflict)

	stats, err := store.PlayerStats(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.GamesPlayed)
	assert.Equal(t, int64(77), stats.BestScore)
	assert.Equal(t, "bow", stats.FavouriteWeapon)
	assert.Equal(t, int64(1), stats.TokensEarned)
}

func TestStoreConcurrentStartsKeepOneLiveSession(t *testing.T) {
	store := setupStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(ctx, testAddress)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	live, err := store.LiveSessions(ctx, testAddress)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestStoreLiveSessionIndexReportsConflict(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	owner := testAddress
	now := time.Now().UTC()

	_, err := store.StartSession(ctx, &models.Session{Hash: game.NewSessionHash(), PlayerAddress: &owner, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, nil)
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `
		INSERT INTO game_sessions (hash, player_id, status, expires_at)
		SELECT $1, id, 0, NOW() FROM players WHERE address = $2
	`, game.NewSessionHash(), testAddress)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err, liveSessionIndex))
}

func TestStoreMarkTransferredIsAllOrNothing(t *testing.T) {
	store := setupStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	res, err := svc.Start(ctx, testAddress)
	require.NoError(t, err)
	hash := res.Session.Hash
	_, err = svc.KillBoss(ctx, testAddress, hash, res.Drops[0].BossID)
	require.NoError(t, err)

	eligible, err := store.EligibleDrops(ctx, testAddress)
	require.NoError(t, err)
	assert.Empty(t, eligible, "live sessions are not eligible")

	_, err = svc.End(ctx, testAddress, hash, models.Telemetry{FavouriteWeapon: "bow"})
	require.NoError(t, err)
	eligible, err = store.EligibleDrops(ctx, testAddress)
	require.NoError(t, err)
	require.Len(t, eligible, 1)

	at := time.Now().UTC().Truncate(time.Microsecond)
	err = store.MarkTransferred(ctx, []int64{eligible[0].ID, 999999}, at)
	assert.ErrorIs(t, err, game.ErrStateConflict)

	still, err := store.EligibleDrops(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, eligible, still)

	require.NoError(t, store.MarkTransferred(ctx, []int64{eligible[0].ID}, at))
	after, err := store.EligibleDrops(ctx, testAddress)
	require.NoError(t, err)
	assert.Empty(t, after)

	err = store.MarkTransferred(ctx, []int64{eligible[0].ID}, at)
	assert.ErrorIs(t, err, game.ErrStateConflict)
}

func TestStoreTerminalSessionGuard(t *testing.T) {
	store := setupStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	res, err := svc.Start(ctx, testAddress)
	require.NoError(t, err)
	_, err = svc.End(ctx, testAddress, res.Session.Hash, models.Telemetry{FavouriteWeapon: "bow"})
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `UPDATE game_sessions SET status = 0 WHERE hash = $1`, res.Session.Hash)
	assert.Error(t, err)
}

func TestStoreCollapseCarriesKills(t *testing.T) {
	store := setupStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	started, err := svc.Start(ctx, testAddress)
	require.NoError(t, err)
	require.Len(t, started.Drops, 1)
	hash := started.Session.Hash
	_, err = svc.KillBoss(ctx, testAddress, hash, started.Drops[0].BossID)
	require.NoError(t, err)

	catalog, err := store.Catalog(ctx)
	require.NoError(t, err)
	realloc := []models.Drop{{SessionHash: hash, BossID: started.Drops[0].BossID, Token: &catalog.Tokens[0]}}
	stored, err := store.CollapseLiveSessions(ctx, testAddress, hash, realloc)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].BossKilled)
	assert.NotZero(t, stored[0].ID)

	drops, err := store.SessionDrops(ctx, hash)
	require.NoError(t, err)
	require.Len(t, drops, 1)
	assert.True(t, drops[0].BossKilled)
}

func TestStoreUnchangedExpiryLeavesRow(t *testing.T) {
	store := setupStore(t)
	svc := newTestService(store)
	ctx := context.Background()

	started, err := svc.Start(ctx, testAddress)
	require.NoError(t, err)
	hash := started.Session.Hash

	updatedAt := func() time.Time {
		var at time.Time
		require.NoError(t, store.db.QueryRowContext(ctx, `SELECT updated_at FROM game_sessions WHERE hash = $1`, hash).Scan(&at))
		return at
	}
	before := updatedAt()
	time.Sleep(20 * time.Millisecond)

	out, err := svc.Expire(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, game.ExpiryEarly, out.Outcome)
	assert.True(t, before.Equal(updatedAt()))
}
