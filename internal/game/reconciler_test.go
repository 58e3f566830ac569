package game_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/game/gametest"
	"github.com/omega-realm/bossdrop/internal/models"
)

const issuer = "tz1issuer"

var confirmedAt = time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)

// seedFinishedSession stores an ended session of alice with the given drops.
func seedFinishedSession(store *gametest.Store, hash string, status models.Status, drops ...models.Drop) {
	owner := alice
	store.InsertSession(models.Session{
		Hash:          hash,
		PlayerAddress: &owner,
		Status:        status,
		CreatedAt:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}, drops...)
}

func token(id int64) *models.Token {
	return &models.Token{ID: id, Name: "gem", Weight: 1, ExternalID: id + 100}
}

func setupReconciler(t *testing.T, transactor game.Transactor) (*gametest.Store, *gametest.Locker, *game.Reconciler) {
	t.Helper()
	store := gametest.NewStore()
	store.AddPlayer(alice, true)
	locker := gametest.NewLocker()
	cfg := game.Config{IssuerAddress: issuer, TransferTimeout: time.Second}
	return store, locker, game.NewReconciler(store, locker, transactor, cfg, zap.NewNop())
}

func TestReconcileTransfersEligibleDrops(t *testing.T) {
	tx := gametest.ConfirmingTransactor("op123", confirmedAt)
	store, _, rec := setupReconciler(t, tx)
	ctx := context.Background()

	seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusEnded,
		models.Drop{BossID: 1, Token: token(1), BossKilled: true},
		models.Drop{BossID: 2, Token: token(2), BossKilled: false},
	)
	seedFinishedSession(store, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", models.StatusAbandoned,
		models.Drop{BossID: 1, Token: token(3), BossKilled: true},
	)

	res, err := rec.Reconcile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "op123", res.Reference)

	reqs := tx.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, issuer, reqs[0].From)
	assert.NotEmpty(t, reqs[0].Nonce)
	assert.ElementsMatch(t, []game.TransferItem{
		{To: alice, TokenID: 101, Amount: 1},
		{To: alice, TokenID: 103, Amount: 1},
	}, reqs[0].Items)

	drops, err := store.PlayerDrops(ctx, alice)
	require.NoError(t, err)
	transferred := 0
	for _, d := range drops {
		if d.Transferred() {
			transferred++
			assert.Equal(t, confirmedAt, *d.TransferredAt)
		}
	}
	assert.Equal(t, 2, transferred)

	res, err = rec.Reconcile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, res.Reference)
	assert.Len(t, tx.Requests(), 1, "nothing is submitted for an empty batch")
}

func TestReconcileFailureKeepsDropsEligible(t *testing.T) {
	tests := []struct {
		name   string
		submit func(context.Context, game.TransferRequest) (game.Confirmation, error)
	}{
		{"rejected", func(context.Context, game.TransferRequest) (game.Confirmation, error) {
			return game.Confirmation{}, errors.New("node unavailable")
		}},
		{"unconfirmed", func(context.Context, game.TransferRequest) (game.Confirmation, error) {
			return game.Confirmation{Reference: "op1", Confirmed: false}, nil
		}},
		{"timeout", func(ctx context.Context, _ game.TransferRequest) (game.Confirmation, error) {
			<-ctx.Done()
			return game.Confirmation{}, ctx.Err()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &gametest.Transactor{SubmitFunc: tt.submit}
			store, _, rec := setupReconciler(t, tx)
			ctx := context.Background()
			seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusEnded,
				models.Drop{BossID: 1, Token: token(1), BossKilled: true},
				models.Drop{BossID: 2, Token: token(2), BossKilled: true},
			)
			before, err := store.EligibleDrops(ctx, alice)
			require.NoError(t, err)

			_, err = rec.Reconcile(ctx, alice)
			require.Error(t, err)
			assert.ErrorIs(t, err, game.ErrTransferFailed)
			var gameErr *game.Error
			require.ErrorAs(t, err, &gameErr)
			assert.True(t, gameErr.Retryable())

			after, err := store.EligibleDrops(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestReconcileRetryUsesSameNonce(t *testing.T) {
	calls := 0
	tx := &gametest.Transactor{SubmitFunc: func(context.Context, game.TransferRequest) (game.Confirmation, error) {
		calls++
		if calls == 1 {
			return game.Confirmation{}, errors.New("broadcast failed")
		}
		return game.Confirmation{Reference: "op2", Confirmed: true, ConfirmedAt: confirmedAt}, nil
	}}
	store, _, rec := setupReconciler(t, tx)
	ctx := context.Background()
	seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusEnded,
		models.Drop{BossID: 1, Token: token(1), BossKilled: true},
	)

	_, err := rec.Reconcile(ctx, alice)
	require.Error(t, err)
	res, err := rec.Reconcile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	reqs := tx.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].Nonce, reqs[1].Nonce)
}

func TestReconcileSettlesWhenCallerGoesAway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx := &gametest.Transactor{SubmitFunc: func(submitCtx context.Context, _ game.TransferRequest) (game.Confirmation, error) {
		cancel()
		if err := submitCtx.Err(); err != nil {
			return game.Confirmation{}, err
		}
		return game.Confirmation{Reference: "op9", Confirmed: true, ConfirmedAt: confirmedAt}, nil
	}}
	store, _, rec := setupReconciler(t, tx)
	seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusEnded,
		models.Drop{BossID: 1, Token: token(1), BossKilled: true},
	)

	res, err := rec.Reconcile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "op9", res.Reference)

	eligible, err := store.EligibleDrops(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestNullTokenDropIsNeverEligible(t *testing.T) {
	tx := gametest.ConfirmingTransactor("op", confirmedAt)
	store, _, rec := setupReconciler(t, tx)
	ctx := context.Background()
	seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusEnded,
		models.Drop{BossID: 1, BossKilled: true},
		models.Drop{BossID: 2, BossKilled: false},
	)

	eligible, err := store.EligibleDrops(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, eligible)

	res, err := rec.Reconcile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, tx.Requests())
}

func TestLiveSessionDropsAreNotEligible(t *testing.T) {
	store, _, _ := setupReconciler(t, gametest.ConfirmingTransactor("op", confirmedAt))
	seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusCreated,
		models.Drop{BossID: 1, Token: token(1), BossKilled: true},
	)
	eligible, err := store.EligibleDrops(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestReconcileIsSerializedPerPlayer(t *testing.T) {
	tx := gametest.ConfirmingTransactor("op", confirmedAt)
	store, locker, rec := setupReconciler(t, tx)
	seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusEnded,
		models.Drop{BossID: 1, Token: token(1), BossKilled: true},
	)
	locker.Hold("reconcile:" + alice)

	_, err := rec.Reconcile(context.Background(), alice)
	assert.ErrorIs(t, err, game.ErrTransferInProgress)
	assert.Empty(t, tx.Requests())
}

func TestReconcileRequiresVerifiedPlayer(t *testing.T) {
	store, _, rec := setupReconciler(t, gametest.ConfirmingTransactor("op", confirmedAt))
	store.AddPlayer("tz1carol", false)

	_, err := rec.Reconcile(context.Background(), "tz1carol")
	assert.ErrorIs(t, err, game.ErrUnverifiedPlayer)
}

func TestReconcileMarkFailureIsReported(t *testing.T) {
	store, _, rec := setupReconciler(t, gametest.ConfirmingTransactor("op", confirmedAt))
	seedFinishedSession(store, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", models.StatusEnded,
		models.Drop{BossID: 1, Token: token(1), BossKilled: true},
	)
	store.FailMarkTransferred(errors.New("connection reset"))

	_, err := rec.Reconcile(context.Background(), alice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestBuildTransferNonceIgnoresOrder(t *testing.T) {
	a := []models.Drop{{ID: 3, Token: token(1)}, {ID: 1, Token: token(2)}}
	b := []models.Drop{{ID: 1, Token: token(2)}, {ID: 3, Token: token(1)}}

	ra := game.BuildTransfer(issuer, alice, a)
	rb := game.BuildTransfer(issuer, alice, b)
	assert.Equal(t, ra.Nonce, rb.Nonce)
	assert.Len(t, ra.Items, 2)

	other := game.BuildTransfer(issuer, alice, []models.Drop{{ID: 4, Token: token(1)}})
	assert.NotEqual(t, ra.Nonce, other.Nonce)
}
